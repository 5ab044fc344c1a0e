package realtime

import (
	"context"
	"errors"
	"sort"
	"sync"

	"waitline/internal/metrics"
)

var ErrRegistryClosed = errors.New("registry closed")

// Conn is one live subscriber connection.
type Conn interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// partition holds the connections of one business. A dead partition has been removed from the
// registry and must not accept new connections.
type partition struct {
	mu    sync.Mutex
	conns map[string]Conn
	dead  bool
}

// Registry tracks live connections per business. The outer lock only guards the partition map,
// so businesses never contend with each other.
type Registry struct {
	mu         sync.RWMutex
	partitions map[int64]*partition
	closed     bool

	countMu sync.Mutex
	total   int
}

func NewRegistry() *Registry {
	return &Registry{partitions: make(map[int64]*partition)}
}

// Register adds conn to the set of businessID.
func (r *Registry) Register(businessID int64, conn Conn) error {
	for {
		p, err := r.partitionFor(businessID)
		if err != nil {
			return err
		}

		p.mu.Lock()
		if p.dead {
			p.mu.Unlock()
			continue
		}
		_, existed := p.conns[conn.ID()]
		p.conns[conn.ID()] = conn
		p.mu.Unlock()

		if !existed {
			r.addTotal(1)
		}
		return nil
	}
}

func (r *Registry) partitionFor(businessID int64) (*partition, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrRegistryClosed
	}
	p, ok := r.partitions[businessID]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if p, ok = r.partitions[businessID]; !ok {
		p = &partition{conns: make(map[string]Conn)}
		r.partitions[businessID] = p
	}
	return p, nil
}

// Unregister removes conn from businessID. It reports whether the connection was present.
// Unknown businesses and connections are no-ops.
func (r *Registry) Unregister(businessID int64, conn Conn) bool {
	r.mu.RLock()
	p, ok := r.partitions[businessID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	p.mu.Lock()
	_, present := p.conns[conn.ID()]
	delete(p.conns, conn.ID())
	empty := len(p.conns) == 0
	p.mu.Unlock()

	if present {
		r.addTotal(-1)
	}
	if empty {
		r.dropIfEmpty(businessID, p)
	}
	return present
}

func (r *Registry) dropIfEmpty(businessID int64, p *partition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.partitions[businessID] != p {
		return
	}
	p.mu.Lock()
	if len(p.conns) == 0 {
		p.dead = true
		delete(r.partitions, businessID)
	}
	p.mu.Unlock()
}

// ConnectionsFor returns a point-in-time copy of the connections of businessID.
func (r *Registry) ConnectionsFor(businessID int64) []Conn {
	r.mu.RLock()
	p, ok := r.partitions[businessID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	p.mu.Lock()
	out := make([]Conn, 0, len(p.conns))
	for _, c := range p.conns {
		out = append(out, c)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Count returns the number of connections of businessID.
func (r *Registry) Count(businessID int64) int {
	r.mu.RLock()
	p, ok := r.partitions[businessID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Businesses lists businesses with at least one connection.
func (r *Registry) Businesses() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.partitions))
	for id := range r.partitions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Total returns the number of connections across all businesses.
func (r *Registry) Total() int {
	r.countMu.Lock()
	defer r.countMu.Unlock()
	return r.total
}

func (r *Registry) addTotal(delta int) {
	r.countMu.Lock()
	r.total += delta
	n := r.total
	r.countMu.Unlock()
	metrics.SetConnections(n)
}

// Close closes every held connection and rejects further registrations.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	parts := r.partitions
	r.partitions = make(map[int64]*partition)
	r.mu.Unlock()

	var conns []Conn
	for _, p := range parts {
		p.mu.Lock()
		p.dead = true
		for _, c := range p.conns {
			conns = append(conns, c)
		}
		p.conns = make(map[string]Conn)
		p.mu.Unlock()
	}

	for _, c := range conns {
		_ = c.Close()
	}
	r.addTotal(-len(conns))
}
