package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"waitline/internal/metrics"
	"waitline/internal/snapshot"
)

const DefaultSendTimeout = 5 * time.Second

// Trigger labels what caused a broadcast.
type Trigger string

const (
	TriggerChange  Trigger = "change"
	TriggerRefresh Trigger = "refresh"
	TriggerManual  Trigger = "manual"
)

// SnapshotBuilder produces the payload for one business.
type SnapshotBuilder interface {
	Build(ctx context.Context, businessID int64) (*snapshot.QueueDisplay, error)
}

// Dispatcher builds one snapshot per broadcast and fans it out to every registered connection.
type Dispatcher struct {
	registry    *Registry
	builder     SnapshotBuilder
	sendTimeout time.Duration
	logger      zerolog.Logger
}

func NewDispatcher(registry *Registry, builder SnapshotBuilder, sendTimeout time.Duration, logger *zerolog.Logger) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Dispatcher{
		registry:    registry,
		builder:     builder,
		sendTimeout: sendTimeout,
		logger:      logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Broadcast pushes the current state of businessID to all of its subscribers.
func (d *Dispatcher) Broadcast(ctx context.Context, businessID int64) error {
	return d.dispatch(ctx, businessID, TriggerManual)
}

func (d *Dispatcher) dispatch(ctx context.Context, businessID int64, trigger Trigger) error {
	conns := d.registry.ConnectionsFor(businessID)
	if len(conns) == 0 {
		metrics.IncBroadcast(string(trigger), "no_subscribers")
		return nil
	}

	payload, err := d.payload(ctx, businessID)
	if err != nil {
		metrics.IncBroadcast(string(trigger), "build_failed")
		d.logger.Error().Err(err).Int64("business_id", businessID).Str("trigger", string(trigger)).Msg("broadcast abandoned")
		return err
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c Conn) {
			defer wg.Done()
			if err := d.send(ctx, c, payload); err != nil {
				d.drop(businessID, c, err)
			}
		}(c)
	}
	wg.Wait()

	metrics.IncBroadcast(string(trigger), "ok")
	return nil
}

// SendInitial delivers the current snapshot to a freshly registered connection only.
func (d *Dispatcher) SendInitial(ctx context.Context, businessID int64, conn Conn) error {
	payload, err := d.payload(ctx, businessID)
	if err != nil {
		return err
	}
	if err := d.send(ctx, conn, payload); err != nil {
		d.drop(businessID, conn, err)
		return fmt.Errorf("send initial snapshot: %w", err)
	}
	return nil
}

func (d *Dispatcher) payload(ctx context.Context, businessID int64) ([]byte, error) {
	display, err := d.builder.Build(ctx, businessID)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(display)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return payload, nil
}

func (d *Dispatcher) send(ctx context.Context, c Conn, payload []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return c.Send(sendCtx, payload)
}

func (d *Dispatcher) drop(businessID int64, c Conn, err error) {
	reason := "error"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	metrics.IncSendFailure(reason)
	d.logger.Warn().Err(err).Int64("business_id", businessID).Str("conn_id", c.ID()).Msg("dropping subscriber")

	d.registry.Unregister(businessID, c)
	_ = c.Close()
}
