package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"waitline/internal/metrics"
)

const (
	DefaultNotifyQueueSize = 256

	// A stuck subscriber holds a worker for up to the send timeout.
	DefaultNotifyWorkers = 4
)

// Notifier decouples mutation paths from fan-out: Notify enqueues a business id and dedicated
// workers broadcast it. Notifications are not coalesced.
type Notifier struct {
	dispatcher *Dispatcher
	queue      chan int64
	workers    int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	logger zerolog.Logger
}

func NewNotifier(dispatcher *Dispatcher, queueSize, workers int, logger *zerolog.Logger) *Notifier {
	if queueSize <= 0 {
		queueSize = DefaultNotifyQueueSize
	}
	if workers <= 0 {
		workers = DefaultNotifyWorkers
	}
	return &Notifier{
		dispatcher: dispatcher,
		queue:      make(chan int64, queueSize),
		workers:    workers,
		logger:     logger.With().Str("component", "notifier").Logger(),
	}
}

// Notify schedules a broadcast for businessID without blocking. It reports false when the
// notification was dropped; the periodic refresh covers dropped notifications.
func (n *Notifier) Notify(businessID int64) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return false
	}

	select {
	case n.queue <- businessID:
		return true
	default:
		metrics.IncNotifyDropped()
		n.logger.Warn().Int64("business_id", businessID).Msg("notify queue full, dropping")
		return false
	}
}

// Start launches the broadcast workers.
func (n *Notifier) Start(ctx context.Context) {
	for i := 0; i < n.workers; i++ {
		n.wg.Add(1)
		go n.worker(ctx)
	}
}

func (n *Notifier) worker(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-n.queue:
			if !ok {
				return
			}
			_ = n.dispatcher.dispatch(ctx, id, TriggerChange)
		}
	}
}

// Stop rejects new notifications, drains the queue and waits for the workers.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	n.wg.Wait()
}

// Pending returns the number of queued notifications.
func (n *Notifier) Pending() int {
	return len(n.queue)
}
