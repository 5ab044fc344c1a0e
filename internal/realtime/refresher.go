package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"waitline/internal/metrics"
)

const DefaultRefreshInterval = 30 * time.Second

// Refresher re-broadcasts every business with live connections on a fixed interval. A tick that
// arrives while the previous pass is still running is skipped.
type Refresher struct {
	registry    *Registry
	dispatcher  *Dispatcher
	interval    time.Duration
	parallelism int
	running     atomic.Bool
	wg          sync.WaitGroup
	logger      zerolog.Logger
}

func NewRefresher(registry *Registry, dispatcher *Dispatcher, interval time.Duration, parallelism int, logger *zerolog.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Refresher{
		registry:    registry,
		dispatcher:  dispatcher,
		interval:    interval,
		parallelism: parallelism,
		logger:      logger.With().Str("component", "refresher").Logger(),
	}
}

// Run ticks until ctx is cancelled, then waits for an in-flight pass to finish.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("periodic refresh started")
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			r.logger.Info().Msg("periodic refresh stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		metrics.IncRefreshSkipped()
		r.logger.Debug().Msg("previous refresh still running, tick skipped")
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		r.pass(ctx)
	}()
}

// RunOnce performs one pass synchronously. It returns false if a pass was already running.
func (r *Refresher) RunOnce(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		metrics.IncRefreshSkipped()
		return false
	}
	defer r.running.Store(false)
	r.pass(ctx)
	return true
}

func (r *Refresher) pass(ctx context.Context) {
	businesses := r.registry.Businesses()
	if len(businesses) == 0 {
		return
	}

	sem := make(chan struct{}, r.parallelism)
	var wg sync.WaitGroup
	for _, id := range businesses {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			defer func() { <-sem }()
			_ = r.dispatcher.dispatch(ctx, id, TriggerRefresh)
		}(id)
	}
	wg.Wait()
}
