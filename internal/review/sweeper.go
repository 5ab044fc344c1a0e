// Package review flags scheduled appointments that no longer fit their employee's
// availability, for example after a sick-leave override was added.
package review

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"waitline/internal/availability"
	"waitline/internal/metrics"
	"waitline/internal/model"
	"waitline/internal/scheduling"
)

const DefaultInterval = time.Hour

type Store interface {
	ListBusinessIDs(ctx context.Context) ([]int64, error)
	LoadCalendar(ctx context.Context, businessID int64) (*availability.Calendar, error)
	ListScheduledFrom(ctx context.Context, businessID int64, from time.Time) ([]model.Appointment, error)
	FlagAppointments(ctx context.Context, ids []int64) (int, error)
}

// Sweeper re-checks scheduled appointments on demand and on a fixed interval.
type Sweeper struct {
	store    Store
	interval time.Duration
	onFlag   func(businessID int64)
	now      func() time.Time
	logger   zerolog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewSweeper builds a sweeper. onFlag, when set, is called for every business where at
// least one appointment was newly flagged.
func NewSweeper(store Store, interval time.Duration, onFlag func(businessID int64), logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		onFlag:   onFlag,
		now:      time.Now,
		logger:   logger.With().Str("component", "review").Logger(),
		stopCh:   make(chan struct{}),
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// SweepBusiness flags stale upcoming appointments of one business and returns how many
// were newly flagged.
func (s *Sweeper) SweepBusiness(ctx context.Context, businessID int64) (int, error) {
	cal, err := s.store.LoadCalendar(ctx, businessID)
	if err != nil {
		return 0, err
	}
	upcoming, err := s.store.ListScheduledFrom(ctx, businessID, s.now())
	if err != nil {
		return 0, err
	}

	stale := scheduling.FindStaleAppointments(cal, upcoming)
	ids := make([]int64, 0, len(stale))
	for _, a := range stale {
		if !a.NeedsReview {
			ids = append(ids, a.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	flagged, err := s.store.FlagAppointments(ctx, ids)
	if err != nil {
		return 0, err
	}
	if flagged > 0 {
		metrics.AddAppointmentsFlagged(flagged)
		s.logger.Warn().Int64("business_id", businessID).Int("flagged", flagged).Msg("appointments need review")
		if s.onFlag != nil {
			s.onFlag(businessID)
		}
	}
	return flagged, nil
}

// SweepAll runs SweepBusiness for every business. A failing business does not stop the pass.
func (s *Sweeper) SweepAll(ctx context.Context) int {
	ids, err := s.store.ListBusinessIDs(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list businesses for review")
		return 0
	}

	total := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		n, err := s.SweepBusiness(ctx, id)
		if err != nil {
			s.logger.Error().Err(err).Int64("business_id", id).Msg("appointment review failed")
			continue
		}
		total += n
	}
	return total
}

// Start begins the periodic sweep loop.
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
	s.logger.Info().Dur("interval", s.interval).Msg("appointment review started")
}

// Stop ends the loop and waits for an in-flight sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("appointment review stopped")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopCh
		cancel()
	}()

	s.SweepAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.SweepAll(ctx)
		}
	}
}
