package snapshot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"waitline/internal/metrics"
	"waitline/internal/model"
	"waitline/internal/scheduling"
)

// StateLoader returns one consistent read of a business's queue and schedule state.
type StateLoader interface {
	LoadState(ctx context.Context, businessID int64, now time.Time) (*scheduling.State, error)
}

// EstimateWriter caches computed estimates on the queue rows for external readers.
type EstimateWriter interface {
	SaveEstimates(ctx context.Context, businessID int64, estimates map[int64]*time.Time) error
}

type Builder struct {
	loader StateLoader
	writer EstimateWriter
	now    func() time.Time
	logger zerolog.Logger
}

func NewBuilder(loader StateLoader, logger *zerolog.Logger) *Builder {
	return &Builder{
		loader: loader,
		now:    time.Now,
		logger: logger.With().Str("component", "snapshot").Logger(),
	}
}

// WithClock overrides the time source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithEstimateWriter enables best-effort write-back of estimated starts.
func (b *Builder) WithEstimateWriter(w EstimateWriter) *Builder {
	b.writer = w
	return b
}

// Build loads state for businessID and assembles a complete QueueDisplay.
func (b *Builder) Build(ctx context.Context, businessID int64) (*QueueDisplay, error) {
	started := time.Now()
	defer func() { metrics.ObserveSnapshotBuild(time.Since(started)) }()

	now := b.now()
	state, err := b.loader.LoadState(ctx, businessID, now)
	if err != nil {
		return nil, fmt.Errorf("load state for business %d: %w", businessID, err)
	}

	estimates, err := scheduling.EstimateQueue(state, now)
	if err != nil {
		return nil, fmt.Errorf("estimate queue for business %d: %w", businessID, err)
	}

	display := Assemble(state, estimates, now)

	if b.writer != nil {
		b.writeBack(ctx, businessID, estimates)
	}
	return display, nil
}

func (b *Builder) writeBack(ctx context.Context, businessID int64, estimates []scheduling.Estimate) {
	cached := make(map[int64]*time.Time, len(estimates))
	for i := range estimates {
		if estimates[i].Known {
			start := estimates[i].Start
			cached[estimates[i].Entry.ID] = &start
		} else {
			cached[estimates[i].Entry.ID] = nil
		}
	}
	if err := b.writer.SaveEstimates(ctx, businessID, cached); err != nil {
		b.logger.Warn().Err(err).Int64("business_id", businessID).Msg("failed to cache queue estimates")
	}
}

// Assemble turns a loaded state and its estimates into the outward payload.
func Assemble(state *scheduling.State, estimates []scheduling.Estimate, now time.Time) *QueueDisplay {
	biz := state.Business()
	d := &QueueDisplay{
		BusinessID:   biz.ID,
		BusinessName: biz.Name,
		TimeZone:     biz.Location().String(),
		Waiting:      make([]WaitingItem, 0, len(estimates)),
		InService:    make([]ServingItem, 0),
		Upcoming:     make([]AppointmentItem, 0),
		GeneratedAt:  now.UTC(),
	}

	for i := range estimates {
		est := &estimates[i]
		item := WaitingItem{
			ID:            est.Entry.ID,
			Position:      est.Position,
			CustomerLabel: CustomerLabel(est.Entry.CustomerName),
			ServiceLabel:  state.ServiceName(est.Entry.ServiceID),
			EmployeeID:    est.EmployeeID,
			EmployeeName:  state.EmployeeName(est.EmployeeID),
			PartySize:     est.Entry.PartySize,
		}
		if est.Known {
			start := est.Start.UTC()
			wait := est.WaitMinutes(now)
			item.EstimatedStart = &start
			item.EstimatedWaitMinutes = &wait
		}
		d.Waiting = append(d.Waiting, item)
	}

	serving := make([]model.QueueEntry, 0)
	for _, e := range state.Entries {
		if e.Status == model.QueueInService && e.BusinessID == biz.ID {
			serving = append(serving, e)
		}
	}
	sort.SliceStable(serving, func(i, j int) bool { return startedAt(&serving[i]).Before(startedAt(&serving[j])) })
	for i := range serving {
		e := &serving[i]
		item := ServingItem{
			ID:            e.ID,
			CustomerLabel: CustomerLabel(e.CustomerName),
			ServiceLabel:  state.ServiceName(e.ServiceID),
			EmployeeID:    e.PreferredEmployee(),
			EmployeeName:  state.EmployeeName(e.PreferredEmployee()),
		}
		if e.ServiceStartedAt != nil {
			started := e.ServiceStartedAt.UTC()
			end := started.Add(state.EntryDuration(e))
			item.StartedAt = &started
			item.EstimatedEnd = &end
		}
		d.InService = append(d.InService, item)
	}

	upcoming := make([]model.Appointment, 0, len(state.Appointments))
	for _, a := range state.Appointments {
		if a.BusinessID != biz.ID {
			continue
		}
		if a.Status != model.AppointmentScheduled && a.Status != model.AppointmentInProgress {
			continue
		}
		if !a.EndTime().After(now) || !model.SameDay(a.StartTime.In(biz.Location()), now.In(biz.Location())) {
			continue
		}
		upcoming = append(upcoming, a)
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		if !upcoming[i].StartTime.Equal(upcoming[j].StartTime) {
			return upcoming[i].StartTime.Before(upcoming[j].StartTime)
		}
		return upcoming[i].ID < upcoming[j].ID
	})
	for i := range upcoming {
		a := &upcoming[i]
		d.Upcoming = append(d.Upcoming, AppointmentItem{
			ID:            a.ID,
			CustomerLabel: CustomerLabel(a.CustomerName),
			ServiceLabel:  state.ServiceName(a.ServiceID),
			EmployeeID:    a.EmployeeID,
			EmployeeName:  state.EmployeeName(a.EmployeeID),
			StartTime:     a.StartTime.UTC(),
			EndTime:       a.EndTime().UTC(),
			Status:        string(a.Status),
			NeedsReview:   a.NeedsReview,
		})
	}

	return d
}

func startedAt(e *model.QueueEntry) time.Time {
	if e.ServiceStartedAt != nil {
		return *e.ServiceStartedAt
	}
	return e.JoinedAt
}
