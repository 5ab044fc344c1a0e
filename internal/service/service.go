package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"waitline/internal/availability"
	"waitline/internal/events"
	"waitline/internal/model"
	"waitline/internal/scheduling"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrWrongBusiness     = errors.New("entity belongs to another business")
	ErrInactiveService   = errors.New("service is not active")
)

// SlotError carries the slot check that rejected an appointment.
type SlotError struct {
	Check scheduling.SlotCheck
}

func (e *SlotError) Error() string {
	if e.Check.ConflictID != 0 {
		return fmt.Sprintf("slot unavailable: %s (appointment %d)", e.Check.Reason, e.Check.ConflictID)
	}
	return "slot unavailable: " + e.Check.Reason
}

func (e *SlotError) Is(target error) bool {
	return target == ErrSlotUnavailable
}

// Store is the persistence the mutation paths need.
type Store interface {
	GetBusiness(ctx context.Context, id int64) (*model.Business, error)
	GetEmployee(ctx context.Context, id int64) (*model.Employee, error)
	GetService(ctx context.Context, id int64) (*model.Service, error)
	UpdateEmployeeStatus(ctx context.Context, id int64, status model.EmployeeStatus) error
	LoadCalendar(ctx context.Context, businessID int64) (*availability.Calendar, error)

	CreateQueueEntry(ctx context.Context, e *model.QueueEntry) error
	GetQueueEntry(ctx context.Context, id int64) (*model.QueueEntry, error)
	TransitionQueueEntry(ctx context.Context, id int64, from, to model.QueueStatus, employeeID *int64, at time.Time) error

	CreateAppointment(ctx context.Context, a *model.Appointment, from, to time.Time, check func(existing []model.Appointment) error) error
	GetAppointment(ctx context.Context, id int64) (*model.Appointment, error)
	ListEmployeeAppointments(ctx context.Context, employeeID int64, from, to time.Time) ([]model.Appointment, error)
	TransitionAppointment(ctx context.Context, id int64, from, to model.AppointmentStatus, at time.Time) error

	CreateOverride(ctx context.Context, o *model.ScheduleOverride) error
}

// Reviewer re-checks scheduled appointments of a business against current availability.
type Reviewer interface {
	SweepBusiness(ctx context.Context, businessID int64) (int, error)
}

// Service implements queue, appointment and override mutations. Each successful mutation
// publishes one event after the store commit.
type Service struct {
	store    Store
	bus      *events.EventBus
	reviewer Reviewer
	now      func() time.Time
	skew     time.Duration
	logger   zerolog.Logger
}

func New(store Store, bus *events.EventBus, logger *zerolog.Logger) *Service {
	return &Service{
		store:  store,
		bus:    bus,
		now:    time.Now,
		skew:   time.Minute,
		logger: logger.With().Str("component", "service").Logger(),
	}
}

// WithReviewer enables the appointment re-check after override creation.
func (s *Service) WithReviewer(r Reviewer) *Service {
	s.reviewer = r
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithJoinSkew sets how far in the past a join timestamp may lie.
func (s *Service) WithJoinSkew(d time.Duration) *Service {
	s.skew = d
	return s
}

func (s *Service) publish(eventType string, businessID, entityID int64, status string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Type:       eventType,
		BusinessID: businessID,
		EntityID:   entityID,
		Status:     status,
		CreatedAt:  s.now(),
	})
}

// businessService loads a service and checks that it belongs to businessID.
func (s *Service) businessService(ctx context.Context, businessID int64, id *int64) (*model.Service, error) {
	if id == nil {
		return nil, nil
	}
	svc, err := s.store.GetService(ctx, *id)
	if err != nil {
		return nil, err
	}
	if svc.BusinessID != businessID {
		return nil, fmt.Errorf("service %d: %w", *id, ErrWrongBusiness)
	}
	if !svc.IsActive {
		return nil, fmt.Errorf("service %d: %w", *id, ErrInactiveService)
	}
	return svc, nil
}

func (s *Service) businessEmployee(ctx context.Context, businessID, id int64) (*model.Employee, error) {
	emp, err := s.store.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	if emp.BusinessID != businessID {
		return nil, fmt.Errorf("employee %d: %w", id, ErrWrongBusiness)
	}
	return emp, nil
}

// UpdateEmployeeStatus changes an employee's live status.
func (s *Service) UpdateEmployeeStatus(ctx context.Context, employeeID int64, status model.EmployeeStatus) error {
	if !status.Valid() {
		return &scheduling.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown employee status '%s'", status)}
	}
	emp, err := s.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return err
	}
	if emp.Status == status {
		return nil
	}
	if err := s.store.UpdateEmployeeStatus(ctx, employeeID, status); err != nil {
		return err
	}
	s.publish(events.EmployeeStatusChanged, emp.BusinessID, employeeID, string(status))
	return nil
}
