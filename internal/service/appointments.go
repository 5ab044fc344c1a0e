package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"waitline/internal/events"
	"waitline/internal/metrics"
	"waitline/internal/model"
	"waitline/internal/scheduling"
)

var appointmentTransitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentScheduled:  {model.AppointmentInProgress, model.AppointmentCancelled},
	model.AppointmentInProgress: {model.AppointmentCompleted, model.AppointmentCancelled},
}

func canTransitionAppointment(from, to model.AppointmentStatus) bool {
	for _, s := range appointmentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type AppointmentRequest struct {
	BusinessID            int64     `json:"-"`
	EmployeeID            int64     `json:"employee_id"`
	ServiceID             *int64    `json:"service_id,omitempty"`
	CustomerName          string    `json:"customer_name"`
	Phone                 string    `json:"phone,omitempty"`
	PartySize             int       `json:"party_size,omitempty"`
	StartTime             time.Time `json:"start_time"`
	CustomDurationMinutes *int      `json:"custom_duration_minutes,omitempty"`
	CustomPrice           *float64  `json:"custom_price,omitempty"`
	Notes                 string    `json:"notes,omitempty"`
}

// prepareAppointment resolves the request into an unsaved appointment plus the calendar
// its slot is checked against.
func (s *Service) prepareAppointment(ctx context.Context, req AppointmentRequest) (*model.Appointment, *scheduling.State, error) {
	if req.EmployeeID <= 0 {
		return nil, nil, &scheduling.ValidationError{Field: "employee_id", Reason: "is required"}
	}
	if req.StartTime.IsZero() {
		return nil, nil, &scheduling.ValidationError{Field: "start_time", Reason: "is required"}
	}
	if req.CustomDurationMinutes != nil && *req.CustomDurationMinutes <= 0 {
		return nil, nil, &scheduling.ValidationError{Field: "custom_duration_minutes", Reason: "must be positive"}
	}
	if req.PartySize < 0 {
		return nil, nil, &scheduling.ValidationError{Field: "party_size", Reason: "must not be negative"}
	}

	cal, err := s.store.LoadCalendar(ctx, req.BusinessID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.businessEmployee(ctx, req.BusinessID, req.EmployeeID); err != nil {
		return nil, nil, err
	}
	svc, err := s.businessService(ctx, req.BusinessID, req.ServiceID)
	if err != nil {
		return nil, nil, err
	}

	a := &model.Appointment{
		BusinessID:            req.BusinessID,
		EmployeeID:            req.EmployeeID,
		ServiceID:             req.ServiceID,
		CustomerName:          strings.TrimSpace(req.CustomerName),
		Phone:                 strings.TrimSpace(req.Phone),
		PartySize:             req.PartySize,
		StartTime:             req.StartTime.UTC().Truncate(time.Minute),
		DurationMinutes:       int(cal.Business.DefaultDuration() / time.Minute),
		CustomDurationMinutes: req.CustomDurationMinutes,
		CustomPrice:           req.CustomPrice,
		Status:                model.AppointmentScheduled,
		Notes:                 req.Notes,
	}
	if svc != nil {
		a.DurationMinutes = svc.DurationMinutes
		a.Price = svc.Price
	}
	if a.PartySize == 0 {
		a.PartySize = 1
	}

	return a, &scheduling.State{Calendar: *cal}, nil
}

func (s *Service) checkSlot(state *scheduling.State, a *model.Appointment, existing []model.Appointment) (scheduling.SlotCheck, error) {
	return scheduling.ValidateAppointmentSlot(&state.Calendar, existing, scheduling.SlotRequest{
		EmployeeID: a.EmployeeID,
		Start:      a.StartTime,
		Duration:   a.Duration(),
		ExcludeID:  a.ID,
	}, s.now())
}

// ValidateAppointment reports whether the requested slot fits without creating anything.
func (s *Service) ValidateAppointment(ctx context.Context, req AppointmentRequest) (scheduling.SlotCheck, error) {
	a, state, err := s.prepareAppointment(ctx, req)
	if err != nil {
		return scheduling.SlotCheck{}, err
	}
	existing, err := s.store.ListEmployeeAppointments(ctx, a.EmployeeID, a.StartTime, a.EndTime())
	if err != nil {
		return scheduling.SlotCheck{}, err
	}
	return s.checkSlot(state, a, existing)
}

// CreateAppointment books a slot. The availability and overlap check runs inside the
// store's write transaction.
func (s *Service) CreateAppointment(ctx context.Context, req AppointmentRequest) (*model.Appointment, error) {
	if strings.TrimSpace(req.CustomerName) == "" {
		return nil, &scheduling.ValidationError{Field: "customer_name", Reason: "is required"}
	}
	a, state, err := s.prepareAppointment(ctx, req)
	if err != nil {
		return nil, err
	}

	err = s.store.CreateAppointment(ctx, a, a.StartTime, a.EndTime(), func(existing []model.Appointment) error {
		check, err := s.checkSlot(state, a, existing)
		if err != nil {
			return err
		}
		if !check.Fits {
			return &SlotError{Check: check}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncMutation("appointment_create")
	s.logger.Info().
		Int64("business_id", a.BusinessID).
		Int64("appointment_id", a.ID).
		Time("start", a.StartTime).
		Msg("appointment created")
	s.publish(events.AppointmentCreated, a.BusinessID, a.ID, string(a.Status))
	return a, nil
}

// UpdateAppointmentStatus moves an appointment along its lifecycle.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, id int64, to model.AppointmentStatus) (*model.Appointment, error) {
	if !to.Valid() {
		return nil, &scheduling.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown appointment status '%s'", to)}
	}
	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransitionAppointment(a.Status, to) {
		return nil, fmt.Errorf("cannot move appointment %d from %s to %s: %w", id, a.Status, to, ErrInvalidTransition)
	}

	at := s.now().UTC()
	if err := s.store.TransitionAppointment(ctx, id, a.Status, to, at); err != nil {
		return nil, err
	}

	a.Status = to
	switch to {
	case model.AppointmentInProgress:
		a.ActualStart = &at
		a.NeedsReview = false
	case model.AppointmentCompleted:
		a.ActualEnd = &at
	case model.AppointmentCancelled:
		a.NeedsReview = false
	}

	metrics.IncMutation("appointment_" + string(to))
	s.publish(events.AppointmentStatusChanged, a.BusinessID, a.ID, string(to))
	return a, nil
}
