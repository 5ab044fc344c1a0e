package service

import (
	"context"
	"fmt"
	"strings"

	"waitline/internal/events"
	"waitline/internal/metrics"
	"waitline/internal/model"
	"waitline/internal/scheduling"
)

// queueTransitions lists allowed status changes. Terminal statuses have no way out.
var queueTransitions = map[model.QueueStatus][]model.QueueStatus{
	model.QueueWaiting:   {model.QueueInService, model.QueueCancelled, model.QueueNoShow},
	model.QueueInService: {model.QueueCompleted, model.QueueCancelled},
}

func canTransitionQueue(from, to model.QueueStatus) bool {
	for _, s := range queueTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type JoinRequest struct {
	BusinessID            int64    `json:"-"`
	CustomerName          string   `json:"customer_name"`
	Phone                 string   `json:"phone,omitempty"`
	PartySize             int      `json:"party_size,omitempty"`
	EmployeeID            *int64   `json:"employee_id,omitempty"`
	ServiceID             *int64   `json:"service_id,omitempty"`
	CustomDurationMinutes *int     `json:"custom_duration_minutes,omitempty"`
	CustomPrice           *float64 `json:"custom_price,omitempty"`
	Notes                 string   `json:"notes,omitempty"`
}

// JoinQueue appends a walk-in customer to the end of the business queue.
func (s *Service) JoinQueue(ctx context.Context, req JoinRequest) (*model.QueueEntry, error) {
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		return nil, &scheduling.ValidationError{Field: "customer_name", Reason: "is required"}
	}
	if _, err := s.store.GetBusiness(ctx, req.BusinessID); err != nil {
		return nil, err
	}
	if _, err := s.businessService(ctx, req.BusinessID, req.ServiceID); err != nil {
		return nil, err
	}
	if req.EmployeeID != nil {
		if _, err := s.businessEmployee(ctx, req.BusinessID, *req.EmployeeID); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	entry := &model.QueueEntry{
		BusinessID:            req.BusinessID,
		EmployeeID:            req.EmployeeID,
		ServiceID:             req.ServiceID,
		CustomerName:          name,
		Phone:                 strings.TrimSpace(req.Phone),
		PartySize:             req.PartySize,
		Status:                model.QueueWaiting,
		JoinedAt:              now,
		CustomDurationMinutes: req.CustomDurationMinutes,
		CustomPrice:           req.CustomPrice,
		Notes:                 req.Notes,
	}
	if err := scheduling.ValidateJoin(entry, now, s.skew); err != nil {
		return nil, err
	}
	if entry.PartySize == 0 {
		entry.PartySize = 1
	}

	if err := s.store.CreateQueueEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("join queue: %w", err)
	}

	metrics.IncMutation("queue_join")
	s.logger.Info().Int64("business_id", entry.BusinessID).Int64("entry_id", entry.ID).Msg("customer joined queue")
	s.publish(events.QueueJoined, entry.BusinessID, entry.ID, string(entry.Status))
	return entry, nil
}

// UpdateQueueStatus moves an entry along its lifecycle. employeeID is recorded when the
// entry goes into service and may be nil to keep the preferred employee.
func (s *Service) UpdateQueueStatus(ctx context.Context, entryID int64, to model.QueueStatus, employeeID *int64) (*model.QueueEntry, error) {
	if !to.Valid() {
		return nil, &scheduling.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown queue status '%s'", to)}
	}
	entry, err := s.store.GetQueueEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !canTransitionQueue(entry.Status, to) {
		return nil, fmt.Errorf("cannot move queue entry %d from %s to %s: %w", entryID, entry.Status, to, ErrInvalidTransition)
	}
	if employeeID != nil {
		if to != model.QueueInService {
			return nil, &scheduling.ValidationError{Field: "employee_id", Reason: "only allowed when starting service"}
		}
		if _, err := s.businessEmployee(ctx, entry.BusinessID, *employeeID); err != nil {
			return nil, err
		}
	}

	at := s.now().UTC()
	if err := s.store.TransitionQueueEntry(ctx, entryID, entry.Status, to, employeeID, at); err != nil {
		return nil, err
	}

	entry.Status = to
	switch {
	case to == model.QueueInService:
		entry.ServiceStartedAt = &at
		if employeeID != nil {
			entry.EmployeeID = employeeID
		}
	case to.IsTerminal():
		entry.ServiceEndedAt = &at
		entry.EstimatedStart = nil
	}

	metrics.IncMutation("queue_" + string(to))
	s.publish(events.QueueStatusChanged, entry.BusinessID, entry.ID, string(to))
	return entry, nil
}

// LeaveQueue cancels an entry on the customer's behalf.
func (s *Service) LeaveQueue(ctx context.Context, entryID int64) (*model.QueueEntry, error) {
	return s.UpdateQueueStatus(ctx, entryID, model.QueueCancelled, nil)
}
