package service

import (
	"context"
	"fmt"

	"waitline/internal/events"
	"waitline/internal/metrics"
	"waitline/internal/model"
	"waitline/internal/scheduling"
)

// CreateOverride stores a schedule override and re-checks the business's scheduled
// appointments against the new availability. It returns how many appointments were newly
// flagged for review; appointments are never cancelled automatically.
func (s *Service) CreateOverride(ctx context.Context, o *model.ScheduleOverride) (int, error) {
	if err := o.Validate(); err != nil {
		return 0, &scheduling.ValidationError{Field: "override", Reason: err.Error()}
	}
	if _, err := s.store.GetBusiness(ctx, o.BusinessID); err != nil {
		return 0, err
	}
	if o.EmployeeID != nil {
		if _, err := s.businessEmployee(ctx, o.BusinessID, *o.EmployeeID); err != nil {
			return 0, err
		}
	}

	if err := s.store.CreateOverride(ctx, o); err != nil {
		return 0, fmt.Errorf("create override: %w", err)
	}
	metrics.IncMutation("override_create")
	s.logger.Info().
		Int64("business_id", o.BusinessID).
		Int64("override_id", o.ID).
		Str("type", string(o.Type)).
		Msg("schedule override created")

	flagged := 0
	if s.reviewer != nil {
		n, err := s.reviewer.SweepBusiness(ctx, o.BusinessID)
		if err != nil {
			s.logger.Error().Err(err).Int64("business_id", o.BusinessID).Msg("appointment review after override failed")
		}
		flagged = n
	}

	s.publish(events.OverrideCreated, o.BusinessID, o.ID, string(o.Type))
	return flagged, nil
}
