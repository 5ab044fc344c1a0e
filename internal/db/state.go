package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"waitline/internal/availability"
	"waitline/internal/model"
	"waitline/internal/scheduling"
)

// LoadState reads everything a queue estimate for businessID needs in one transaction,
// so the snapshot never mixes rows from before and after a concurrent write.
func (db *DB) LoadState(ctx context.Context, businessID int64, now time.Time) (*scheduling.State, error) {
	var state scheduling.State
	err := db.withTx(ctx, nil, func(tx *sql.Tx) error {
		cal, err := loadCalendar(ctx, tx, businessID)
		if err != nil {
			return err
		}
		state.Calendar = *cal

		if state.Employees, err = listEmployees(ctx, tx, businessID); err != nil {
			return fmt.Errorf("load employees: %w", err)
		}
		if state.Services, err = listServices(ctx, tx, businessID); err != nil {
			return fmt.Errorf("load services: %w", err)
		}
		if state.Entries, err = listActiveEntries(ctx, tx, businessID); err != nil {
			return fmt.Errorf("load queue: %w", err)
		}

		dayStart := model.StartOfDay(now, cal.Business.Location())
		dayEnd := dayStart.AddDate(0, 0, 1)
		if state.Appointments, err = businessAppointments(ctx, tx, businessID, dayStart, dayEnd); err != nil {
			return fmt.Errorf("load appointments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// LoadCalendar returns the schedule inputs of a business without its queue.
func (db *DB) LoadCalendar(ctx context.Context, businessID int64) (*availability.Calendar, error) {
	return loadCalendar(ctx, db, businessID)
}

func loadCalendar(ctx context.Context, q querier, businessID int64) (*availability.Calendar, error) {
	biz, err := getBusiness(ctx, q, businessID)
	if err != nil {
		return nil, err
	}

	cal := &availability.Calendar{Business: *biz}
	if cal.Hours, err = listOperatingHours(ctx, q, businessID); err != nil {
		return nil, fmt.Errorf("load operating hours: %w", err)
	}
	if cal.Schedules, err = listSchedules(ctx, q, businessID); err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	if cal.Overrides, err = listOverrides(ctx, q, businessID); err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	return cal, nil
}
