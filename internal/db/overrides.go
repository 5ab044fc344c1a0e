package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"waitline/internal/model"
)

const overrideColumns = `id, business_id, employee_id, start_date, end_date, override_type, reason, is_closed,
	start_time, end_time, lunch_start, lunch_end, repeat_frequency, created_at`

// CreateOverride stores a schedule override. Dates are kept as calendar dates without a zone.
func (db *DB) CreateOverride(ctx context.Context, o *model.ScheduleOverride) error {
	return createOverride(ctx, db, o)
}

func createOverride(ctx context.Context, q querier, o *model.ScheduleOverride) error {
	if o.EndDate.IsZero() {
		o.EndDate = o.StartDate
	}
	if o.Repeat == "" {
		o.Repeat = model.RepeatNone
	}
	now := time.Now().UTC()

	res, err := q.ExecContext(ctx, `
		INSERT INTO schedule_overrides (business_id, employee_id, start_date, end_date, override_type, reason, is_closed,
			start_time, end_time, lunch_start, lunch_end, repeat_frequency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.BusinessID, nullInt64(o.EmployeeID), model.FormatDate(o.StartDate), model.FormatDate(o.EndDate),
		o.Type, nullString(o.Reason), o.IsClosed,
		nullString(o.StartTime), nullString(o.EndTime), nullString(o.LunchStart), nullString(o.LunchEnd),
		o.Repeat, now,
	)
	if err != nil {
		return fmt.Errorf("insert override: %w", err)
	}
	o.ID, _ = res.LastInsertId()
	o.CreatedAt = now
	return nil
}

func scanOverride(s scanner) (*model.ScheduleOverride, error) {
	var (
		o                                          model.ScheduleOverride
		employeeID                                 sql.NullInt64
		startDate, endDate                         string
		reason, startTime, endTime, lunchS, lunchE sql.NullString
	)
	err := s.Scan(&o.ID, &o.BusinessID, &employeeID, &startDate, &endDate, &o.Type, &reason, &o.IsClosed,
		&startTime, &endTime, &lunchS, &lunchE, &o.Repeat, &o.CreatedAt)
	if err != nil {
		return nil, err
	}

	if o.StartDate, err = model.ParseDate(startDate, time.UTC); err != nil {
		return nil, fmt.Errorf("override %d: %w", o.ID, err)
	}
	if o.EndDate, err = model.ParseDate(endDate, time.UTC); err != nil {
		return nil, fmt.Errorf("override %d: %w", o.ID, err)
	}
	o.EmployeeID = int64Ptr(employeeID)
	o.Reason = reason.String
	o.StartTime, o.EndTime = startTime.String, endTime.String
	o.LunchStart, o.LunchEnd = lunchS.String, lunchE.String
	return &o, nil
}

// ListOverrides returns every override of a business ordered by id.
func (db *DB) ListOverrides(ctx context.Context, businessID int64) ([]model.ScheduleOverride, error) {
	return listOverrides(ctx, db, businessID)
}

// Repeating overrides can match any later date, so the whole set is loaded and
// filtered by the resolver.
func listOverrides(ctx context.Context, q querier, businessID int64) ([]model.ScheduleOverride, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+overrideColumns+`
		FROM schedule_overrides WHERE business_id = ? ORDER BY id`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScheduleOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (db *DB) DeleteOverride(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM schedule_overrides WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("override %d: %w", id, ErrNotFound)
	}
	return nil
}

// ensureHoliday inserts a business-wide holiday override unless an identical one exists.
func ensureHoliday(ctx context.Context, q querier, businessID int64, day time.Time, name string, repeat model.RepeatFrequency) (bool, error) {
	if repeat == "" {
		repeat = model.RepeatNone
	}
	date := model.FormatDate(day)

	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM schedule_overrides
		WHERE business_id = ? AND employee_id IS NULL AND override_type = ? AND start_date = ? AND repeat_frequency = ?`,
		businessID, model.OverrideHoliday, date, repeat,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	err = createOverride(ctx, q, &model.ScheduleOverride{
		BusinessID: businessID,
		StartDate:  day,
		EndDate:    day,
		Type:       model.OverrideHoliday,
		Reason:     name,
		IsClosed:   true,
		Repeat:     repeat,
	})
	return err == nil, err
}
