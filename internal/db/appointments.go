package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"waitline/internal/model"
)

const appointmentColumns = `id, business_id, employee_id, service_id, customer_name, phone, party_size, start_time,
	duration_minutes, price, custom_duration_minutes, custom_price, status, notes, needs_review, actual_start, actual_end,
	created_at, updated_at`

func scanAppointment(s scanner) (*model.Appointment, error) {
	var (
		a                    model.Appointment
		serviceID, customDur sql.NullInt64
		phone, notes         sql.NullString
		customPrice          sql.NullFloat64
		actualS, actualE     sql.NullTime
	)
	err := s.Scan(&a.ID, &a.BusinessID, &a.EmployeeID, &serviceID, &a.CustomerName, &phone, &a.PartySize, &a.StartTime,
		&a.DurationMinutes, &a.Price, &customDur, &customPrice, &a.Status, &notes, &a.NeedsReview, &actualS, &actualE,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.StartTime = a.StartTime.UTC()
	a.ServiceID = int64Ptr(serviceID)
	a.Phone, a.Notes = phone.String, notes.String
	a.CustomDurationMinutes = intPtr(customDur)
	a.CustomPrice = floatPtr(customPrice)
	a.ActualStart, a.ActualEnd = timePtr(actualS), timePtr(actualE)
	return &a, nil
}

// CreateAppointment inserts a booking after check accepts the employee's current
// appointments that may overlap [from, to); a non-nil error from check aborts the
// insert. The read and the insert share one transaction and writes are serialized,
// so two overlapping bookings cannot both pass the check.
func (db *DB) CreateAppointment(ctx context.Context, a *model.Appointment, from, to time.Time, check func(existing []model.Appointment) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	return db.withTx(ctx, nil, func(tx *sql.Tx) error {
		existing, err := employeeAppointments(ctx, tx, a.EmployeeID, from, to)
		if err != nil {
			return fmt.Errorf("load employee appointments: %w", err)
		}
		if check != nil {
			if err := check(existing); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if a.Status == "" {
			a.Status = model.AppointmentScheduled
		}
		if a.PartySize <= 0 {
			a.PartySize = 1
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO appointments (business_id, employee_id, service_id, customer_name, phone, party_size, start_time,
				duration_minutes, price, custom_duration_minutes, custom_price, status, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.BusinessID, a.EmployeeID, nullInt64(a.ServiceID), a.CustomerName, nullString(a.Phone), a.PartySize,
			a.StartTime.UTC(), a.DurationMinutes, a.Price, nullInt(a.CustomDurationMinutes), nullFloat(a.CustomPrice),
			a.Status, nullString(a.Notes), now, now,
		)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		a.ID, _ = res.LastInsertId()
		a.CreatedAt, a.UpdatedAt = now, now
		return nil
	})
}

func (db *DB) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	a, err := scanAppointment(db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "appointment", id)
	}
	return a, nil
}

// TransitionAppointment changes status when the appointment is still in from. Starting
// records actual_start and finishing records actual_end.
func (db *DB) TransitionAppointment(ctx context.Context, id int64, from, to model.AppointmentStatus, at time.Time) error {
	at = at.UTC()
	var (
		res sql.Result
		err error
	)
	switch to {
	case model.AppointmentInProgress:
		res, err = db.ExecContext(ctx, `
			UPDATE appointments SET status = ?, actual_start = ?, needs_review = 0, updated_at = ?
			WHERE id = ? AND status = ?`, to, at, at, id, from)
	case model.AppointmentCompleted:
		res, err = db.ExecContext(ctx, `
			UPDATE appointments SET status = ?, actual_end = ?, updated_at = ?
			WHERE id = ? AND status = ?`, to, at, at, id, from)
	default:
		res, err = db.ExecContext(ctx, `
			UPDATE appointments SET status = ?, needs_review = 0, updated_at = ?
			WHERE id = ? AND status = ?`, to, at, id, from)
	}
	if err != nil {
		return fmt.Errorf("update appointment %d: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("appointment %d: %w", id, ErrStatusChanged)
	}
	return nil
}

func queryAppointments(ctx context.Context, q querier, where string, args ...any) ([]model.Appointment, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE `+where+` ORDER BY start_time, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Appointments can run past midnight, so the window starts a day early.
func employeeAppointments(ctx context.Context, q querier, employeeID int64, from, to time.Time) ([]model.Appointment, error) {
	return queryAppointments(ctx, q, `employee_id = ? AND start_time >= ? AND start_time < ? AND status != ?`,
		employeeID, from.Add(-24*time.Hour).UTC(), to.UTC(), model.AppointmentCancelled)
}

// ListEmployeeAppointments returns non-cancelled appointments that may overlap [from, to).
func (db *DB) ListEmployeeAppointments(ctx context.Context, employeeID int64, from, to time.Time) ([]model.Appointment, error) {
	return employeeAppointments(ctx, db, employeeID, from, to)
}

func businessAppointments(ctx context.Context, q querier, businessID int64, from, to time.Time) ([]model.Appointment, error) {
	return queryAppointments(ctx, q, `business_id = ? AND start_time >= ? AND start_time < ? AND status != ?`,
		businessID, from.Add(-24*time.Hour).UTC(), to.UTC(), model.AppointmentCancelled)
}

// ListBusinessAppointments returns non-cancelled appointments that may overlap [from, to).
func (db *DB) ListBusinessAppointments(ctx context.Context, businessID int64, from, to time.Time) ([]model.Appointment, error) {
	return businessAppointments(ctx, db, businessID, from, to)
}

// ListScheduledFrom returns scheduled appointments starting at or after from.
func (db *DB) ListScheduledFrom(ctx context.Context, businessID int64, from time.Time) ([]model.Appointment, error) {
	return queryAppointments(ctx, db, `business_id = ? AND status = ? AND start_time >= ?`,
		businessID, model.AppointmentScheduled, from.UTC())
}

// FlagAppointments marks appointments for manual review and returns how many changed.
func (db *DB) FlagAppointments(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	flagged := 0
	err := db.withTx(ctx, nil, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		for _, id := range ids {
			res, err := tx.ExecContext(ctx, `
				UPDATE appointments SET needs_review = 1, updated_at = ?
				WHERE id = ? AND needs_review = 0 AND status = ?`, now, id, model.AppointmentScheduled)
			if err != nil {
				return fmt.Errorf("flag appointment %d: %w", id, err)
			}
			n, _ := res.RowsAffected()
			flagged += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return flagged, nil
}
