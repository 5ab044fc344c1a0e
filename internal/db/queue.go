package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"waitline/internal/model"
)

const queueColumns = `id, business_id, employee_id, service_id, customer_name, phone, party_size, status, joined_at,
	estimated_start, custom_duration_minutes, custom_price, notes, service_started_at, service_ended_at, updated_at`

func scanQueueEntry(s scanner) (*model.QueueEntry, error) {
	var (
		e                                model.QueueEntry
		employeeID, serviceID, customDur sql.NullInt64
		phone, notes                     sql.NullString
		estimated, started, ended        sql.NullTime
		customPrice                      sql.NullFloat64
	)
	err := s.Scan(&e.ID, &e.BusinessID, &employeeID, &serviceID, &e.CustomerName, &phone, &e.PartySize, &e.Status,
		&e.JoinedAt, &estimated, &customDur, &customPrice, &notes, &started, &ended, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.JoinedAt = e.JoinedAt.UTC()
	e.EmployeeID = int64Ptr(employeeID)
	e.ServiceID = int64Ptr(serviceID)
	e.Phone, e.Notes = phone.String, notes.String
	e.EstimatedStart = timePtr(estimated)
	e.CustomDurationMinutes = intPtr(customDur)
	e.CustomPrice = floatPtr(customPrice)
	e.ServiceStartedAt = timePtr(started)
	e.ServiceEndedAt = timePtr(ended)
	return &e, nil
}

// CreateQueueEntry appends a walk-in customer to the queue.
func (db *DB) CreateQueueEntry(ctx context.Context, e *model.QueueEntry) error {
	now := time.Now().UTC()
	if e.JoinedAt.IsZero() {
		e.JoinedAt = now
	}
	if e.Status == "" {
		e.Status = model.QueueWaiting
	}
	if e.PartySize <= 0 {
		e.PartySize = 1
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO queue_entries (business_id, employee_id, service_id, customer_name, phone, party_size, status, joined_at,
			custom_duration_minutes, custom_price, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BusinessID, nullInt64(e.EmployeeID), nullInt64(e.ServiceID), e.CustomerName, nullString(e.Phone), e.PartySize,
		e.Status, e.JoinedAt.UTC(), nullInt(e.CustomDurationMinutes), nullFloat(e.CustomPrice), nullString(e.Notes), now,
	)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	e.UpdatedAt = now
	return nil
}

func (db *DB) GetQueueEntry(ctx context.Context, id int64) (*model.QueueEntry, error) {
	e, err := scanQueueEntry(db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queue_entries WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "queue entry", id)
	}
	return e, nil
}

// TransitionQueueEntry moves an entry from one status to another. Moving into service
// records the start time and the serving employee; a terminal status records the end time.
// ErrStatusChanged is returned when the entry is no longer in the from status.
func (db *DB) TransitionQueueEntry(ctx context.Context, id int64, from, to model.QueueStatus, employeeID *int64, at time.Time) error {
	at = at.UTC()
	var (
		res sql.Result
		err error
	)
	switch {
	case to == model.QueueInService:
		res, err = db.ExecContext(ctx, `
			UPDATE queue_entries
			SET status = ?, service_started_at = ?, employee_id = COALESCE(?, employee_id), updated_at = ?
			WHERE id = ? AND status = ?`,
			to, at, nullInt64(employeeID), at, id, from)
	case to.IsTerminal():
		res, err = db.ExecContext(ctx, `
			UPDATE queue_entries
			SET status = ?, service_ended_at = ?, estimated_start = NULL, updated_at = ?
			WHERE id = ? AND status = ?`,
			to, at, at, id, from)
	default:
		res, err = db.ExecContext(ctx, `
			UPDATE queue_entries SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to, at, id, from)
	}
	if err != nil {
		return fmt.Errorf("update queue entry %d: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("queue entry %d: %w", id, ErrStatusChanged)
	}
	return nil
}

func listActiveEntries(ctx context.Context, q querier, businessID int64) ([]model.QueueEntry, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+queueColumns+`
		FROM queue_entries
		WHERE business_id = ? AND status IN (?, ?)
		ORDER BY joined_at, id`, businessID, model.QueueWaiting, model.QueueInService)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ListActiveEntries returns waiting and in-service entries in join order.
func (db *DB) ListActiveEntries(ctx context.Context, businessID int64) ([]model.QueueEntry, error) {
	return listActiveEntries(ctx, db, businessID)
}

// SaveEstimates caches estimated starts on waiting rows. A nil value clears the estimate.
func (db *DB) SaveEstimates(ctx context.Context, businessID int64, estimates map[int64]*time.Time) error {
	if len(estimates) == 0 {
		return nil
	}
	return db.withTx(ctx, nil, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE queue_entries SET estimated_start = ?
			WHERE id = ? AND business_id = ? AND status = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for id, start := range estimates {
			if _, err := stmt.ExecContext(ctx, nullTime(start), id, businessID, model.QueueWaiting); err != nil {
				return fmt.Errorf("save estimate for entry %d: %w", id, err)
			}
		}
		return nil
	})
}
