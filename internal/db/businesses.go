package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"waitline/internal/model"
)

const businessColumns = `id, name, time_zone, open_24_hours, default_service_minutes, created_at, updated_at`

func scanBusiness(s scanner) (*model.Business, error) {
	var b model.Business
	if err := s.Scan(&b.ID, &b.Name, &b.TimeZone, &b.Open24Hours, &b.DefaultServiceMinutes, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpsertBusiness inserts the business or updates it in place, keeping created_at.
func (db *DB) UpsertBusiness(ctx context.Context, b *model.Business) error {
	return upsertBusiness(ctx, db, b)
}

func upsertBusiness(ctx context.Context, q querier, b *model.Business) error {
	now := time.Now().UTC()
	if b.TimeZone == "" {
		b.TimeZone = "UTC"
	}
	if b.DefaultServiceMinutes <= 0 {
		b.DefaultServiceMinutes = model.DefaultServiceMinutes
	}

	if b.ID == 0 {
		res, err := q.ExecContext(ctx, `
			INSERT INTO businesses (name, time_zone, open_24_hours, default_service_minutes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			b.Name, b.TimeZone, b.Open24Hours, b.DefaultServiceMinutes, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert business: %w", err)
		}
		b.ID, _ = res.LastInsertId()
		b.CreatedAt, b.UpdatedAt = now, now
		return nil
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO businesses (id, name, time_zone, open_24_hours, default_service_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			time_zone = excluded.time_zone,
			open_24_hours = excluded.open_24_hours,
			default_service_minutes = excluded.default_service_minutes,
			updated_at = excluded.updated_at`,
		b.ID, b.Name, b.TimeZone, b.Open24Hours, b.DefaultServiceMinutes, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert business %d: %w", b.ID, err)
	}
	b.UpdatedAt = now
	return nil
}

func (db *DB) GetBusiness(ctx context.Context, id int64) (*model.Business, error) {
	return getBusiness(ctx, db, id)
}

func getBusiness(ctx context.Context, q querier, id int64) (*model.Business, error) {
	b, err := scanBusiness(q.QueryRowContext(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "business", id)
	}
	return b, nil
}

// BusinessExists is used by the websocket handshake to reject unknown ids cheaply.
func (db *DB) BusinessExists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM businesses WHERE id = ?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetOperatingHours upserts one weekday row for a business.
func (db *DB) SetOperatingHours(ctx context.Context, h *model.OperatingHours) error {
	return setOperatingHours(ctx, db, h)
}

func setOperatingHours(ctx context.Context, q querier, h *model.OperatingHours) error {
	res, err := q.ExecContext(ctx, `
		UPDATE operating_hours
		SET open_time = ?, close_time = ?, lunch_start = ?, lunch_end = ?, is_closed = ?
		WHERE business_id = ? AND day_of_week = ?`,
		nullString(h.OpenTime), nullString(h.CloseTime), nullString(h.LunchStart), nullString(h.LunchEnd), h.IsClosed,
		h.BusinessID, h.DayOfWeek,
	)
	if err != nil {
		return fmt.Errorf("update operating hours: %w", err)
	}

	if rows, _ := res.RowsAffected(); rows > 0 {
		return nil
	}

	res, err = q.ExecContext(ctx, `
		INSERT INTO operating_hours (business_id, day_of_week, open_time, close_time, lunch_start, lunch_end, is_closed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.BusinessID, h.DayOfWeek,
		nullString(h.OpenTime), nullString(h.CloseTime), nullString(h.LunchStart), nullString(h.LunchEnd), h.IsClosed,
	)
	if err != nil {
		return fmt.Errorf("insert operating hours: %w", err)
	}
	h.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) ListOperatingHours(ctx context.Context, businessID int64) ([]model.OperatingHours, error) {
	return listOperatingHours(ctx, db, businessID)
}

func listOperatingHours(ctx context.Context, q querier, businessID int64) ([]model.OperatingHours, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, business_id, day_of_week, open_time, close_time, lunch_start, lunch_end, is_closed
		FROM operating_hours WHERE business_id = ? ORDER BY day_of_week`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OperatingHours
	for rows.Next() {
		var (
			h                                   model.OperatingHours
			open, closeAt, lunchStart, lunchEnd sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.BusinessID, &h.DayOfWeek, &open, &closeAt, &lunchStart, &lunchEnd, &h.IsClosed); err != nil {
			return nil, err
		}
		h.OpenTime, h.CloseTime = open.String, closeAt.String
		h.LunchStart, h.LunchEnd = lunchStart.String, lunchEnd.String
		out = append(out, h)
	}
	return out, rows.Err()
}

// UpsertService stores a service. A zero ID inserts a new row.
func (db *DB) UpsertService(ctx context.Context, s *model.Service) error {
	return upsertService(ctx, db, s)
}

func upsertService(ctx context.Context, q querier, s *model.Service) error {
	if s.ID == 0 {
		res, err := q.ExecContext(ctx, `
			INSERT INTO services (business_id, name, duration_minutes, price, is_active) VALUES (?, ?, ?, ?, ?)`,
			s.BusinessID, s.Name, s.DurationMinutes, s.Price, s.IsActive,
		)
		if err != nil {
			return fmt.Errorf("insert service: %w", err)
		}
		s.ID, _ = res.LastInsertId()
		return nil
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO services (id, business_id, name, duration_minutes, price, is_active) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			business_id = excluded.business_id,
			name = excluded.name,
			duration_minutes = excluded.duration_minutes,
			price = excluded.price,
			is_active = excluded.is_active`,
		s.ID, s.BusinessID, s.Name, s.DurationMinutes, s.Price, s.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert service %d: %w", s.ID, err)
	}
	return nil
}

func (db *DB) GetService(ctx context.Context, id int64) (*model.Service, error) {
	var s model.Service
	err := db.QueryRowContext(ctx, `
		SELECT id, business_id, name, duration_minutes, price, is_active FROM services WHERE id = ?`, id,
	).Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMinutes, &s.Price, &s.IsActive)
	if err != nil {
		return nil, notFound(err, "service", id)
	}
	return &s, nil
}

// ListServices returns every service of a business, inactive ones included, since live
// queue entries may still reference a retired service.
func (db *DB) ListServices(ctx context.Context, businessID int64) ([]model.Service, error) {
	return listServices(ctx, db, businessID)
}

func listServices(ctx context.Context, q querier, businessID int64) ([]model.Service, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, business_id, name, duration_minutes, price, is_active
		FROM services WHERE business_id = ? ORDER BY id`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMinutes, &s.Price, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListBusinessIDs returns every business id in ascending order.
func (db *DB) ListBusinessIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM businesses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
