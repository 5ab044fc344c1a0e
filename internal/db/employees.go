package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"waitline/internal/model"
)

// CreateEmployee inserts an employee and seeds a weekly schedule from the business
// operating hours, so a new employee is immediately bookable during opening hours.
func (db *DB) CreateEmployee(ctx context.Context, e *model.Employee) error {
	return db.withTx(ctx, nil, func(tx *sql.Tx) error {
		return createEmployee(ctx, tx, e)
	})
}

func createEmployee(ctx context.Context, q querier, e *model.Employee) error {
	now := time.Now().UTC()
	if e.Status == "" {
		e.Status = model.EmployeeAvailable
	}

	var (
		res sql.Result
		err error
	)
	if e.ID == 0 {
		res, err = q.ExecContext(ctx, `
			INSERT INTO employees (business_id, name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			e.BusinessID, e.Name, e.Status, now, now)
	} else {
		res, err = q.ExecContext(ctx, `
			INSERT INTO employees (id, business_id, name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, e.BusinessID, e.Name, e.Status, now, now)
	}
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	if e.ID == 0 {
		e.ID, _ = res.LastInsertId()
	}
	e.CreatedAt, e.UpdatedAt = now, now

	return seedSchedule(ctx, q, e.BusinessID, e.ID)
}

// seedSchedule copies operating hours into weekly schedule rows that do not exist yet.
// Employees of a 24-hour business work the whole day.
func seedSchedule(ctx context.Context, q querier, businessID, employeeID int64) error {
	biz, err := getBusiness(ctx, q, businessID)
	if err != nil {
		return err
	}
	hours, err := listOperatingHours(ctx, q, businessID)
	if err != nil {
		return fmt.Errorf("load operating hours: %w", err)
	}
	byDay := make(map[int]model.OperatingHours, len(hours))
	for _, h := range hours {
		byDay[h.DayOfWeek] = h
	}

	for day := 0; day < 7; day++ {
		ws := model.WeeklySchedule{EmployeeID: employeeID, DayOfWeek: day, StartTime: "00:00", EndTime: "00:00"}
		if biz.Open24Hours {
			ws.EndTime, ws.IsWorking = "24:00", true
		} else if h, ok := byDay[day]; ok && !h.IsClosed && h.OpenTime != "" && h.CloseTime != "" {
			ws.StartTime, ws.EndTime = h.OpenTime, h.CloseTime
			ws.LunchStart, ws.LunchEnd = h.LunchStart, h.LunchEnd
			ws.IsWorking = true
		}

		_, err := q.ExecContext(ctx, `
			INSERT INTO weekly_schedules (employee_id, day_of_week, start_time, end_time, lunch_start, lunch_end, is_working)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(employee_id, day_of_week) DO NOTHING`,
			ws.EmployeeID, ws.DayOfWeek, ws.StartTime, ws.EndTime, nullString(ws.LunchStart), nullString(ws.LunchEnd), ws.IsWorking,
		)
		if err != nil {
			return fmt.Errorf("seed schedule day %d: %w", day, err)
		}
	}
	return nil
}

func (db *DB) GetEmployee(ctx context.Context, id int64) (*model.Employee, error) {
	var e model.Employee
	err := db.QueryRowContext(ctx, `
		SELECT id, business_id, name, status, created_at, updated_at FROM employees WHERE id = ?`, id,
	).Scan(&e.ID, &e.BusinessID, &e.Name, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "employee", id)
	}
	return &e, nil
}

func (db *DB) UpdateEmployeeStatus(ctx context.Context, id int64, status model.EmployeeStatus) error {
	res, err := db.ExecContext(ctx, `UPDATE employees SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update employee status: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("employee %d: %w", id, ErrNotFound)
	}
	return nil
}

func listEmployees(ctx context.Context, q querier, businessID int64) ([]model.Employee, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, business_id, name, status, created_at, updated_at
		FROM employees WHERE business_id = ? ORDER BY id`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Employee
	for rows.Next() {
		var e model.Employee
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.Name, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (db *DB) ListEmployees(ctx context.Context, businessID int64) ([]model.Employee, error) {
	return listEmployees(ctx, db, businessID)
}

// SetWeeklySchedule upserts one weekday of an employee's schedule.
func (db *DB) SetWeeklySchedule(ctx context.Context, ws *model.WeeklySchedule) error {
	res, err := db.ExecContext(ctx, `
		UPDATE weekly_schedules
		SET start_time = ?, end_time = ?, lunch_start = ?, lunch_end = ?, is_working = ?
		WHERE employee_id = ? AND day_of_week = ?`,
		ws.StartTime, ws.EndTime, nullString(ws.LunchStart), nullString(ws.LunchEnd), ws.IsWorking,
		ws.EmployeeID, ws.DayOfWeek,
	)
	if err != nil {
		return fmt.Errorf("update weekly schedule: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows > 0 {
		return nil
	}

	res, err = db.ExecContext(ctx, `
		INSERT INTO weekly_schedules (employee_id, day_of_week, start_time, end_time, lunch_start, lunch_end, is_working)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ws.EmployeeID, ws.DayOfWeek, ws.StartTime, ws.EndTime, nullString(ws.LunchStart), nullString(ws.LunchEnd), ws.IsWorking,
	)
	if err != nil {
		return fmt.Errorf("insert weekly schedule: %w", err)
	}
	ws.ID, _ = res.LastInsertId()
	return nil
}

func listSchedules(ctx context.Context, q querier, businessID int64) ([]model.WeeklySchedule, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ws.id, ws.employee_id, ws.day_of_week, ws.start_time, ws.end_time, ws.lunch_start, ws.lunch_end, ws.is_working
		FROM weekly_schedules ws
		JOIN employees e ON e.id = ws.employee_id
		WHERE e.business_id = ?
		ORDER BY ws.employee_id, ws.day_of_week`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WeeklySchedule
	for rows.Next() {
		var (
			ws                   model.WeeklySchedule
			lunchStart, lunchEnd sql.NullString
		)
		if err := rows.Scan(&ws.ID, &ws.EmployeeID, &ws.DayOfWeek, &ws.StartTime, &ws.EndTime, &lunchStart, &lunchEnd, &ws.IsWorking); err != nil {
			return nil, err
		}
		ws.LunchStart, ws.LunchEnd = lunchStart.String, lunchEnd.String
		out = append(out, ws)
	}
	return out, rows.Err()
}
