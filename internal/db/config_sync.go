package db

import (
	"context"
	"database/sql"
	"fmt"

	"waitline/internal/config"
	"waitline/internal/model"
)

// SyncResult lists what a config sync touched.
type SyncResult struct {
	Businesses []int64
	Holidays   int
}

// SyncBusinessesFromConfig applies businesses.yaml to the database: businesses, weekly
// operating hours, services and employees are upserted, employees missing from the file are
// switched off (status is otherwise left to the API), and holidays become business-wide
// closure overrides. Running it twice with the same file changes nothing.
func (db *DB) SyncBusinessesFromConfig(ctx context.Context, cfg *config.BusinessesConfig) (*SyncResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("businesses config is nil")
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	result := &SyncResult{}
	err := db.withTx(ctx, nil, func(tx *sql.Tx) error {
		for i := range cfg.Businesses {
			bc := &cfg.Businesses[i]
			if err := syncBusiness(ctx, tx, bc); err != nil {
				return fmt.Errorf("sync business %d: %w", bc.ID, err)
			}
			result.Businesses = append(result.Businesses, bc.ID)

			biz := model.Business{TimeZone: bc.TimeZone}
			for _, h := range cfg.HolidaysFor(bc.ID) {
				day, err := model.ParseDate(h.Date, biz.Location())
				if err != nil {
					return fmt.Errorf("holiday %s: %w", h.Name, err)
				}
				created, err := ensureHoliday(ctx, tx, bc.ID, day, h.Name, model.RepeatFrequency(h.Repeat))
				if err != nil {
					return fmt.Errorf("holiday %s: %w", h.Name, err)
				}
				if created {
					result.Holidays++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func syncBusiness(ctx context.Context, tx *sql.Tx, bc *config.BusinessConfig) error {
	biz := &model.Business{
		ID:                    bc.ID,
		Name:                  bc.Name,
		TimeZone:              bc.TimeZone,
		Open24Hours:           bc.Open24Hours,
		DefaultServiceMinutes: bc.DefaultServiceMinutes,
	}
	if err := upsertBusiness(ctx, tx, biz); err != nil {
		return err
	}

	for day := 0; day < 7; day++ {
		h := model.OperatingHours{BusinessID: bc.ID, DayOfWeek: day, IsClosed: true}
		if hc := bc.HoursFor(day); hc != nil {
			h.OpenTime, h.CloseTime = hc.Open, hc.Close
			h.LunchStart, h.LunchEnd = hc.LunchStart, hc.LunchEnd
			h.IsClosed = false
		}
		if err := setOperatingHours(ctx, tx, &h); err != nil {
			return fmt.Errorf("day %d: %w", day, err)
		}
	}

	for _, sc := range bc.Services {
		svc := &model.Service{
			ID:              sc.ID,
			BusinessID:      bc.ID,
			Name:            sc.Name,
			DurationMinutes: sc.DurationMinutes,
			Price:           sc.Price,
			IsActive:        !sc.Inactive,
		}
		if err := upsertService(ctx, tx, svc); err != nil {
			return err
		}
	}

	return syncEmployees(ctx, tx, bc)
}

func syncEmployees(ctx context.Context, tx *sql.Tx, bc *config.BusinessConfig) error {
	existing, err := listEmployees(ctx, tx, bc.ID)
	if err != nil {
		return err
	}
	known := make(map[int64]model.Employee, len(existing))
	for _, e := range existing {
		known[e.ID] = e
	}

	seen := make(map[int64]struct{}, len(bc.Employees))
	for _, ec := range bc.Employees {
		seen[ec.ID] = struct{}{}
		if _, ok := known[ec.ID]; ok {
			if _, err := tx.ExecContext(ctx, `UPDATE employees SET name = ? WHERE id = ?`, ec.Name, ec.ID); err != nil {
				return fmt.Errorf("update employee %d: %w", ec.ID, err)
			}
			if err := seedSchedule(ctx, tx, bc.ID, ec.ID); err != nil {
				return err
			}
			continue
		}
		if err := createEmployee(ctx, tx, &model.Employee{ID: ec.ID, BusinessID: bc.ID, Name: ec.Name}); err != nil {
			return fmt.Errorf("create employee %d: %w", ec.ID, err)
		}
	}

	// Employees that disappeared from config stop taking work but keep their history.
	for id, e := range known {
		if _, ok := seen[id]; ok || e.Status == model.EmployeeOff {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE employees SET status = ? WHERE id = ?`, model.EmployeeOff, id); err != nil {
			return fmt.Errorf("switch off employee %d: %w", id, err)
		}
	}
	return nil
}
