package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStatusChanged means the row left the expected status before the update applied.
	ErrStatusChanged = errors.New("status changed concurrently")
)

// DB wraps sql.DB for the queue engine. All timestamps are stored in UTC.
type DB struct {
	*sql.DB
	path string
	// writeMu serializes check-then-insert transactions.
	writeMu sync.Mutex
	logger  *zerolog.Logger
}

// NewDB opens database at path and runs migrations.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := createTables(sqlDB); err != nil {
		return nil, err
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: sqlDB, path: path, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS businesses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			time_zone TEXT NOT NULL DEFAULT 'UTC',
			open_24_hours BOOLEAN NOT NULL DEFAULT 0,
			default_service_minutes INTEGER NOT NULL DEFAULT 20,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS operating_hours (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			business_id INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			open_time TEXT,
			close_time TEXT,
			lunch_start TEXT,
			lunch_end TEXT,
			is_closed BOOLEAN NOT NULL DEFAULT 0,
			UNIQUE (business_id, day_of_week),
			FOREIGN KEY (business_id) REFERENCES businesses(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS employees (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			business_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'available',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (business_id) REFERENCES businesses(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS weekly_schedules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			employee_id INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			lunch_start TEXT,
			lunch_end TEXT,
			is_working BOOLEAN NOT NULL DEFAULT 1,
			UNIQUE (employee_id, day_of_week),
			FOREIGN KEY (employee_id) REFERENCES employees(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS schedule_overrides (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			business_id INTEGER NOT NULL,
			employee_id INTEGER,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			override_type TEXT NOT NULL,
			reason TEXT,
			is_closed BOOLEAN NOT NULL DEFAULT 0,
			start_time TEXT,
			end_time TEXT,
			lunch_start TEXT,
			lunch_end TEXT,
			repeat_frequency TEXT NOT NULL DEFAULT 'none',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (business_id) REFERENCES businesses(id) ON DELETE CASCADE,
			FOREIGN KEY (employee_id) REFERENCES employees(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			business_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			price REAL NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			FOREIGN KEY (business_id) REFERENCES businesses(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS queue_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			business_id INTEGER NOT NULL,
			employee_id INTEGER,
			service_id INTEGER,
			customer_name TEXT NOT NULL,
			phone TEXT,
			party_size INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'waiting',
			joined_at DATETIME NOT NULL,
			estimated_start DATETIME,
			custom_duration_minutes INTEGER,
			custom_price REAL,
			notes TEXT,
			service_started_at DATETIME,
			service_ended_at DATETIME,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (business_id) REFERENCES businesses(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			business_id INTEGER NOT NULL,
			employee_id INTEGER NOT NULL,
			service_id INTEGER,
			customer_name TEXT NOT NULL,
			phone TEXT,
			party_size INTEGER NOT NULL DEFAULT 1,
			start_time DATETIME NOT NULL,
			duration_minutes INTEGER NOT NULL,
			price REAL NOT NULL DEFAULT 0,
			custom_duration_minutes INTEGER,
			custom_price REAL,
			status TEXT NOT NULL DEFAULT 'scheduled',
			notes TEXT,
			needs_review BOOLEAN NOT NULL DEFAULT 0,
			actual_start DATETIME,
			actual_end DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (business_id) REFERENCES businesses(id) ON DELETE CASCADE,
			FOREIGN KEY (employee_id) REFERENCES employees(id)
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_employees_business ON employees(business_id)`,
		`CREATE INDEX IF NOT EXISTS idx_overrides_business ON schedule_overrides(business_id, start_date)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_business_status ON queue_entries(business_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_business_start ON appointments(business_id, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_employee_start ON appointments(employee_id, start_time)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// withTx runs fn inside a transaction and commits when it returns nil.
func (db *DB) withTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time.UTC()
	return &v
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return err
}
