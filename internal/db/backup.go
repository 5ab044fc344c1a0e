package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Backup writes a consistent copy of the database to dest.
func (db *DB) Backup(dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	if _, err := db.Exec(`VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// CleanupBackups removes backup files in dir older than retention and returns how many were deleted.
func (db *DB) CleanupBackups(dir string, retention time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-retention)
	deleted := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".db" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				db.logger.Warn().Err(err).Str("file", e.Name()).Msg("failed to delete old backup")
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}

type BackupService struct {
	db        *DB
	dir       string
	interval  time.Duration
	retention time.Duration
	logger    zerolog.Logger
}

// NewBackupService snapshots db into dir every interval. A zero retention keeps every backup.
func NewBackupService(db *DB, dir string, interval, retention time.Duration, logger *zerolog.Logger) *BackupService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &BackupService{
		db:        db,
		dir:       dir,
		interval:  interval,
		retention: retention,
		logger:    logger.With().Str("component", "backup").Logger(),
	}
}

// Start runs one backup immediately and then one per interval until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Str("dir", s.dir).Msg("backup service started")

	if _, err := s.PerformBackup(time.Now()); err != nil {
		s.logger.Error().Err(err).Msg("initial backup failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := s.PerformBackup(now); err != nil {
				s.logger.Error().Err(err).Msg("scheduled backup failed")
			}
			s.CleanupOldBackups()
		}
	}
}

// PerformBackup writes backup_<timestamp>.db and returns its path.
func (s *BackupService) PerformBackup(now time.Time) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("backup_%s.db", now.UTC().Format("20060102_150405")))
	if err := s.db.Backup(path); err != nil {
		return "", err
	}
	s.logger.Info().Str("path", path).Msg("database backup completed")
	return path, nil
}

func (s *BackupService) CleanupOldBackups() {
	if s.retention <= 0 {
		return
	}
	n, err := s.db.CleanupBackups(s.dir, s.retention)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to clean up old backups")
		return
	}
	if n > 0 {
		s.logger.Info().Int("deleted", n).Msg("old backups removed")
	}
}
