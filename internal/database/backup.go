package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"comer/internal/config"

	"github.com/rs/zerolog"
)

const (
	backupPrefix          = "comer_"
	backupTimeLayout      = "20060102_150405.000"
	defaultBackupInterval = 24 * time.Hour
)

// BackupService snapshots the sqlite ledger database on a fixed interval
// and prunes snapshots past the retention window.
type BackupService struct {
	db       *DB
	dir      string
	interval time.Duration
	keep     time.Duration
	enabled  bool
	logger   *zerolog.Logger
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	s := &BackupService{
		db:       db,
		dir:      cfg.StoragePath,
		interval: defaultBackupInterval,
		keep:     time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		enabled:  cfg.Enabled,
		logger:   logger,
	}
	if cfg.Schedule != "" {
		d, err := time.ParseDuration(cfg.Schedule)
		if err != nil || d <= 0 {
			logger.Warn().Err(err).Str("schedule", cfg.Schedule).Msg("Invalid backup schedule, using 24h")
		} else {
			s.interval = d
		}
	}
	return s
}

// Start takes a snapshot immediately and then once per interval until ctx ends.
func (s *BackupService) Start(ctx context.Context) {
	if !s.enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}
	s.logger.Info().Dur("interval", s.interval).Str("dir", s.dir).Msg("Backup service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.PerformBackup(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("Backup failed")
		}
		if n := s.CleanupOldBackups(); n > 0 {
			s.logger.Info().Int("removed", n).Msg("Old backups pruned")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PerformBackup writes a consistent copy of the database and returns its path.
// VACUUM INTO is preferred; a raw file copy is the fallback.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	target := filepath.Join(s.dir, backupPrefix+time.Now().Format(backupTimeLayout)+".db")

	vacuum := fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(target, "'", "''"))
	if _, err := s.db.ExecContext(ctx, vacuum); err != nil {
		s.logger.Warn().Err(err).Msg("VACUUM INTO failed, copying the database file")
		if err := copyFile(s.db.Path(), target); err != nil {
			return "", err
		}
	}

	s.logger.Info().Str("path", target).Msg("Database backup written")
	return target, nil
}

// copyFile is not atomic for a live database.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open database file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy database file: %w", err)
	}
	return out.Close()
}

// CleanupOldBackups deletes snapshots older than the retention window and
// returns how many were removed. Files without the backup prefix are ignored.
func (s *BackupService) CleanupOldBackups() int {
	if s.keep <= 0 {
		return 0
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error().Err(err).Msg("Failed to read backup directory")
		}
		return 0
	}

	cutoff := time.Now().Add(-s.keep)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", e.Name()).Msg("Failed to delete old backup")
			continue
		}
		removed++
	}
	return removed
}
