package postgres

import (
	"context"
	"fmt"
	"time"

	"comer/internal/models"

	"github.com/jackc/pgx/v5"
)

const syncTaskColumns = `id, task_type, booking_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (s *Store) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	if task.Status == "" {
		task.Status = models.SyncStatusPending
	}
	err := s.pool.QueryRow(ctx, `INSERT INTO sync_queue (task_type, booking_id, payload, status, retry_count, last_error, next_retry_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		task.TaskType, task.BookingID, task.Payload, task.Status, task.RetryCount, task.LastError, task.NextRetryAt,
	).Scan(&task.ID, &task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync task: %w", err)
	}
	return nil
}

// GetPendingSyncTasks returns pending and retry tasks that are due, oldest first.
func (s *Store) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	return s.querySyncTasks(ctx, `SELECT `+syncTaskColumns+` FROM sync_queue
        WHERE status IN ($1, $2) AND (next_retry_at IS NULL OR next_retry_at <= now())
        ORDER BY created_at ASC LIMIT $3`,
		models.SyncStatusPending, models.SyncStatusRetry, limit)
}

func (s *Store) GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error) {
	return s.querySyncTasks(ctx, `SELECT `+syncTaskColumns+` FROM sync_queue WHERE status = $1 ORDER BY created_at DESC`,
		models.SyncStatusFailed)
}

func (s *Store) querySyncTasks(ctx context.Context, query string, args ...any) ([]models.SyncTask, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync tasks: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.SyncTask, error) {
		var t models.SyncTask
		err := row.Scan(&t.ID, &t.TaskType, &t.BookingID, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync task: %w", err)
	}
	return tasks, nil
}

func (s *Store) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	switch status {
	case models.SyncStatusRetry:
		query = `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3, retry_count = retry_count + 1 WHERE id = $4`
	case models.SyncStatusCompleted, models.SyncStatusFailed:
		query = `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3, processed_at = now() WHERE id = $4`
	default:
		query = `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3 WHERE id = $4`
	}

	if _, err := s.pool.Exec(ctx, query, status, nullable(errMsg), nextRetryAt, id); err != nil {
		return fmt.Errorf("failed to update sync task status: %w", err)
	}
	return nil
}
