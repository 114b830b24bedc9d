package worker

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"comer/internal/database"
	"comer/internal/models"

	"cloud.google.com/go/civil"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSheets struct {
	mu      sync.Mutex
	upserts []string
	deletes []string
	err     error
}

func (f *fakeSheets) UpsertBooking(_ context.Context, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, b.ID)
	return nil
}

func (f *fakeSheets) DeleteBookingRow(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *fakeSheets) calls() (upserts, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts), len(f.deletes)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "worker.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testBooking(id string) *models.Booking {
	return &models.Booking{
		ID:           id,
		ExperienceID: "exp-1",
		SlotID:       "slot-1",
		UserID:       "usr-1",
		Date:         civil.Date{Year: 2024, Month: time.June, Day: 1},
		StartTime:    "10:00 AM",
		EndTime:      "12:00 PM",
		Price:        30,
		Currency:     "USD",
		CreatedAt:    time.Now(),
	}
}

type taskRow struct {
	status     string
	retryCount int
	nextRetry  *time.Time
}

func loadTask(t *testing.T, db *database.DB, id int64) taskRow {
	t.Helper()
	var r taskRow
	err := db.QueryRowContext(context.Background(),
		`SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id).
		Scan(&r.status, &r.retryCount, &r.nextRetry)
	require.NoError(t, err)
	return r
}

func TestSheetsWorker_ProcessUpsert(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	w := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, testBooking("bk-1")))

	task, ok := w.tryLocalQueue()
	require.True(t, ok, "without redis the task goes to the memory queue")
	assert.Equal(t, "bk-1", task.BookingID)
	w.processTask(ctx, &task)

	row := loadTask(t, db, task.ID)
	assert.Equal(t, models.SyncStatusCompleted, row.status)
	assert.Zero(t, row.retryCount)
	assert.Nil(t, row.nextRetry)

	upserts, _ := sheets.calls()
	assert.Equal(t, 1, upserts)
}

func TestSheetsWorker_ProcessDelete(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	w := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskDelete, testBooking("bk-2")))
	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	assert.Equal(t, []string{"bk-2"}, sheets.deletes)
	assert.Equal(t, models.SyncStatusCompleted, loadTask(t, db, task.ID).status)
}

func TestSheetsWorker_EnqueueRejectsBadInput(t *testing.T) {
	w := NewSheetsWorker(newTestDB(t), &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	assert.Error(t, w.EnqueueTask(ctx, "update_status", testBooking("bk-1")))
	assert.Error(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, nil))
	assert.Error(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, &models.Booking{}))

	_, ok := w.tryLocalQueue()
	assert.False(t, ok)
}

func TestSheetsWorker_RetryThenFail(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("quota exceeded")}
	w := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond}, nil)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, testBooking("bk-3")))
	task, ok := w.tryLocalQueue()
	require.True(t, ok)

	w.processTask(ctx, &task)
	row := loadTask(t, db, task.ID)
	assert.Equal(t, models.SyncStatusRetry, row.status)
	assert.Equal(t, 1, row.retryCount)
	require.NotNil(t, row.nextRetry)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, w.drainPending(ctx), "the retry is due and gets polled")

	row = loadTask(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, row.status)

	failed, err := w.FailedTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "bk-3", failed[0].BookingID)
	require.NotNil(t, failed[0].LastError)
	assert.Contains(t, *failed[0].LastError, "quota exceeded")
}

func TestSheetsWorker_BadPayloadFailsImmediately(t *testing.T) {
	db := newTestDB(t)
	w := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	task := models.SyncTask{TaskType: models.SyncTaskUpsert, BookingID: "bk-4", Payload: "{not json"}
	require.NoError(t, db.CreateSyncTask(ctx, &task))

	w.processTask(ctx, &task)
	assert.Equal(t, models.SyncStatusFailed, loadTask(t, db, task.ID).status)
}

func TestSheetsWorker_RedisQueueAndDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	db := newTestDB(t)
	sheets := &fakeSheets{}
	w := NewSheetsWorker(db, sheets, client, RetryPolicy{MaxRetries: 1}, nil)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, testBooking("bk-5")))
	_, ok := w.tryLocalQueue()
	assert.False(t, ok, "with redis the memory queue stays empty")

	queued, err := mr.List(redisQueueKey)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	task, ok := w.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, "bk-5", task.BookingID)

	sheets.err = errors.New("sheet gone")
	w.processTask(ctx, &task)
	assert.Equal(t, models.SyncStatusFailed, loadTask(t, db, task.ID).status)

	dead, err := mr.List(deadLetterKey)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	var deadTask models.SyncTask
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &deadTask))
	assert.Equal(t, task.ID, deadTask.ID)
}

func TestSheetsWorker_RedisDownFallsBackToMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	w := NewSheetsWorker(newTestDB(t), &fakeSheets{}, client, RetryPolicy{}, nil)
	require.NoError(t, w.EnqueueTask(context.Background(), models.SyncTaskUpsert, testBooking("bk-6")))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	assert.Equal(t, "bk-6", task.BookingID)
}

func TestSheetsWorker_StartDrainsQueue(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	w := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)
	w.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, testBooking("bk-7")))
	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskDelete, testBooking("bk-7")))

	assert.Eventually(t, func() bool {
		u, d := sheets.calls()
		return u >= 1 && d >= 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRetryPolicy_NextDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Second, p.NextDelay(0))
	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, 5*time.Second, p.NextDelay(4))
	assert.Equal(t, 5*time.Second, p.NextDelay(60))

	assert.Equal(t, 2*time.Second, RetryPolicy{}.NextDelay(1))
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3}
	assert.False(t, p.Exhausted(0))
	assert.False(t, p.Exhausted(1))
	assert.True(t, p.Exhausted(2))
}
