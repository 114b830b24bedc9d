package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"comer/internal/auth"
	"comer/internal/config"
	"comer/internal/database"
	"comer/internal/models"
	"comer/internal/repository"
	"comer/internal/storage"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

// payloads returns every payload published under eventType.
func (m *mockPublisher) payloads(eventType string) []interface{} {
	var out []interface{}
	for _, c := range m.Calls {
		if c.Method == "PublishJSON" && c.Arguments.String(0) == eventType {
			out = append(out, c.Arguments.Get(1))
		}
	}
	return out
}

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error {
	return m.Called(ctx, taskType, booking).Error(0)
}

// brokenCache fails every call.
type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) GetLedger(context.Context, string) (*models.Ledger, error) { return nil, errCacheDown }
func (brokenCache) SetLedger(context.Context, *models.Ledger, time.Duration) error {
	return errCacheDown
}
func (brokenCache) InvalidateLedger(context.Context, string) error { return errCacheDown }
func (brokenCache) CheckRateLimit(context.Context, string, int, time.Duration) (bool, error) {
	return false, errCacheDown
}

type testEnv struct {
	db          *database.DB
	cache       *repository.MemoryLedgerCache
	store       *storage.LocalStore
	bus         *mockPublisher
	worker      *mockWorker
	tokens      *auth.TokenService
	bookings    *BookingService
	experiences *ExperienceService
	comments    *CommentService
	users       *UserService
}

var today = civil.Date{Year: 2024, Month: time.May, Day: 20}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, config.BookingConfig{
		ReserveLimit:     100,
		ReserveWindow:    time.Minute,
		MaxGuestLimit:    models.DefaultMaxGuestLimit,
		RandomSampleSize: models.DefaultRandomSampleSize,
	})
}

func newTestEnvWith(t *testing.T, cfg config.BookingConfig) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "comer.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewLocalStore(config.UploadsConfig{
		Path:          t.TempDir(),
		MaxFileBytes:  1 << 20,
		PublicBaseURL: "/uploads",
	})
	require.NoError(t, err)

	tokens, err := auth.NewTokenService(make([]byte, 32), 15*time.Minute, time.Hour)
	require.NoError(t, err)

	bus := &mockPublisher{}
	bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil)
	worker := &mockWorker{}
	worker.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	cache := repository.NewMemoryLedgerCache()
	bookings := NewBookingService(db, cache, bus, worker, cfg, time.Minute, &logger)

	return &testEnv{
		db:          db,
		cache:       cache,
		store:       store,
		bus:         bus,
		worker:      worker,
		tokens:      tokens,
		bookings:    bookings,
		experiences: NewExperienceService(db, bookings, store, bus, fixedClock(today), cfg, models.MaxUploadFiles, &logger),
		comments:    NewCommentService(db, &logger),
		users:       NewUserService(db, tokens, store, bus, &logger),
	}
}

func june(day int) civil.Date {
	return civil.Date{Year: 2024, Month: time.June, Day: day}
}

func experienceInput(start civil.Date, days, maxGuest int) models.ExperienceInput {
	return models.ExperienceInput{
		Title:       "Pasta class",
		Description: "Fresh tagliatelle from scratch",
		Languages:   []string{"en", "it"},
		Country:     "Italy",
		City:        "Bologna",
		Latitude:    44.49,
		Longitude:   11.34,
		Tags:        []string{"Food", "cooking"},
		StartTime:   "10:00 AM",
		EndTime:     "12:00 PM",
		StartDate:   start,
		EndDate:     start.AddDays(days - 1),
		MaxGuest:    maxGuest,
		Price:       30,
		Currency:    "USD",
	}
}

func (e *testEnv) createExperience(t *testing.T, ownerID string, start civil.Date, days, maxGuest int) *models.Experience {
	t.Helper()
	exp, err := e.experiences.Create(context.Background(), ownerID, experienceInput(start, days, maxGuest), nil)
	require.NoError(t, err)
	return exp
}

func (e *testEnv) ledger(t *testing.T, experienceID string) *models.Ledger {
	t.Helper()
	l, err := e.db.GetLedger(context.Background(), experienceID)
	require.NoError(t, err)
	return l
}

func (e *testEnv) reserve(experienceID, slotID, userID string) (*models.Booking, error) {
	return e.bookings.Reserve(context.Background(), models.ReserveRequest{
		ExperienceID: experienceID,
		SlotID:       slotID,
		UserID:       userID,
		UserEmail:    userID + "@example.com",
	})
}

// pngImage is the smallest header mimetype recognises as image/png.
var pngImage = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
