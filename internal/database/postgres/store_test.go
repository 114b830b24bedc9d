package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"comer/internal/domain"
	"comer/internal/ledger"
	"comer/internal/models"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to TEST_DATABASE_URL and empties every table.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres tests")
	}

	logger := zerolog.Nop()
	s, err := Open(context.Background(), dsn, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.pool.Exec(context.Background(), `TRUNCATE users, sessions, experiences, experience_likes, ledgers,
        slots, bookings, comments, comment_reactions, sync_queue RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return s
}

func june(day int) civil.Date {
	return civil.Date{Year: 2024, Month: time.June, Day: day}
}

func createExperience(t *testing.T, s *Store, ownerID string, days, maxGuest int) (*models.Experience, *models.Ledger) {
	t.Helper()
	w := models.Window{
		StartDate: june(1),
		EndDate:   june(days),
		StartTime: "10:00 AM",
		EndTime:   "12:00 PM",
		MaxGuest:  maxGuest,
		Price:     30,
		Currency:  "EUR",
	}
	slots, runningTime, err := ledger.Expand(w)
	require.NoError(t, err)

	exp := &models.Experience{
		ID:        "exp-" + uuid.NewString()[:8],
		OwnerID:   ownerID,
		Title:     "Pasta class",
		City:      "Bologna",
		Languages: []string{"en"},
		Tags:      []string{"food"},
		Perks:     models.Perks{Food: "pasta"},
	}
	exp.ApplyWindow(w, runningTime)

	l := &models.Ledger{ID: uuid.NewString(), Slots: slots}
	require.NoError(t, s.CreateExperience(context.Background(), exp, l))
	return exp, l
}

func reserve(s *Store, experienceID, slotID, userID string) (*models.Booking, error) {
	return s.ReserveSlot(context.Background(), models.ReserveRequest{
		ExperienceID: experienceID,
		SlotID:       slotID,
		UserID:       userID,
		UserEmail:    userID + "@example.com",
	}, uuid.NewString())
}

func TestStore_ExperienceRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	exp, _ := createExperience(t, s, "usr-owner", 3, 2)

	got, err := s.GetExperience(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pasta class", got.Title)
	assert.Equal(t, june(1), got.StartDate)
	assert.Equal(t, june(3), got.EndDate)
	assert.Equal(t, []string{"food"}, got.Tags)
	assert.Equal(t, "pasta", got.Perks.Food)
	assert.Empty(t, got.Likes)

	res, err := s.ToggleExperienceLike(ctx, exp.ID, "usr-a")
	require.NoError(t, err)
	assert.Equal(t, models.ToggleResult{Active: true, Count: 1}, res)

	found, err := s.SearchExperiences(ctx, models.ExperienceQuery{City: "BOLO", Tags: []string{"Food"}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, []string{"usr-a"}, found[0].Likes)

	_, err = s.GetExperience(ctx, "exp-missing")
	assert.ErrorIs(t, err, domain.ErrExperienceNotFound)
}

func TestStore_ReserveAndCancel(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	exp, l := createExperience(t, s, "usr-owner", 1, 1)
	slotID := l.Slots[0].ID

	b, err := reserve(s, exp.ID, slotID, "usr-a")
	require.NoError(t, err)
	assert.Equal(t, june(1), b.Date)

	_, err = reserve(s, exp.ID, slotID, "usr-a")
	assert.ErrorIs(t, err, domain.ErrAlreadyBooked)
	_, err = reserve(s, exp.ID, slotID, "usr-b")
	assert.ErrorIs(t, err, domain.ErrSlotExhausted)
	_, err = reserve(s, exp.ID, "slot-missing", "usr-b")
	assert.ErrorIs(t, err, domain.ErrSlotNotFound)
	_, err = reserve(s, "exp-missing", slotID, "usr-b")
	assert.ErrorIs(t, err, domain.ErrExperienceNotFound)

	_, err = s.CancelBooking(ctx, b.ID, "usr-b")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = s.CancelBooking(ctx, b.ID, "usr-a")
	require.NoError(t, err)

	got, err := s.GetLedger(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Slots[0].Remaining)
	assert.Empty(t, got.Bookings)
	assert.True(t, got.Consistent())
	assert.Equal(t, int64(3), got.Version)
}

func TestStore_ConcurrentReserve(t *testing.T) {
	s := openTestStore(t)
	exp, l := createExperience(t, s, "usr-owner", 1, 3)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		other     []error
	)
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := reserve(s, exp.ID, l.Slots[0].ID, fmt.Sprintf("guest-%d", n))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrSlotExhausted):
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 3, succeeded)

	got, err := s.GetLedger(context.Background(), exp.ID)
	require.NoError(t, err)
	assert.True(t, got.Consistent())
}

func TestStore_ConcurrentDoubleCancel(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	exp, l := createExperience(t, s, "usr-owner", 1, 3)
	slotID := l.Slots[0].ID

	a, err := reserve(s, exp.ID, slotID, "usr-a")
	require.NoError(t, err)
	_, err = reserve(s, exp.ID, slotID, "usr-b")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		notFound  int
		other     []error
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CancelBooking(ctx, a.ID, "usr-a")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrBookingNotFound):
				notFound++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, notFound)

	got, err := s.GetLedger(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Slots[0].Remaining)
	assert.Len(t, got.Bookings, 1)
	assert.True(t, got.Consistent())
}

func TestStore_RedefineAvailability(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	exp, l := createExperience(t, s, "usr-owner", 3, 2)
	_, err := reserve(s, exp.ID, l.Slots[2].ID, "usr-a")
	require.NoError(t, err)

	shrink := models.Window{StartDate: june(1), EndDate: june(2), StartTime: "10:00 AM", EndTime: "12:00 PM", MaxGuest: 2, Currency: "EUR"}
	slots, rt, err := ledger.Expand(shrink)
	require.NoError(t, err)
	_, err = s.RedefineAvailability(ctx, exp.ID, shrink, rt, slots)
	assert.ErrorIs(t, err, domain.ErrActiveBookings)

	grow := shrink
	grow.EndDate = june(4)
	grow.MaxGuest = 5
	slots, rt, err = ledger.Expand(grow)
	require.NoError(t, err)
	got, err := s.RedefineAvailability(ctx, exp.ID, grow, rt, slots)
	require.NoError(t, err)
	require.Len(t, got.Slots, 4)
	assert.Equal(t, l.Slots[2].ID, got.Slots[2].ID)
	assert.Equal(t, 4, got.Slots[2].Remaining)
	assert.True(t, got.Consistent())

	stored, err := s.GetExperience(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, june(4), stored.EndDate)
	assert.Equal(t, 5, stored.MaxGuest)
}

func TestStore_DeleteExperience(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	exp, l := createExperience(t, s, "usr-owner", 1, 2)
	b, err := reserve(s, exp.ID, l.Slots[0].ID, "usr-a")
	require.NoError(t, err)

	dropped, err := s.DeleteExperience(ctx, exp.ID)
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, b.ID, dropped[0].ID)

	_, err = s.GetLedger(ctx, exp.ID)
	assert.ErrorIs(t, err, domain.ErrExperienceNotFound)
	_, err = s.DeleteExperience(ctx, exp.ID)
	assert.ErrorIs(t, err, domain.ErrExperienceNotFound)
}

func TestStore_CommentsAndUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := &models.User{ID: "usr-a", Email: "a@example.com", PasswordHash: "x", EmailToken: "tok"}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.ErrorIs(t, s.CreateUser(ctx, &models.User{ID: "usr-b", Email: "a@example.com"}), domain.ErrEmailTaken)

	byToken, err := s.GetUserByEmailToken(ctx, "tok")
	require.NoError(t, err)
	require.NoError(t, s.VerifyUser(ctx, byToken.ID))
	_, err = s.GetUserByEmailToken(ctx, "tok")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	c := &models.Comment{ID: "cmt-1", UserID: u.ID, ExperienceID: "exp-1", Description: "nice"}
	require.NoError(t, s.CreateComment(ctx, c))

	res, err := s.ToggleCommentReaction(ctx, c.ID, "usr-b", models.ReactionLike)
	require.NoError(t, err)
	assert.True(t, res.Active)
	res, err = s.ToggleCommentReaction(ctx, c.ID, "usr-b", models.ReactionDislike)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)

	got, err := s.GetComment(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Likes)
	assert.Equal(t, []string{"usr-b"}, got.Dislikes)

	require.NoError(t, s.DeleteComment(ctx, c.ID))
	assert.ErrorIs(t, s.DeleteComment(ctx, c.ID), domain.ErrCommentNotFound)
}

func TestStore_SyncQueue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	task := &models.SyncTask{TaskType: models.SyncTaskUpsert, BookingID: "bk-1", Payload: "{}"}
	require.NoError(t, s.CreateSyncTask(ctx, task))
	assert.NotZero(t, task.ID)

	next := time.Now().Add(time.Hour)
	require.NoError(t, s.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, "boom", &next))
	pending, err := s.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "retry is not due yet")

	require.NoError(t, s.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, "boom", nil))
	failed, err := s.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].RetryCount)
	require.NotNil(t, failed[0].LastError)
	assert.Equal(t, "boom", *failed[0].LastError)
}
