package service

import (
	"context"
	"io"
	"testing"
	"time"

	"comer/internal/config"
	"comer/internal/domain"
	"comer/internal/events"
	"comer/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBookingService_ReserveAndCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exp := env.createExperience(t, "usr-owner", june(1), 3, 2)

	before, err := env.bookings.Availability(ctx, exp.ID)
	require.NoError(t, err)
	require.Len(t, before.Slots, 3)
	slot := before.Slots[0]

	booking, err := env.reserve(exp.ID, slot.ID, "usr-guest")
	require.NoError(t, err)
	assert.Equal(t, slot.ID, booking.SlotID)
	assert.Equal(t, june(1), booking.Date)
	assert.Equal(t, "usr-guest@example.com", booking.UserEmail)

	// the cached copy from the first read must not survive the reservation
	after, err := env.bookings.Availability(ctx, exp.ID)
	require.NoError(t, err)
	s, ok := after.Slot(slot.ID)
	require.True(t, ok)
	assert.Equal(t, 1, s.Remaining)
	assert.True(t, after.Consistent())

	env.bus.AssertCalled(t, "PublishJSON", events.EventBookingReserved, mock.MatchedBy(func(p events.BookingEventPayload) bool {
		return p.BookingID == booking.ID && p.ExperienceTitle == "Pasta class" && p.OwnerID == "usr-owner"
	}))
	env.worker.AssertCalled(t, "EnqueueTask", mock.Anything, models.SyncTaskUpsert, mock.MatchedBy(func(b *models.Booking) bool {
		return b.ID == booking.ID
	}))

	cancelled, err := env.bookings.Cancel(ctx, booking.ID, "usr-guest")
	require.NoError(t, err)
	assert.Equal(t, booking.ID, cancelled.ID)

	restored, err := env.bookings.Availability(ctx, exp.ID)
	require.NoError(t, err)
	s, _ = restored.Slot(slot.ID)
	assert.Equal(t, 2, s.Remaining)
	assert.Empty(t, restored.Bookings)

	assert.Len(t, env.bus.payloads(events.EventBookingCancelled), 1)
	env.worker.AssertCalled(t, "EnqueueTask", mock.Anything, models.SyncTaskDelete, mock.MatchedBy(func(b *models.Booking) bool {
		return b.ID == booking.ID
	}))

	_, err = env.bookings.Cancel(ctx, booking.ID, "usr-guest")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestBookingService_ExhaustThenRetryAfterCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exp := env.createExperience(t, "usr-owner", june(1), 3, 2)

	l, err := env.bookings.Availability(ctx, exp.ID)
	require.NoError(t, err)
	require.Len(t, l.Slots, 3)
	for _, s := range l.Slots {
		assert.Equal(t, 2, s.Capacity)
		assert.Equal(t, 2, s.Remaining)
	}
	day1 := l.Slots[0]
	require.Equal(t, june(1), day1.Date)

	remaining := func() int {
		t.Helper()
		got, err := env.bookings.Availability(ctx, exp.ID)
		require.NoError(t, err)
		require.True(t, got.Consistent())
		s, ok := got.Slot(day1.ID)
		require.True(t, ok)
		return s.Remaining
	}

	a, err := env.reserve(exp.ID, day1.ID, "usr-a")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining())

	_, err = env.reserve(exp.ID, day1.ID, "usr-b")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining())

	_, err = env.reserve(exp.ID, day1.ID, "usr-c")
	assert.ErrorIs(t, err, domain.ErrSlotExhausted)
	assert.Equal(t, 0, remaining())

	_, err = env.bookings.Cancel(ctx, a.ID, "usr-a")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining())

	c, err := env.reserve(exp.ID, day1.ID, "usr-c")
	require.NoError(t, err)
	assert.Equal(t, june(1), c.Date)
	assert.Equal(t, 0, remaining())
}

func TestBookingService_ReserveFailures(t *testing.T) {
	env := newTestEnv(t)
	exp := env.createExperience(t, "usr-owner", june(1), 2, 1)
	l := env.ledger(t, exp.ID)

	_, err := env.reserve(exp.ID, l.Slots[0].ID, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.reserve("exp-missing", l.Slots[0].ID, "usr-a")
	assert.ErrorIs(t, err, domain.ErrExperienceNotFound)

	_, err = env.reserve(exp.ID, "missing-slot", "usr-a")
	assert.ErrorIs(t, err, domain.ErrSlotNotFound)

	_, err = env.reserve(exp.ID, l.Slots[0].ID, "usr-a")
	require.NoError(t, err)

	_, err = env.reserve(exp.ID, l.Slots[0].ID, "usr-a")
	assert.ErrorIs(t, err, domain.ErrAlreadyBooked)

	_, err = env.reserve(exp.ID, l.Slots[0].ID, "usr-b")
	assert.ErrorIs(t, err, domain.ErrSlotExhausted)

	assert.Len(t, env.bus.payloads(events.EventBookingReserved), 1)
	assert.True(t, env.ledger(t, exp.ID).Consistent())
}

func TestBookingService_RateLimit(t *testing.T) {
	env := newTestEnvWith(t, config.BookingConfig{
		ReserveLimit:  2,
		ReserveWindow: time.Minute,
		MaxGuestLimit: models.DefaultMaxGuestLimit,
	})
	exp := env.createExperience(t, "usr-owner", june(1), 3, 5)
	l := env.ledger(t, exp.ID)

	_, err := env.reserve(exp.ID, l.Slots[0].ID, "usr-a")
	require.NoError(t, err)
	_, err = env.reserve(exp.ID, l.Slots[1].ID, "usr-a")
	require.NoError(t, err)

	_, err = env.reserve(exp.ID, l.Slots[2].ID, "usr-a")
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	// other users have their own budget
	_, err = env.reserve(exp.ID, l.Slots[2].ID, "usr-b")
	assert.NoError(t, err)
}

func TestBookingService_CacheFailuresDoNotBlock(t *testing.T) {
	env := newTestEnv(t)
	exp := env.createExperience(t, "usr-owner", june(1), 1, 1)
	l := env.ledger(t, exp.ID)

	logger := zerolog.New(io.Discard)
	svc := NewBookingService(env.db, brokenCache{}, env.bus, env.worker, config.BookingConfig{ReserveLimit: 1}, time.Minute, &logger)

	got, err := svc.Availability(context.Background(), exp.ID)
	require.NoError(t, err)
	assert.Len(t, got.Slots, 1)

	_, err = svc.Reserve(context.Background(), models.ReserveRequest{
		ExperienceID: exp.ID,
		SlotID:       l.Slots[0].ID,
		UserID:       "usr-a",
	})
	assert.NoError(t, err)
}

func TestBookingService_Cancel_NotOwner(t *testing.T) {
	env := newTestEnv(t)
	exp := env.createExperience(t, "usr-owner", june(1), 1, 2)
	l := env.ledger(t, exp.ID)

	booking, err := env.reserve(exp.ID, l.Slots[0].ID, "usr-a")
	require.NoError(t, err)

	_, err = env.bookings.Cancel(context.Background(), booking.ID, "usr-b")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.bookings.Cancel(context.Background(), booking.ID, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	s, _ := env.ledger(t, exp.ID).Slot(l.Slots[0].ID)
	assert.Equal(t, 1, s.Remaining)
	assert.Empty(t, env.bus.payloads(events.EventBookingCancelled))
}

func TestBookingService_BookedByUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.createExperience(t, "usr-owner", june(1), 2, 3)
	second := env.createExperience(t, "usr-owner", june(10), 2, 3)

	for _, exp := range []*models.Experience{first, second} {
		l := env.ledger(t, exp.ID)
		_, err := env.reserve(exp.ID, l.Slots[0].ID, "usr-a")
		require.NoError(t, err)
		_, err = env.reserve(exp.ID, l.Slots[0].ID, "usr-b")
		require.NoError(t, err)
	}

	ledgers, err := env.bookings.BookedByUser(ctx, "usr-a", "usr-a")
	require.NoError(t, err)
	require.Len(t, ledgers, 2)
	for _, ul := range ledgers {
		require.Len(t, ul.Ledger.Bookings, 1)
		assert.Equal(t, "usr-a", ul.Ledger.Bookings[0].UserID)
	}

	_, err = env.bookings.BookedByUser(ctx, "usr-b", "usr-a")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.bookings.BookedByUser(ctx, "", "usr-a")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestBookingService_Booking(t *testing.T) {
	env := newTestEnv(t)
	exp := env.createExperience(t, "usr-owner", june(1), 1, 2)
	l := env.ledger(t, exp.ID)
	booking, err := env.reserve(exp.ID, l.Slots[0].ID, "usr-a")
	require.NoError(t, err)

	got, err := env.bookings.Booking(context.Background(), "usr-a", booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)

	_, err = env.bookings.Booking(context.Background(), "usr-b", booking.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestBookingService_RedefineAvailability(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exp := env.createExperience(t, "usr-owner", june(1), 3, 2)
	l := env.ledger(t, exp.ID)

	_, err := env.reserve(exp.ID, l.Slots[0].ID, "usr-a")
	require.NoError(t, err)

	w := exp.Window()
	w.EndDate = june(2)
	w.MaxGuest = 4

	t.Run("not owner", func(t *testing.T) {
		_, err := env.bookings.RedefineAvailability(ctx, "usr-a", exp.ID, w)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("above platform limit", func(t *testing.T) {
		big := w
		big.MaxGuest = models.DefaultMaxGuestLimit + 1
		_, err := env.bookings.RedefineAvailability(ctx, "usr-owner", exp.ID, big)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("invalid window leaves ledger untouched", func(t *testing.T) {
		bad := w
		bad.EndTime = "9:00 AM"
		_, err := env.bookings.RedefineAvailability(ctx, "usr-owner", exp.ID, bad)
		assert.ErrorIs(t, err, domain.ErrInvalidWindow)
		assert.Len(t, env.ledger(t, exp.ID).Slots, 3)
	})

	t.Run("shrink keeps booked slot", func(t *testing.T) {
		got, err := env.bookings.RedefineAvailability(ctx, "usr-owner", exp.ID, w)
		require.NoError(t, err)
		require.Len(t, got.Slots, 2)

		s, ok := got.Slot(l.Slots[0].ID)
		require.True(t, ok)
		assert.Equal(t, 4, s.Capacity)
		assert.Equal(t, 3, s.Remaining)
		assert.True(t, got.Consistent())

		stored, err := env.db.GetExperience(ctx, exp.ID)
		require.NoError(t, err)
		assert.Equal(t, june(2), stored.EndDate)
		assert.Equal(t, 4, stored.MaxGuest)

		assert.Len(t, env.bus.payloads(events.EventAvailabilityRedefined), 1)
	})

	t.Run("dropping a booked date conflicts", func(t *testing.T) {
		moved := w
		moved.StartDate = june(2)
		_, err := env.bookings.RedefineAvailability(ctx, "usr-owner", exp.ID, moved)
		assert.ErrorIs(t, err, domain.ErrActiveBookings)
	})
}

func TestBookingService_Concurrency(t *testing.T) {
	env := newTestEnv(t)
	exp := env.createExperience(t, "usr-owner", june(1), 1, 3)
	slotID := env.ledger(t, exp.ID).Slots[0].ID

	const guests = 12
	results := make(chan error, guests)
	for i := 0; i < guests; i++ {
		go func(i int) {
			_, err := env.reserve(exp.ID, slotID, "usr-"+string(rune('a'+i)))
			results <- err
		}(i)
	}

	var ok, exhausted int
	for i := 0; i < guests; i++ {
		err := <-results
		switch {
		case err == nil:
			ok++
		case domain.IsCode(err, domain.CodeExhausted):
			exhausted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 3, ok)
	assert.Equal(t, guests-3, exhausted)
	l := env.ledger(t, exp.ID)
	assert.Equal(t, 0, l.Slots[0].Remaining)
	assert.True(t, l.Consistent())
}
