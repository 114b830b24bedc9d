package repository

import (
	"context"
	"testing"
	"time"

	"comer/internal/config"
	"comer/internal/models"

	"cloud.google.com/go/civil"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLedger(experienceID string) *models.Ledger {
	return &models.Ledger{
		ID:           "ledger-" + experienceID,
		ExperienceID: experienceID,
		Version:      3,
		Slots: []models.Slot{{
			ID:        "slot-1",
			Date:      civil.Date{Year: 2024, Month: time.June, Day: 1},
			StartTime: "10:00 AM",
			EndTime:   "12:00 PM",
			Capacity:  2,
			Remaining: 1,
			Price:     30,
			Currency:  "USD",
		}},
		Bookings: []models.Booking{{ID: "b-1", SlotID: "slot-1", UserID: "u1"}},
	}
}

func TestRedisLedgerCache(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer Close(client)

	cache := NewRedisLedgerCache(client)
	ctx := context.Background()

	require.NoError(t, Ping(ctx, client))

	t.Run("Miss", func(t *testing.T) {
		got, err := cache.GetLedger(ctx, "exp-missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SetGetInvalidate", func(t *testing.T) {
		l := testLedger("exp-1")
		require.NoError(t, cache.SetLedger(ctx, l, time.Minute))

		got, err := cache.GetLedger(ctx, "exp-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, l.Version, got.Version)
		assert.Equal(t, l.Slots[0].Date, got.Slots[0].Date)
		assert.Equal(t, 1, got.Slots[0].Remaining)

		require.NoError(t, cache.InvalidateLedger(ctx, "exp-1"))
		got, err = cache.GetLedger(ctx, "exp-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, cache.SetLedger(ctx, testLedger("exp-2"), time.Second))
		s.FastForward(2 * time.Second)
		got, err := cache.GetLedger(ctx, "exp-2")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CheckRateLimit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			allowed, err := cache.CheckRateLimit(ctx, "reserve:u1", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
		allowed, err := cache.CheckRateLimit(ctx, "reserve:u1", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(2 * time.Minute)
		allowed, err = cache.CheckRateLimit(ctx, "reserve:u1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestRedisLedgerCache_ServerDown(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer Close(client)
	s.Close()

	cache := NewRedisLedgerCache(client)
	_, err = cache.GetLedger(context.Background(), "exp-1")
	assert.Error(t, err)
	_, err = cache.CheckRateLimit(context.Background(), "u1", 1, time.Minute)
	assert.Error(t, err)
}
