package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedgerCache(t *testing.T) {
	cache := NewMemoryLedgerCache()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	l := testLedger("exp-1")
	require.NoError(t, cache.SetLedger(ctx, l, time.Minute))

	got, err := cache.GetLedger(ctx, "exp-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	got.Slots[0].Remaining = 0

	again, err := cache.GetLedger(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Slots[0].Remaining, "callers get independent copies")

	now = now.Add(2 * time.Minute)
	got, err = cache.GetLedger(ctx, "exp-1")
	require.NoError(t, err)
	assert.Nil(t, got, "expired entries are dropped")

	require.NoError(t, cache.SetLedger(ctx, l, 0))
	require.NoError(t, cache.InvalidateLedger(ctx, "exp-1"))
	got, err = cache.GetLedger(ctx, "exp-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryRateLimit(t *testing.T) {
	cache := NewMemoryLedgerCache()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := cache.CheckRateLimit(ctx, "u1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, _ := cache.CheckRateLimit(ctx, "u1", 2, time.Minute)
	assert.False(t, allowed)

	allowed, _ = cache.CheckRateLimit(ctx, "u2", 2, time.Minute)
	assert.True(t, allowed, "limits are per key")

	now = now.Add(61 * time.Second)
	allowed, _ = cache.CheckRateLimit(ctx, "u1", 2, time.Minute)
	assert.True(t, allowed)
}
