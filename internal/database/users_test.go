package database

import (
	"context"
	"testing"
	"time"

	"comer/internal/domain"
	"comer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	u := &models.User{ID: "u1", Email: "ann@example.com", PasswordHash: "hash", FirstName: "Ann", EmailToken: "tok-1"}
	require.NoError(t, db.CreateUser(ctx, u))

	err := db.CreateUser(ctx, &models.User{ID: "u2", Email: "ann@example.com"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	byToken, err := db.GetUserByEmailToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", byToken.ID)
	assert.False(t, byToken.IsVerified)

	require.NoError(t, db.VerifyUser(ctx, "u1"))
	_, err = db.GetUserByEmailToken(ctx, "tok-1")
	assert.ErrorIs(t, err, domain.ErrUserNotFound, "the token is consumed")

	got, err := db.GetUserByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
	assert.True(t, got.IsActive)
	assert.Equal(t, "hash", got.PasswordHash)

	got.City = "Turin"
	require.NoError(t, db.UpdateUser(ctx, got))
	got, err = db.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Turin", got.City)

	require.NoError(t, db.DeactivateUser(ctx, "u1"))
	got, err = db.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, db.DeactivateUser(ctx, "missing"), domain.ErrUserNotFound)
	_, err = db.GetUserByEmailToken(ctx, "")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestSessions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &models.User{ID: "u1", Email: "ann@example.com"}))

	s := &models.Session{ID: "s1", UserID: "u1", TokenHash: "h1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, db.CreateSession(ctx, s))
	require.NoError(t, db.CreateSession(ctx, &models.Session{ID: "s2", UserID: "u1", TokenHash: "h2", ExpiresAt: time.Now().Add(time.Hour)}))

	got, err := db.GetSessionByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.False(t, got.Expired(time.Now()))

	require.NoError(t, db.DeleteSession(ctx, "s1"))
	_, err = db.GetSessionByHash(ctx, "h1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, db.DeleteUserSessions(ctx, "u1"))
	_, err = db.GetSessionByHash(ctx, "h2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
