package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"comer/internal/ledger"
	"comer/internal/models"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var testCounter int

func createTestExperience(t *testing.T, db *DB, ownerID string, start civil.Date, days, maxGuest int) (*models.Experience, *models.Ledger) {
	t.Helper()
	testCounter++

	w := models.Window{
		StartDate: start,
		EndDate:   start.AddDays(days - 1),
		StartTime: "10:00 AM",
		EndTime:   "12:00 PM",
		MaxGuest:  maxGuest,
		Price:     30,
		Currency:  "USD",
	}
	slots, runningTime, err := ledger.Expand(w)
	require.NoError(t, err)

	exp := &models.Experience{
		ID:        fmt.Sprintf("exp-%d", testCounter),
		OwnerID:   ownerID,
		Title:     "Pasta class",
		City:      "Bologna",
		Country:   "Italy",
		Languages: []string{"en", "it"},
		Files:     []string{},
		Tags:      []string{"food", "Cooking"},
		Perks:     models.Perks{Food: "pasta"},
	}
	exp.ApplyWindow(w, runningTime)

	l := &models.Ledger{ID: uuid.NewString(), Slots: slots}
	require.NoError(t, db.CreateExperience(context.Background(), exp, l))
	return exp, l
}

func june(day int) civil.Date {
	return civil.Date{Year: 2024, Month: time.June, Day: day}
}

func reserve(db *DB, experienceID, slotID, userID string) (*models.Booking, error) {
	return db.ReserveSlot(context.Background(), models.ReserveRequest{
		ExperienceID: experienceID,
		SlotID:       slotID,
		UserID:       userID,
		UserEmail:    userID + "@example.com",
	}, uuid.NewString())
}
