package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"comer/internal/models"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// fakeSheetsAPI answers the handful of Values endpoints the mirror uses and
// records the decoded request paths.
type fakeSheetsAPI struct {
	mu       sync.Mutex
	ids      [][]interface{}
	requests []string
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	ids := f.ids
	f.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, ":append"):
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Bookings!A7:K7"},
		})
	case strings.HasSuffix(path, ":clear"):
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: ids})
	default:
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	}
}

func (f *fakeSheetsAPI) saw(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

func setupMockServer(t *testing.T, ids [][]interface{}) (*fakeSheetsAPI, *SheetsService) {
	t.Helper()
	api := &fakeSheetsAPI{ids: ids}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	logger := zerolog.Nop()
	return api, newSheetsService(srv, "bookings_tid", &logger)
}

func testBooking(id string) *models.Booking {
	return &models.Booking{
		ID:           id,
		ExperienceID: "exp-1",
		SlotID:       "slot-1",
		UserID:       "usr-1",
		UserEmail:    "guest@example.com",
		Date:         civil.Date{Year: 2024, Month: time.June, Day: 1},
		StartTime:    "10:00 AM",
		EndTime:      "12:00 PM",
		Price:        30,
		Currency:     "USD",
		CreatedAt:    time.Now(),
	}
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	_, s := setupMockServer(t, [][]interface{}{{"Booking ID"}, {"b-123"}, {}, {"b-456"}})

	require.NoError(t, s.WarmUpCache(context.Background()))

	row, ok := s.getCachedRow("b-123")
	assert.True(t, ok)
	assert.Equal(t, 2, row)
	row, _ = s.getCachedRow("b-456")
	assert.Equal(t, 4, row)
	_, ok = s.getCachedRow("Booking ID")
	assert.False(t, ok, "the header row is not a booking")
}

func TestSheetsService_UpsertBooking_Append(t *testing.T) {
	api, s := setupMockServer(t, [][]interface{}{{"Booking ID"}})

	require.NoError(t, s.UpsertBooking(context.Background(), testBooking("b-789")))

	assert.True(t, api.saw("POST /v4/spreadsheets/bookings_tid/values/Bookings!A:A:append"))
	row, ok := s.getCachedRow("b-789")
	assert.True(t, ok)
	assert.Equal(t, 7, row)
}

func TestSheetsService_UpsertBooking_Update(t *testing.T) {
	api, s := setupMockServer(t, [][]interface{}{{"Booking ID"}, {"b-123"}})

	require.NoError(t, s.UpsertBooking(context.Background(), testBooking("b-123")))

	assert.True(t, api.saw("PUT /v4/spreadsheets/bookings_tid/values/Bookings!A2:K2"))
	assert.False(t, api.saw(":append"))
}

func TestSheetsService_DeleteBookingRow(t *testing.T) {
	api, s := setupMockServer(t, [][]interface{}{{"Booking ID"}, {"b-1"}, {"b-456"}})

	require.NoError(t, s.DeleteBookingRow(context.Background(), "b-456"))
	assert.True(t, api.saw("/values/Bookings!A3:K3:clear"))
	_, ok := s.getCachedRow("b-456")
	assert.False(t, ok)

	// rows that are already gone are fine
	assert.NoError(t, s.DeleteBookingRow(context.Background(), "b-missing"))
}

func TestSheetsService_EnsureHeader(t *testing.T) {
	api, s := setupMockServer(t, nil)
	require.NoError(t, s.EnsureHeader(context.Background()))
	assert.True(t, api.saw("PUT /v4/spreadsheets/bookings_tid/values/Bookings!A1:K1"))
}

func TestFirstRow(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"Bookings!A10:K10", 10, true},
		{"Bookings!B3", 3, true},
		{"A10:K10", 0, false},
		{"Bookings!A:A", 0, false},
	}
	for _, tt := range tests {
		got, ok := firstRow(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestBookingRowValues(t *testing.T) {
	row := bookingRowValues(testBooking("b-1"))
	require.Len(t, row, len(bookingHeaders))
	assert.Equal(t, "b-1", row[0])
	assert.Equal(t, "2024-06-01", row[5])
}
