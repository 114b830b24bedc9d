// Package ledger holds the pure availability algorithms: expanding a schedule
// window into daily slots and reconciling a redefined window with existing bookings.
package ledger

import (
	"strings"
	"time"

	"comer/internal/domain"
	"comer/internal/models"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// MaxSlots bounds a single window to two years of daily slots.
const MaxSlots = 731

var clockLayouts = []string{"3:04 PM", "3:04PM", "15:04"}

// ParseClock returns minutes after midnight for "h:mm A" or "HH:mm" input.
func ParseClock(s string) (int, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, domain.Validationf("invalid time of day %q", s)
}

// RunningTime is the length of the daily window in minutes.
func RunningTime(startTime, endTime string) (int, error) {
	start, err := ParseClock(startTime)
	if err != nil {
		return 0, err
	}
	end, err := ParseClock(endTime)
	if err != nil {
		return 0, err
	}
	if end <= start {
		return 0, domain.InvalidWindow("end time must be after start time")
	}
	return end - start, nil
}

// DayCount returns the number of calendar days in [start, end].
func DayCount(start, end civil.Date) int {
	return end.DaysSince(start) + 1
}

// Expand validates w and produces one slot per calendar day from StartDate
// through EndDate inclusive, in ascending order. It also returns the running time.
func Expand(w models.Window) ([]models.Slot, int, error) {
	if !w.StartDate.IsValid() || !w.EndDate.IsValid() {
		return nil, 0, domain.Validation("startDate and endDate must be valid calendar dates")
	}
	if w.EndDate.Before(w.StartDate) {
		return nil, 0, domain.Validation("endDate must not be before startDate")
	}
	if w.MaxGuest <= 0 {
		return nil, 0, domain.Validation("maxGuest must be positive")
	}
	if w.Price < 0 {
		return nil, 0, domain.Validation("price must not be negative")
	}

	runningTime, err := RunningTime(w.StartTime, w.EndTime)
	if err != nil {
		return nil, 0, err
	}

	days := DayCount(w.StartDate, w.EndDate)
	if days > MaxSlots {
		return nil, 0, domain.Validationf("date range must not exceed %d days", MaxSlots)
	}

	slots := make([]models.Slot, 0, days)
	for d := w.StartDate; !d.After(w.EndDate); d = d.AddDays(1) {
		slots = append(slots, models.Slot{
			ID:        uuid.NewString(),
			Date:      d,
			StartTime: w.StartTime,
			EndTime:   w.EndTime,
			Capacity:  w.MaxGuest,
			Remaining: w.MaxGuest,
			Price:     w.Price,
			Currency:  w.Currency,
		})
	}
	return slots, runningTime, nil
}
