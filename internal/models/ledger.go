package models

import (
	"time"

	"cloud.google.com/go/civil"
)

// Slot is one bookable day of an experience with its own capacity counter.
type Slot struct {
	ID        string     `json:"id"`
	Date      civil.Date `json:"date"`
	StartTime string     `json:"startTime"`
	EndTime   string     `json:"endTime"`
	Capacity  int        `json:"maxGuest"`
	Remaining int        `json:"remaining"`
	Price     float64    `json:"price"`
	Currency  string     `json:"currency"`
}

// Booking is a snapshot of the slot taken at reservation time.
type Booking struct {
	ID           string     `json:"id"`
	LedgerID     string     `json:"ledgerId"`
	ExperienceID string     `json:"experienceId"`
	SlotID       string     `json:"slotId"`
	UserID       string     `json:"userId"`
	UserEmail    string     `json:"userEmail"`
	Date         civil.Date `json:"date"`
	StartTime    string     `json:"startTime"`
	EndTime      string     `json:"endTime"`
	Price        float64    `json:"price"`
	Currency     string     `json:"currency"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Ledger is the availability record of a single experience.
type Ledger struct {
	ID           string    `json:"id"`
	ExperienceID string    `json:"experienceId"`
	Version      int64     `json:"version"`
	Slots        []Slot    `json:"slots"`
	Bookings     []Booking `json:"bookings"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (l *Ledger) Slot(id string) (*Slot, bool) {
	for i := range l.Slots {
		if l.Slots[i].ID == id {
			return &l.Slots[i], true
		}
	}
	return nil, false
}

func (l *Ledger) SlotByDate(d civil.Date) (*Slot, bool) {
	for i := range l.Slots {
		if l.Slots[i].Date == d {
			return &l.Slots[i], true
		}
	}
	return nil, false
}

// BookedCount returns the number of active bookings that reference the slot.
func (l *Ledger) BookedCount(slotID string) int {
	n := 0
	for _, b := range l.Bookings {
		if b.SlotID == slotID {
			n++
		}
	}
	return n
}

func (l *Ledger) BookingsFor(userID string) []Booking {
	var out []Booking
	for _, b := range l.Bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out
}

// Consistent reports whether every slot satisfies capacity - booked == remaining.
func (l *Ledger) Consistent() bool {
	for _, s := range l.Slots {
		if s.Remaining < 0 || s.Capacity-l.BookedCount(s.ID) != s.Remaining {
			return false
		}
	}
	return true
}

type ReserveRequest struct {
	ExperienceID string `json:"experienceId" validate:"required"`
	SlotID       string `json:"slotId" validate:"required"`
	UserID       string `json:"-"`
	UserEmail    string `json:"userEmail" validate:"omitempty,email"`
}

// UserLedger pairs a ledger with its experience for a user's bookings listing.
type UserLedger struct {
	Experience ExperienceSummary `json:"experience"`
	Ledger     Ledger            `json:"availability"`
}
