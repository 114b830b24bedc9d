package models

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

type Perks struct {
	Food      string `json:"food"`
	Beverage  string `json:"beverage"`
	Alcohol   string `json:"alcohol"`
	Equipment string `json:"equipment"`
	Others    string `json:"others"`
}

type Experience struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"userId"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Languages       []string   `json:"language"`
	RunningTime     int        `json:"runningTime"` // minutes
	MinimumAge      int        `json:"minimumAge"`
	Country         string     `json:"country"`
	City            string     `json:"city"`
	State           string     `json:"state"`
	Address         string     `json:"address"`
	FullAddress     string     `json:"fullAddress"`
	CriteriaOfGuest string     `json:"criteriaOfGuest"`
	Longitude       float64    `json:"longitude"`
	Latitude        float64    `json:"latitude"`
	Files           []string   `json:"files"`
	Likes           []string   `json:"likes"`
	Perks           Perks      `json:"perks"`
	Notice          string     `json:"notice"`
	StartTime       string     `json:"startTime"`
	EndTime         string     `json:"endTime"`
	KidsAllowed     bool       `json:"kidsAllowed"`
	PetsAllowed     bool       `json:"petsAllowed"`
	MaxGuest        int        `json:"maxGuest"`
	Price           float64    `json:"price"`
	Currency        string     `json:"currency"`
	Tags            []string   `json:"tags"`
	StartDate       civil.Date `json:"startDate"`
	EndDate         civil.Date `json:"endDate"`
	Cancellation1   bool       `json:"cancellation1"`
	Cancellation2   bool       `json:"cancellation2"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Window is the schedule part of an experience that drives slot expansion.
type Window struct {
	StartDate civil.Date `json:"startDate"`
	EndDate   civil.Date `json:"endDate"`
	StartTime string     `json:"startTime"`
	EndTime   string     `json:"endTime"`
	MaxGuest  int        `json:"maxGuest"`
	Price     float64    `json:"price"`
	Currency  string     `json:"currency"`
}

func (e *Experience) Window() Window {
	return Window{
		StartDate: e.StartDate,
		EndDate:   e.EndDate,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		MaxGuest:  e.MaxGuest,
		Price:     e.Price,
		Currency:  e.Currency,
	}
}

// ApplyWindow copies the window onto the experience along with its derived running time.
func (e *Experience) ApplyWindow(w Window, runningTime int) {
	e.StartDate = w.StartDate
	e.EndDate = w.EndDate
	e.StartTime = w.StartTime
	e.EndTime = w.EndTime
	e.MaxGuest = w.MaxGuest
	e.Price = w.Price
	e.Currency = w.Currency
	e.RunningTime = runningTime
}

func (e *Experience) IsOwnedBy(userID string) bool {
	return userID != "" && e.OwnerID == userID
}

func (e *Experience) LikedBy(userID string) bool {
	for _, id := range e.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// ExperienceSummary is the short form embedded in booking listings.
type ExperienceSummary struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"userId"`
	Title     string     `json:"title"`
	City      string     `json:"city"`
	Country   string     `json:"country"`
	StartDate civil.Date `json:"startDate"`
	EndDate   civil.Date `json:"endDate"`
	Files     []string   `json:"files"`
}

func (e *Experience) Summary() ExperienceSummary {
	return ExperienceSummary{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		Title:     e.Title,
		City:      e.City,
		Country:   e.Country,
		StartDate: e.StartDate,
		EndDate:   e.EndDate,
		Files:     e.Files,
	}
}

// ExperienceQuery filters catalog searches. Zero values are ignored.
type ExperienceQuery struct {
	City      string
	StartDate *civil.Date
	EndDate   *civil.Date
	Tags      []string
	Limit     int
}

// NormalizeTags trims, lowercases and de-duplicates tags preserving order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
