package events

import (
	"encoding/json"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
)

const (
	EventBookingReserved       = "booking_reserved"
	EventBookingCancelled      = "booking_cancelled"
	EventExperienceCreated     = "experience_created"
	EventExperienceDeleted     = "experience_deleted"
	EventAvailabilityRedefined = "availability_redefined"
	EventUserRegistered        = "user_registered"
)

// BookingEventPayload is the booking snapshot handed to notifiers and the sheets mirror.
type BookingEventPayload struct {
	BookingID       string     `json:"booking_id"`
	ExperienceID    string     `json:"experience_id"`
	ExperienceTitle string     `json:"experience_title"`
	OwnerID         string     `json:"owner_id"`
	SlotID          string     `json:"slot_id"`
	UserID          string     `json:"user_id"`
	UserEmail       string     `json:"user_email"`
	Date            civil.Date `json:"date"`
	StartTime       string     `json:"start_time"`
	EndTime         string     `json:"end_time"`
	Price           float64    `json:"price"`
	Currency        string     `json:"currency"`
}

type ExperienceEventPayload struct {
	ExperienceID    string   `json:"experience_id"`
	OwnerID         string   `json:"owner_id"`
	Title           string   `json:"title"`
	Slots           int      `json:"slots"`
	DroppedBookings []string `json:"dropped_bookings,omitempty"`
}

type AvailabilityEventPayload struct {
	ExperienceID string     `json:"experience_id"`
	Version      int64      `json:"version"`
	StartDate    civil.Date `json:"start_date"`
	EndDate      civil.Date `json:"end_date"`
	Slots        int        `json:"slots"`
}

// UserRegisteredPayload carries the verification token for an external mailer.
type UserRegisteredPayload struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	EmailToken string `json:"email_token"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the event payload into T.
func Decode[T any](e *Event) (T, error) {
	var v T
	err := json.Unmarshal(e.Payload, &v)
	return v, err
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs every handler of the event type synchronously. Handler
// failures are logged and never reach the publisher.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("Event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
