package events

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishJSON(t *testing.T) {
	bus := NewEventBus(nil)

	var received []*Event
	bus.Subscribe(EventBookingReserved, func(e *Event) error {
		received = append(received, e)
		return nil
	})
	bus.Subscribe(EventBookingCancelled, func(*Event) error {
		t.Fatal("handler for another type must not run")
		return nil
	})

	payload := BookingEventPayload{
		BookingID:    "b-1",
		ExperienceID: "exp-1",
		UserID:       "u1",
		Date:         civil.Date{Year: 2024, Month: time.June, Day: 2},
		Price:        30,
		Currency:     "USD",
	}
	require.NoError(t, bus.PublishJSON(EventBookingReserved, payload))

	require.Len(t, received, 1)
	assert.Equal(t, EventBookingReserved, received[0].Type)
	assert.False(t, received[0].CreatedAt.IsZero())

	decoded, err := Decode[BookingEventPayload](received[0])
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestEventBus_HandlerErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	bus := NewEventBus(&logger)

	calls := 0
	bus.Subscribe(EventUserRegistered, func(*Event) error {
		calls++
		return errors.New("mailer offline")
	})
	bus.Subscribe(EventUserRegistered, func(*Event) error {
		calls++
		return nil
	})

	require.NoError(t, bus.PublishJSON(EventUserRegistered, UserRegisteredPayload{UserID: "u1"}))
	assert.Equal(t, 2, calls, "a failing handler does not stop the others")
	assert.Contains(t, buf.String(), "mailer offline")
}

func TestEventBus_NilAndBadPayload(t *testing.T) {
	var nilBus *EventBus
	assert.NoError(t, nilBus.PublishJSON(EventExperienceCreated, nil))

	bus := NewEventBus(nil)
	assert.Error(t, bus.PublishJSON(EventExperienceCreated, make(chan int)))
}
