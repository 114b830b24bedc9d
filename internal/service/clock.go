package service

import (
	"time"

	"cloud.google.com/go/civil"
)

// SystemClock reports today's date in the process location.
type SystemClock struct{}

func (SystemClock) Today() civil.Date {
	return civil.DateOf(time.Now())
}

type fixedClock civil.Date

func (c fixedClock) Today() civil.Date {
	return civil.Date(c)
}
