package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error class.
type Code string

const (
	CodeNotFound      Code = "not_found"
	CodeConflict      Code = "conflict"
	CodeExhausted     Code = "exhausted"
	CodeForbidden     Code = "forbidden"
	CodeUnauthorized  Code = "unauthorized"
	CodeInvalidWindow Code = "invalid_window"
	CodeValidation    Code = "validation_error"
	CodeRateLimited   Code = "rate_limited"
	CodeInternal      Code = "internal"
)

// HTTPStatus returns the default status for a code. Routes may override it.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeExhausted:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInvalidWindow:
		return http.StatusUnprocessableEntity
	case CodeValidation:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error carrying a code and a caller-facing message.
type Error struct {
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same code and, when the target carries one, the same message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if e.Code != t.Code {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

var (
	ErrNotFound      = &Error{Code: CodeNotFound}
	ErrConflict      = &Error{Code: CodeConflict}
	ErrForbidden     = &Error{Code: CodeForbidden}
	ErrUnauthorized  = &Error{Code: CodeUnauthorized}
	ErrInvalidWindow = &Error{Code: CodeInvalidWindow}
	ErrValidation    = &Error{Code: CodeValidation}

	ErrExperienceNotFound = NotFound("Experience")
	ErrLedgerNotFound     = NotFound("Ledger")
	ErrSlotNotFound       = NotFound("Slot")
	ErrBookingNotFound    = NotFound("Booking")
	ErrCommentNotFound    = NotFound("Comment")
	ErrUserNotFound       = NotFound("User")
	ErrAlreadyBooked      = &Error{Code: CodeConflict, Message: "Conflict:AlreadyBooked"}
	ErrActiveBookings     = &Error{Code: CodeConflict, Message: "Conflict:ActiveBookings"}
	ErrEmailTaken         = &Error{Code: CodeConflict, Message: "Conflict:EmailTaken"}
	ErrSlotExhausted      = &Error{Code: CodeExhausted, Message: "Exhausted:Slot"}
	ErrRateLimited        = &Error{Code: CodeRateLimited, Message: "Too many requests"}
)

// NotFound builds a NotFound:<Entity> error.
func NotFound(entity string) *Error {
	return &Error{Code: CodeNotFound, Message: "NotFound:" + entity}
}

func Forbidden(msg string) *Error {
	if msg == "" {
		msg = "Forbidden"
	}
	return &Error{Code: CodeForbidden, Message: msg}
}

func Unauthorized(msg string) *Error {
	if msg == "" {
		msg = "Unauthorized"
	}
	return &Error{Code: CodeUnauthorized, Message: msg}
}

func InvalidWindow(msg string) *Error {
	return &Error{Code: CodeInvalidWindow, Message: "InvalidWindow: " + msg}
}

func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

func ValidationWithDetails(msg string, details map[string]string) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// ActiveBookings reports a redefinition that would strand bookings on a slot.
func ActiveBookings(detail string) *Error {
	return &Error{Code: CodeConflict, Message: ErrActiveBookings.Message, Details: map[string]string{"slot": detail}}
}

// Internal wraps an unexpected failure. The cause is never shown to callers.
func Internal(msg string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: msg, cause: cause}
}

// CodeOf returns the domain code of err, or CodeInternal when err is not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsCode reports whether err is a domain error of the given code.
func IsCode(err error, code Code) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}

// PublicMessage returns the message safe to show callers.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Code != CodeInternal {
		return de.Message
	}
	return "internal server error"
}

// DetailsOf returns validation details, if any.
func DetailsOf(err error) map[string]string {
	var de *Error
	if errors.As(err, &de) {
		return de.Details
	}
	return nil
}
