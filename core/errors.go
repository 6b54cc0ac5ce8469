package core

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// password reset flow
	ErrInvalidToken     = errors.New("invalid verification code or token")
	ErrTooManyAttempts  = errors.New("too many verification attempts")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooWeak  = errors.New("password must be at least 6 characters long")
	ErrDeliveryFailed   = errors.New("verification code could not be delivered")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// RateLimitedError is returned when a password change is requested before the
// cooldown window since the previous change has elapsed.
type RateLimitedError struct {
	DaysRemaining int
}

func (err RateLimitedError) Error() string {
	return fmt.Sprintf("password was changed recently; try again in %d day(s)", err.DaysRemaining)
}

// BulkWriteError is returned when a chunked bulk write fails part-way.
// Chunks committed before the failure stay committed; Committed reports how
// many writes made it through so callers can tell users "some records may
// have been updated" instead of a flat failure.
type BulkWriteError struct {
	Committed int
	Total     int
	Err       error
}

func (err BulkWriteError) Error() string {
	return fmt.Sprintf("bulk write failed after %d/%d writes: %v", err.Committed, err.Total, err.Err)
}

func (err BulkWriteError) Unwrap() error { return err.Err }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
