package dispatch

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports a malformed dispatch request
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// IsValidationError checks if err is a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PersistenceError reports that dispatch outcomes could not be stored.
// Messages already handed to providers are not resent.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError checks if err is a PersistenceError
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// RateLimitError reports that the organization's message quota is used up.
// Nothing was sent.
type RateLimitError struct {
	Level      string
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s), retry after %s", e.Level, e.RetryAfter.Round(time.Second))
}

// AsRateLimitError returns the RateLimitError in err's chain, or nil
func AsRateLimitError(err error) *RateLimitError {
	var re *RateLimitError
	if errors.As(err, &re) {
		return re
	}
	return nil
}
