package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for dispatch and storage outcomes. Platform client
// implementations map provider-specific errors onto these so the rest of
// the engine can branch on them with errors.Is.
var (
	// ErrNotFound is a sentinel error for "not found" cases
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the platform denied the action - not retryable
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited means the local bucket was exhausted past its wait
	// budget, or the platform itself throttled the call
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient covers network/connectivity failures worth retrying
	ErrTransient = errors.New("transient failure")

	// ErrConflict means the operation lost a race, e.g. cancelling a task
	// the scheduler already claimed
	ErrConflict = errors.New("conflict")
)

// ValidationError reports a malformed rule or task definition. Rejected
// at creation time, never stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFoundError checks if an error is a "not found" error
func IsNotFoundError(err error) bool {
	return err != nil && errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether a dispatch failure is worth retrying with
// backoff. Permanent failures (missing target, permission denied,
// malformed input) fail immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}
