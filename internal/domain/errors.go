package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the delivery failure taxonomy. Wrap with %w so
// callers can classify with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrConfiguration = errors.New("configuration error")
	ErrRateLimited   = errors.New("rate limited")
	ErrTransport     = errors.New("transport error")
	ErrRejected      = errors.New("rejected by destination")
)

// Configuration sub-errors keep their own identity while still matching
// ErrConfiguration under errors.Is.
var (
	ErrNotInitialized = fmt.Errorf("%w: provider not initialized", ErrConfiguration)
	ErrMissingSender  = fmt.Errorf("%w: no sender configured", ErrConfiguration)
)

// ErrorClass is the persisted classification of a failed delivery attempt.
type ErrorClass string

const (
	ErrorClassConfiguration ErrorClass = "CONFIGURATION"
	ErrorClassValidation    ErrorClass = "VALIDATION"
	ErrorClassRateLimited   ErrorClass = "RATE_LIMITED"
	ErrorClassTransport     ErrorClass = "TRANSPORT"
	ErrorClassRejected      ErrorClass = "REJECTED"
	ErrorClassNotFound      ErrorClass = "NOT_FOUND"
)

func (c ErrorClass) String() string { return string(c) }

// Classify maps an error to its taxonomy class. Unrecognized errors count as
// transport failures so they stay retryable.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return ErrorClassConfiguration
	case errors.Is(err, ErrValidation):
		return ErrorClassValidation
	case errors.Is(err, ErrRateLimited):
		return ErrorClassRateLimited
	case errors.Is(err, ErrRejected):
		return ErrorClassRejected
	case errors.Is(err, ErrNotFound):
		return ErrorClassNotFound
	default:
		return ErrorClassTransport
	}
}

// IsRetryable reports whether a classified failure may self-resolve and is
// worth another attempt.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case ErrorClassTransport, ErrorClassRateLimited:
		return true
	}
	return false
}
