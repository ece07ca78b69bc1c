package domain

import (
	"fmt"
	"strings"
	"time"
)

// AttemptStatus is the terminal state of a single delivery attempt. Attempts
// start pending in memory and are persisted exactly once with their outcome.
type AttemptStatus string

const (
	AttemptStatusPending AttemptStatus = "PENDING"
	AttemptStatusSuccess AttemptStatus = "SUCCESS"
	AttemptStatusError   AttemptStatus = "ERROR"
)

func (s AttemptStatus) String() string { return string(s) }

func (s AttemptStatus) IsValid() bool {
	switch s {
	case AttemptStatusPending, AttemptStatusSuccess, AttemptStatusError:
		return true
	}
	return false
}

func ParseAttemptStatusFromString(s string) (AttemptStatus, error) {
	st := AttemptStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid attempt status %q", ErrValidation, s)
	}
	return st, nil
}

// DeliveryAttempt records a single transport invocation (or a rate-limited
// non-invocation) for audit. Rows are append-only.
type DeliveryAttempt struct {
	ID                string
	DeliveryID        string
	ConfigurationID   *string
	Channel           Channel
	PayloadDigest     string
	AttemptNumber     int
	Status            AttemptStatus
	HTTPStatus        *int
	ProviderMessageID *string
	ErrorClass        *ErrorClass
	Error             *string
	StartedAt         time.Time
	CompletedAt       *time.Time
}
