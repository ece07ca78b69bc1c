package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/basilakis/kai-delivery/internal/domain"
)

// ProviderError classifies a provider call failure into the delivery error
// taxonomy so the retry engine can decide whether to re-attempt.
type ProviderError struct {
	StatusCode int
	Message    string
	Class      domain.ErrorClass
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "provider error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause != nil {
		return e.Cause
	}
	return sentinelForClass(e.Class)
}

func sentinelForClass(class domain.ErrorClass) error {
	switch class {
	case domain.ErrorClassConfiguration:
		return domain.ErrConfiguration
	case domain.ErrorClassValidation:
		return domain.ErrValidation
	case domain.ErrorClassRateLimited:
		return domain.ErrRateLimited
	case domain.ErrorClassRejected:
		return domain.ErrRejected
	case domain.ErrorClassNotFound:
		return domain.ErrNotFound
	default:
		return domain.ErrTransport
	}
}

// Classify maps any error coming out of a Send call to its taxonomy class.
// Network-level failures default to transport so they stay retryable.
func Classify(err error) domain.ErrorClass {
	if err == nil {
		return ""
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.Class != "" {
		return providerErr.Class
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorClassTransport
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.ErrorClassTransport
	}

	return domain.Classify(err)
}

// IsRetryable reports whether the failure may self-resolve on a later
// attempt. Context cancellation is never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	switch Classify(err) {
	case domain.ErrorClassTransport, domain.ErrorClassRateLimited:
		return true
	}
	return false
}
