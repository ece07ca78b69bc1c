package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// WebhookConfiguration is a registered outbound webhook target owned by a
// principal. Secret fields are never serialized to API consumers.
type WebhookConfiguration struct {
	ID              string
	OwnerID         string
	URL             string
	Events          []EventType
	IsActive        bool
	SigningSecret   string
	PreviousSecret  *string
	SecretRotatedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (c *WebhookConfiguration) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: configuration is required", ErrValidation)
	}
	if strings.TrimSpace(c.OwnerID) == "" {
		return fmt.Errorf("%w: owner id is required", ErrValidation)
	}

	trimmedURL := strings.TrimSpace(c.URL)
	if trimmedURL == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}
	parsed, err := url.ParseRequestURI(trimmedURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("%w: invalid url %q", ErrValidation, c.URL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: url scheme must be http or https", ErrValidation)
	}

	if len(c.Events) == 0 {
		return fmt.Errorf("%w: at least one event type is required", ErrValidation)
	}
	for _, eventType := range c.Events {
		if !eventType.IsValid() {
			return fmt.Errorf("%w: invalid event type %q", ErrValidation, eventType)
		}
	}

	return nil
}

// SubscribesTo reports whether deliveries of the given event type should be
// fanned out to this configuration.
func (c *WebhookConfiguration) SubscribesTo(t EventType) bool {
	if c == nil {
		return false
	}
	for _, eventType := range c.Events {
		if eventType == t {
			return true
		}
	}
	return false
}

// Host returns the destination host used as the rate-limit endpoint key.
func (c *WebhookConfiguration) Host() string {
	if c == nil {
		return ""
	}
	parsed, err := url.Parse(strings.TrimSpace(c.URL))
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
