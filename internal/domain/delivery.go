package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryStatus represents the lifecycle state of a logical delivery.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "PENDING"
	DeliveryStatusSending   DeliveryStatus = "SENDING"
	DeliveryStatusSucceeded DeliveryStatus = "SUCCEEDED"
	DeliveryStatusFailed    DeliveryStatus = "FAILED"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusSending, DeliveryStatusSucceeded, DeliveryStatusFailed:
		return true
	}
	return false
}

func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusSucceeded || s == DeliveryStatusFailed
}

func ParseDeliveryStatusFromString(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery status %q", ErrValidation, s)
	}
	return st, nil
}

// Delivery is one event bound for one target. Its attempts share the delivery
// id as correlation; attempt numbers within a delivery are strictly
// sequential.
type Delivery struct {
	ID              string
	CorrelationID   string
	ConfigurationID *string
	Channel         Channel
	EventType       EventType
	Recipient       string
	Subject         string
	Payload         []byte
	PayloadDigest   string
	Status          DeliveryStatus
	AttemptCount    int
	MaxAttempts     int
	FirstAttemptAt  *time.Time
	NextRetryAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (d *Delivery) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: delivery is required", ErrValidation)
	}
	if !d.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, d.Channel)
	}
	if strings.TrimSpace(d.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if len(d.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", ErrValidation)
	}
	if d.Channel == ChannelWebhook {
		if d.ConfigurationID == nil || strings.TrimSpace(*d.ConfigurationID) == "" {
			return fmt.Errorf("%w: webhook deliveries require a configuration id", ErrValidation)
		}
		if !d.EventType.IsValid() {
			return fmt.Errorf("%w: invalid event type %q", ErrValidation, d.EventType)
		}
	}
	return nil
}
