package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailAddressPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	e164Pattern         = regexp.MustCompile(`^\+\d{7,15}$`)
)

// NotificationTarget is a logical email/SMS destination for ad hoc sends that
// bypass webhook configurations.
type NotificationTarget struct {
	Channel   Channel
	Addresses []string
	Subject   string
	Body      string
}

func (t *NotificationTarget) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: target is required", ErrValidation)
	}
	if t.Channel != ChannelEmail && t.Channel != ChannelSMS {
		return fmt.Errorf("%w: target channel must be EMAIL or SMS", ErrValidation)
	}
	if len(t.Addresses) == 0 {
		return fmt.Errorf("%w: at least one address is required", ErrValidation)
	}

	for _, address := range t.Addresses {
		trimmed := strings.TrimSpace(address)
		switch t.Channel {
		case ChannelEmail:
			if !emailAddressPattern.MatchString(trimmed) {
				return fmt.Errorf("%w: invalid email address %q", ErrValidation, address)
			}
		case ChannelSMS:
			if !e164Pattern.MatchString(trimmed) {
				return fmt.Errorf("%w: invalid E.164 phone number %q", ErrValidation, address)
			}
		}
	}

	if strings.TrimSpace(t.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if t.Channel == ChannelEmail && strings.TrimSpace(t.Subject) == "" {
		return fmt.Errorf("%w: subject is required for email targets", ErrValidation)
	}

	return nil
}
