package domain

import (
	"fmt"
	"strings"
)

// Channel represents the delivery transport family.
type Channel string

const (
	ChannelWebhook Channel = "WEBHOOK"
	ChannelEmail   Channel = "EMAIL"
	ChannelSMS     Channel = "SMS"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelWebhook, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}
