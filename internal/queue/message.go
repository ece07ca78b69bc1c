package queue

import (
	"fmt"
	"strings"

	"github.com/basilakis/kai-delivery/internal/domain"
)

// DeliveryMessage is the broker payload for delivery processing. It carries
// only the row id; workers re-read the row so stale queue messages can never
// resurrect a delivery that already reached a terminal state.
type DeliveryMessage struct {
	DeliveryID    string         `json:"deliveryId"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Channel       domain.Channel `json:"channel"`
}

func (m DeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("deliveryId is required")
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", m.Channel)
	}
	return nil
}
