package provider

import (
	"context"

	"github.com/basilakis/kai-delivery/internal/domain"
)

// Message is the transport-neutral unit handed to an adapter. Webhook sends
// use URL/Headers/Payload; email and SMS sends use Recipients/Subject/Body.
type Message struct {
	DeliveryID string
	Channel    domain.Channel
	EventType  domain.EventType

	URL     string
	Headers map[string]string
	Payload []byte

	Recipients []string
	Subject    string
	Body       string
}

// DeliveryReceipt is the normalized provider response. Adapters translate
// whatever their client library returns into this shape at the boundary so
// nothing downstream sees provider-specific types.
type DeliveryReceipt struct {
	MessageID  string
	StatusCode int
	Recipient  string
	Body       string
}

// Provider is the outbound delivery port shared by all transport families.
// Send returns one receipt per recipient in request order so a partial
// failure can be attributed to the right recipient.
type Provider interface {
	Send(ctx context.Context, msg Message) ([]DeliveryReceipt, error)
	Verify(ctx context.Context) error
	Name() string
}
