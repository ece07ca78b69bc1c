package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/basilakis/kai-delivery/internal/domain"
)

var _ Provider = (*MockSMSProvider)(nil)

// MockSMSProvider accepts every send and hands back deterministic message
// ids. It keeps the last messages around so tests and local runs can assert
// on what would have gone out.
type MockSMSProvider struct {
	counter atomic.Int64

	mu   sync.Mutex
	sent []Message
}

func NewMockSMSProvider() *MockSMSProvider {
	return &MockSMSProvider{}
}

func (p *MockSMSProvider) Name() string { return "mock" }

func (p *MockSMSProvider) Verify(ctx context.Context) error {
	if p == nil {
		return domain.ErrNotInitialized
	}
	return nil
}

func (p *MockSMSProvider) Send(ctx context.Context, msg Message) ([]DeliveryReceipt, error) {
	if p == nil {
		return nil, &ProviderError{
			Message: "mock sms provider is not initialized",
			Class:   domain.ErrorClassConfiguration,
		}
	}
	if len(msg.Recipients) == 0 {
		return nil, &ProviderError{
			Message: "at least one recipient is required",
			Class:   domain.ErrorClassValidation,
		}
	}

	p.mu.Lock()
	p.sent = append(p.sent, msg)
	p.mu.Unlock()

	receipts := make([]DeliveryReceipt, 0, len(msg.Recipients))
	for _, recipient := range msg.Recipients {
		receipts = append(receipts, DeliveryReceipt{
			MessageID: fmt.Sprintf("mock-%d", p.counter.Add(1)),
			Recipient: strings.TrimSpace(recipient),
		})
	}

	return receipts, nil
}

// Sent returns a copy of every message accepted so far.
func (p *MockSMSProvider) Sent() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Message, len(p.sent))
	copy(out, p.sent)
	return out
}
