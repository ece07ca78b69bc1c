package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/basilakis/kai-delivery/internal/domain"
	"github.com/mrz1836/postmark"
)

// postmarkSender is the subset of the Postmark client used here, extracted so
// tests can substitute a fake without hitting the API.
type postmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

var _ Provider = (*PostmarkProvider)(nil)

// PostmarkProvider delivers email through the Postmark transactional API.
type PostmarkProvider struct {
	client postmarkSender
	from   string
}

func NewPostmarkProvider(serverToken, accountToken, from string) (*PostmarkProvider, error) {
	if strings.TrimSpace(serverToken) == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", domain.ErrConfiguration)
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("%w: sender address is required", domain.ErrMissingSender)
	}

	return &PostmarkProvider{
		client: postmark.NewClient(strings.TrimSpace(serverToken), strings.TrimSpace(accountToken)),
		from:   strings.TrimSpace(from),
	}, nil
}

func (p *PostmarkProvider) Name() string { return "postmark" }

func (p *PostmarkProvider) Verify(ctx context.Context) error {
	if p == nil || p.client == nil {
		return domain.ErrNotInitialized
	}
	return nil
}

func (p *PostmarkProvider) Send(ctx context.Context, msg Message) ([]DeliveryReceipt, error) {
	if p == nil || p.client == nil {
		return nil, &ProviderError{
			Message: "postmark provider is not initialized",
			Class:   domain.ErrorClassConfiguration,
		}
	}
	if len(msg.Recipients) == 0 {
		return nil, &ProviderError{
			Message: "at least one recipient is required",
			Class:   domain.ErrorClassValidation,
		}
	}

	receipts := make([]DeliveryReceipt, 0, len(msg.Recipients))
	for _, recipient := range msg.Recipients {
		to := strings.TrimSpace(recipient)

		email := postmark.Email{
			From:     p.from,
			To:       to,
			Subject:  msg.Subject,
			TextBody: msg.Body,
			Tag:      string(msg.EventType),
		}

		resp, err := p.client.SendEmail(ctx, email)
		if err != nil {
			return receipts, &ProviderError{
				Message: fmt.Sprintf("postmark send to %s failed", to),
				Class:   domain.ErrorClassTransport,
				Cause:   err,
			}
		}
		if resp.ErrorCode > 0 {
			return receipts, &ProviderError{
				StatusCode: int(resp.ErrorCode),
				Message:    fmt.Sprintf("postmark rejected send to %s: %s", to, resp.Message),
				Class:      classifyPostmarkError(int(resp.ErrorCode)),
			}
		}

		receipts = append(receipts, DeliveryReceipt{
			MessageID: resp.MessageID,
			Recipient: to,
		})
	}

	return receipts, nil
}

// classifyPostmarkError maps Postmark API error codes onto the taxonomy.
// Code 300 is a malformed request, 406 an inactive recipient; both are
// permanent. Anything unknown stays retryable.
func classifyPostmarkError(code int) domain.ErrorClass {
	switch code {
	case 300:
		return domain.ErrorClassValidation
	case 10, 401, 405:
		return domain.ErrorClassConfiguration
	case 406:
		return domain.ErrorClassRejected
	default:
		return domain.ErrorClassTransport
	}
}
