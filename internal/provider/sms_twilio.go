package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
	"github.com/go-resty/resty/v2"
)

const defaultTwilioTimeout = 10 * time.Second

var _ Provider = (*TwilioProvider)(nil)

// TwilioProvider delivers SMS through the Twilio Messages API, one request
// per recipient.
type TwilioProvider struct {
	client     *resty.Client
	accountSID string
	fromNumber string
}

func NewTwilioProvider(baseURL, accountSID, authToken, fromNumber string) (*TwilioProvider, error) {
	if strings.TrimSpace(accountSID) == "" || strings.TrimSpace(authToken) == "" {
		return nil, fmt.Errorf("%w: twilio credentials are required", domain.ErrConfiguration)
	}
	if strings.TrimSpace(fromNumber) == "" {
		return nil, fmt.Errorf("%w: sms sender number is required", domain.ErrMissingSender)
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	client.SetBasicAuth(strings.TrimSpace(accountSID), strings.TrimSpace(authToken))
	client.SetTimeout(defaultTwilioTimeout)
	client.SetRetryCount(0)

	return &TwilioProvider{
		client:     client,
		accountSID: strings.TrimSpace(accountSID),
		fromNumber: strings.TrimSpace(fromNumber),
	}, nil
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) Verify(ctx context.Context) error {
	if p == nil || p.client == nil {
		return domain.ErrNotInitialized
	}
	if p.fromNumber == "" {
		return domain.ErrMissingSender
	}
	return nil
}

type twilioMessageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Message      string `json:"message"`
}

func (p *TwilioProvider) Send(ctx context.Context, msg Message) ([]DeliveryReceipt, error) {
	if p == nil || p.client == nil {
		return nil, &ProviderError{
			Message: "twilio provider is not initialized",
			Class:   domain.ErrorClassConfiguration,
		}
	}
	if p.fromNumber == "" {
		return nil, &ProviderError{
			Message: "no sms sender number configured",
			Class:   domain.ErrorClassConfiguration,
			Cause:   domain.ErrMissingSender,
		}
	}
	if len(msg.Recipients) == 0 {
		return nil, &ProviderError{
			Message: "at least one recipient is required",
			Class:   domain.ErrorClassValidation,
		}
	}

	path := fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", p.accountSID)

	receipts := make([]DeliveryReceipt, 0, len(msg.Recipients))
	for _, recipient := range msg.Recipients {
		to := strings.TrimSpace(recipient)

		response, err := p.client.R().
			SetContext(ctx).
			SetFormData(map[string]string{
				"From": p.fromNumber,
				"To":   to,
				"Body": msg.Body,
			}).
			Post(path)
		if err != nil {
			return receipts, &ProviderError{
				Message: fmt.Sprintf("twilio send to %s failed", to),
				Class:   domain.ErrorClassTransport,
				Cause:   err,
			}
		}

		statusCode := response.StatusCode()
		var parsed twilioMessageResponse
		_ = json.Unmarshal(response.Body(), &parsed)

		if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
			return receipts, &ProviderError{
				StatusCode: statusCode,
				Message:    twilioErrorMessage(to, parsed),
				Class:      classifyHTTPStatus(statusCode),
			}
		}

		receipts = append(receipts, DeliveryReceipt{
			MessageID:  parsed.SID,
			StatusCode: statusCode,
			Recipient:  to,
		})
	}

	return receipts, nil
}

func twilioErrorMessage(to string, parsed twilioMessageResponse) string {
	detail := parsed.ErrorMessage
	if detail == "" {
		detail = parsed.Message
	}
	if detail == "" {
		return fmt.Sprintf("twilio rejected send to %s", to)
	}
	return fmt.Sprintf("twilio rejected send to %s: %s", to, detail)
}
