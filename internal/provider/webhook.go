package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
	"github.com/go-resty/resty/v2"
)

const defaultWebhookTimeout = 15 * time.Second

var _ Provider = (*WebhookProvider)(nil)

// WebhookProvider posts signed event payloads to configured endpoint URLs.
// The destination URL travels with each message, so one provider instance
// serves every webhook configuration.
type WebhookProvider struct {
	client *resty.Client
}

func NewWebhookProvider(timeout time.Duration) *WebhookProvider {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return &WebhookProvider{client: client}
}

func NewWebhookProviderWithClient(client *resty.Client) (*WebhookProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookProvider{client: client}, nil
}

func (p *WebhookProvider) Name() string { return "webhook" }

func (p *WebhookProvider) Verify(ctx context.Context) error {
	if p == nil || p.client == nil {
		return domain.ErrNotInitialized
	}
	return nil
}

func (p *WebhookProvider) Send(ctx context.Context, msg Message) ([]DeliveryReceipt, error) {
	if p == nil || p.client == nil {
		return nil, &ProviderError{
			Message: "webhook provider is not initialized",
			Class:   domain.ErrorClassConfiguration,
		}
	}

	endpoint := strings.TrimSpace(msg.URL)
	if endpoint == "" {
		return nil, &ProviderError{
			Message: "destination url is required",
			Class:   domain.ErrorClassValidation,
		}
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, &ProviderError{
			Message: fmt.Sprintf("invalid destination url %q", endpoint),
			Class:   domain.ErrorClassValidation,
			Cause:   err,
		}
	}
	if len(msg.Payload) == 0 {
		return nil, &ProviderError{
			Message: "payload is required",
			Class:   domain.ErrorClassValidation,
		}
	}

	request := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg.Payload)
	for key, value := range msg.Headers {
		request.SetHeader(key, value)
	}

	response, err := request.Post(endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message: "webhook request failed",
			Class:   domain.ErrorClassTransport,
			Cause:   err,
		}
	}
	if response == nil {
		return nil, &ProviderError{
			Message: "webhook returned empty response",
			Class:   domain.ErrorClassTransport,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return []DeliveryReceipt{{
			MessageID:  responseMessageID(response),
			StatusCode: statusCode,
			Recipient:  endpoint,
			Body:       responseBody,
		}}, nil
	}

	return nil, &ProviderError{
		StatusCode: statusCode,
		Message:    endpointErrorMessage(statusCode, responseBody),
		Class:      classifyHTTPStatus(statusCode),
	}
}

// classifyHTTPStatus keeps 429 and server-side failures retryable; every
// other non-2xx response is an explicit refusal by the receiver.
func classifyHTTPStatus(statusCode int) domain.ErrorClass {
	if statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599) {
		return domain.ErrorClassTransport
	}
	return domain.ErrorClassRejected
}

func endpointErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("endpoint returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func responseMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Request-Id", "X-Correlation-ID", "X-Correlation-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
