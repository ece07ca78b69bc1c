package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
	"github.com/basilakis/kai-delivery/internal/provider"
	"github.com/basilakis/kai-delivery/internal/ratelimit"
	"github.com/basilakis/kai-delivery/internal/secret"
	"go.uber.org/zap"
)

func newTestDispatcher(t *testing.T, configs *fakeConfigurationRepo, attempts *fakeAttemptRepo, limiter ratelimit.Limiter) *Dispatcher {
	t.Helper()

	secrets, err := secret.NewManager(configs, 24*time.Hour)
	if err != nil {
		t.Fatalf("secret.NewManager: %v", err)
	}
	resolver, err := ratelimit.NewResolver(60, 5, nil, []string{"10.0.0.0/8", "127.0.0.0/8"})
	if err != nil {
		t.Fatalf("ratelimit.NewResolver: %v", err)
	}
	factory, err := provider.NewFactory(zap.NewNop(), 5*time.Second,
		provider.EmailSettings{Kind: "dev", MailboxDir: t.TempDir(), From: "noreply@example.com"},
		provider.SMSSettings{Kind: "mock"},
		false)
	if err != nil {
		t.Fatalf("provider.NewFactory: %v", err)
	}
	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter()
	}

	dispatcher, err := NewDispatcher(configs, attempts, secrets, factory, resolver, limiter, 5*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return dispatcher
}

func webhookConfig(id, url string) *domain.WebhookConfiguration {
	return &domain.WebhookConfiguration{
		ID:            id,
		OwnerID:       "owner-1",
		URL:           url,
		Events:        []domain.EventType{"order.created"},
		IsActive:      true,
		SigningSecret: "whsec_test",
	}
}

func TestDispatcherWebhookSignsAndSends(t *testing.T) {
	t.Parallel()

	var gotSignature, gotTimestamp, gotEvent, gotDeliveryID string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(secret.HeaderSignature)
		gotTimestamp = r.Header.Get(secret.HeaderTimestamp)
		gotEvent = r.Header.Get(secret.HeaderEvent)
		gotDeliveryID = r.Header.Get(secret.HeaderDeliveryID)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	configs := &fakeConfigurationRepo{
		configurations: map[string]*domain.WebhookConfiguration{
			"cfg-1": webhookConfig("cfg-1", server.URL),
		},
	}
	attempts := &fakeAttemptRepo{}
	dispatcher := newTestDispatcher(t, configs, attempts, nil)

	delivery := pendingDelivery("d1")
	result, err := dispatcher.Dispatch(context.Background(), delivery)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.AttemptNumber != 1 {
		t.Fatalf("attempt number = %d, want 1", result.AttemptNumber)
	}
	if len(result.Receipts) != 1 || result.Receipts[0].StatusCode != http.StatusOK {
		t.Fatalf("unexpected receipts: %+v", result.Receipts)
	}

	if gotEvent != "order.created" {
		t.Errorf("event header = %q", gotEvent)
	}
	if gotDeliveryID != "d1" {
		t.Errorf("delivery id header = %q", gotDeliveryID)
	}

	// The receiver must be able to verify the signature from the headers and
	// the exact body bytes.
	timestamp, err := strconv.ParseInt(gotTimestamp, 10, 64)
	if err != nil {
		t.Fatalf("timestamp header %q: %v", gotTimestamp, err)
	}
	if !secret.VerifyAny([]string{"whsec_test"}, timestamp, gotBody, gotSignature) {
		t.Error("signature does not verify against the delivered body")
	}

	if len(attempts.attempts) != 1 {
		t.Fatalf("expected 1 attempt row, got %d", len(attempts.attempts))
	}
	attempt := attempts.attempts[0]
	if attempt.Status != domain.AttemptStatusSuccess {
		t.Errorf("attempt status = %s", attempt.Status)
	}
	if attempt.AttemptNumber != 1 {
		t.Errorf("attempt number = %d", attempt.AttemptNumber)
	}
	if attempt.HTTPStatus == nil || *attempt.HTTPStatus != http.StatusOK {
		t.Errorf("attempt http status = %v", attempt.HTTPStatus)
	}
}

func TestDispatcherWebhookEndpointFailureRecordsErrorAttempt(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	configs := &fakeConfigurationRepo{
		configurations: map[string]*domain.WebhookConfiguration{
			"cfg-1": webhookConfig("cfg-1", server.URL),
		},
	}
	attempts := &fakeAttemptRepo{}
	dispatcher := newTestDispatcher(t, configs, attempts, nil)

	_, err := dispatcher.Dispatch(context.Background(), pendingDelivery("d2"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !provider.IsRetryable(err) {
		t.Error("503 should be retryable")
	}

	if len(attempts.attempts) != 1 {
		t.Fatalf("expected 1 attempt row, got %d", len(attempts.attempts))
	}
	attempt := attempts.attempts[0]
	if attempt.Status != domain.AttemptStatusError {
		t.Errorf("attempt status = %s", attempt.Status)
	}
	if attempt.ErrorClass == nil || *attempt.ErrorClass != domain.ErrorClassTransport {
		t.Errorf("attempt error class = %v", attempt.ErrorClass)
	}
	if attempt.HTTPStatus == nil || *attempt.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("attempt http status = %v", attempt.HTTPStatus)
	}
}

func TestDispatcherInactiveConfigurationRejected(t *testing.T) {
	t.Parallel()

	cfg := webhookConfig("cfg-1", "https://example.com/hook")
	cfg.IsActive = false
	configs := &fakeConfigurationRepo{
		configurations: map[string]*domain.WebhookConfiguration{"cfg-1": cfg},
	}
	attempts := &fakeAttemptRepo{}
	dispatcher := newTestDispatcher(t, configs, attempts, nil)

	_, err := dispatcher.Dispatch(context.Background(), pendingDelivery("d3"))
	if err == nil {
		t.Fatal("expected error")
	}
	if provider.IsRetryable(err) {
		t.Error("disabled configuration must not be retryable")
	}
	if got := provider.Classify(err); got != domain.ErrorClassRejected {
		t.Errorf("error class = %s, want REJECTED", got)
	}
	if len(attempts.attempts) != 1 {
		t.Fatalf("expected 1 attempt row, got %d", len(attempts.attempts))
	}
}

func TestDispatcherRateLimitedRecordsAttemptWithoutTransport(t *testing.T) {
	t.Parallel()

	var transportHit bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transportHit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	configs := &fakeConfigurationRepo{
		configurations: map[string]*domain.WebhookConfiguration{
			"cfg-1": webhookConfig("cfg-1", server.URL),
		},
	}
	attempts := &fakeAttemptRepo{}
	limiter := &fakeLimiter{
		tryAcquireFn: func(ctx context.Context, scope ratelimit.Scope, cost int) (bool, error) {
			return false, nil
		},
	}
	dispatcher := newTestDispatcher(t, configs, attempts, limiter)

	_, err := dispatcher.Dispatch(context.Background(), pendingDelivery("d4"))
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	if got := provider.Classify(err); got != domain.ErrorClassRateLimited {
		t.Errorf("error class = %s, want RATE_LIMITED", got)
	}
	if !provider.IsRetryable(err) {
		t.Error("rate limited dispatch should be retryable")
	}
	if transportHit {
		t.Error("transport must not be invoked when the rate limit denies")
	}

	if len(attempts.attempts) != 1 {
		t.Fatalf("expected 1 attempt row, got %d", len(attempts.attempts))
	}
	attempt := attempts.attempts[0]
	if attempt.Status != domain.AttemptStatusError {
		t.Errorf("attempt status = %s", attempt.Status)
	}
	if attempt.ErrorClass == nil || *attempt.ErrorClass != domain.ErrorClassRateLimited {
		t.Errorf("attempt error class = %v", attempt.ErrorClass)
	}
}

func TestDispatcherSMSUsesMockProvider(t *testing.T) {
	t.Parallel()

	configs := &fakeConfigurationRepo{}
	attempts := &fakeAttemptRepo{}
	dispatcher := newTestDispatcher(t, configs, attempts, nil)

	delivery := &domain.Delivery{
		ID:            "d5",
		CorrelationID: "corr-1",
		Channel:       domain.ChannelSMS,
		Recipient:     "+0987654321",
		Payload:       []byte("your code is 1234"),
		PayloadDigest: domain.PayloadDigest([]byte("your code is 1234")),
		Status:        domain.DeliveryStatusPending,
		MaxAttempts:   5,
	}

	result, err := dispatcher.Dispatch(context.Background(), delivery)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(result.Receipts) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(result.Receipts))
	}
	if result.Receipts[0].MessageID != "mock-1" {
		t.Errorf("message id = %q, want mock-1", result.Receipts[0].MessageID)
	}

	if len(attempts.attempts) != 1 {
		t.Fatalf("expected 1 attempt row, got %d", len(attempts.attempts))
	}
	attempt := attempts.attempts[0]
	if attempt.ProviderMessageID == nil || *attempt.ProviderMessageID != "mock-1" {
		t.Errorf("provider message id = %v", attempt.ProviderMessageID)
	}
}
