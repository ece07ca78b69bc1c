package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
	"github.com/basilakis/kai-delivery/internal/repository"
	"github.com/basilakis/kai-delivery/internal/secret"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TestEventType is the synthetic event type used by the test endpoint.
const TestEventType domain.EventType = "webhook.test"

// WebhookService manages the configuration lifecycle and the owner-facing
// surfaces built on top of it: secret rotation, synchronous test dispatch,
// and the per-configuration delivery log.
type WebhookService struct {
	configurations repository.WebhookConfigurationRepository
	deliveries     repository.DeliveryRepository
	attempts       repository.AttemptRepository
	secrets        *secret.Manager
	dispatcher     DeliveryDispatcher
	maxAttempts    int
	logger         *zap.Logger
	now            func() time.Time
}

func NewWebhookService(
	configurations repository.WebhookConfigurationRepository,
	deliveries repository.DeliveryRepository,
	attempts repository.AttemptRepository,
	secrets *secret.Manager,
	dispatcher DeliveryDispatcher,
	maxAttempts int,
	logger *zap.Logger,
) (*WebhookService, error) {
	if configurations == nil {
		return nil, fmt.Errorf("configuration repository is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("secret manager is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookService{
		configurations: configurations,
		deliveries:     deliveries,
		attempts:       attempts,
		secrets:        secrets,
		dispatcher:     dispatcher,
		maxAttempts:    maxAttempts,
		logger:         logger,
		now:            time.Now,
	}, nil
}

// Create registers a configuration and generates its first signing secret.
// The plaintext secret is returned exactly once, on this call.
func (s *WebhookService) Create(ctx context.Context, cfg *domain.WebhookConfiguration) (*domain.WebhookConfiguration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	signingSecret, err := secret.GenerateSecret()
	if err != nil {
		return nil, err
	}

	cfg.ID = uuid.NewString()
	cfg.SigningSecret = signingSecret
	cfg.PreviousSecret = nil
	cfg.SecretRotatedAt = nil

	if err := s.configurations.Create(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to create configuration: %w", err)
	}

	return cfg, nil
}

func (s *WebhookService) Get(ctx context.Context, id, ownerID string) (*domain.WebhookConfiguration, error) {
	return s.configurations.GetByIDForOwner(ctx, id, ownerID)
}

func (s *WebhookService) List(ctx context.Context, ownerID string) ([]domain.WebhookConfiguration, error) {
	return s.configurations.ListByOwner(ctx, ownerID)
}

func (s *WebhookService) ListAll(ctx context.Context) ([]domain.WebhookConfiguration, error) {
	return s.configurations.ListAll(ctx)
}

// Update replaces the mutable fields (url, events, active flag). Secrets are
// only changed through RotateSecret.
func (s *WebhookService) Update(ctx context.Context, cfg *domain.WebhookConfiguration) (*domain.WebhookConfiguration, error) {
	existing, err := s.configurations.GetByIDForOwner(ctx, cfg.ID, cfg.OwnerID)
	if err != nil {
		return nil, err
	}

	existing.URL = cfg.URL
	existing.Events = cfg.Events
	existing.IsActive = cfg.IsActive
	if err := existing.Validate(); err != nil {
		return nil, err
	}

	if err := s.configurations.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update configuration: %w", err)
	}

	return s.configurations.GetByIDForOwner(ctx, cfg.ID, cfg.OwnerID)
}

func (s *WebhookService) Delete(ctx context.Context, id, ownerID string) error {
	return s.configurations.Delete(ctx, id, ownerID)
}

// RotateSecret issues a new signing secret and returns its plaintext exactly
// once. The old secret keeps validating until the grace window elapses.
func (s *WebhookService) RotateSecret(ctx context.Context, id, ownerID string) (string, error) {
	if _, err := s.configurations.GetByIDForOwner(ctx, id, ownerID); err != nil {
		return "", err
	}
	return s.secrets.Rotate(ctx, id)
}

// TestDispatch sends a synthetic signed event to the configuration's endpoint
// synchronously. The delivery and its single attempt are persisted like any
// other, but there is never a retry.
func (s *WebhookService) TestDispatch(ctx context.Context, id, ownerID string) (*domain.Delivery, *DispatchResult, error) {
	cfg, err := s.configurations.GetByIDForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	event := domain.Event{
		ID:         uuid.NewString(),
		Type:       TestEventType,
		OccurredAt: now,
		Data:       json.RawMessage(`{"test":true}`),
	}
	payload, err := event.CanonicalPayload()
	if err != nil {
		return nil, nil, err
	}

	configurationID := cfg.ID
	delivery := domain.Delivery{
		ID:              uuid.NewString(),
		CorrelationID:   event.ID,
		ConfigurationID: &configurationID,
		Channel:         domain.ChannelWebhook,
		EventType:       TestEventType,
		Recipient:       cfg.URL,
		Payload:         payload,
		PayloadDigest:   domain.PayloadDigest(payload),
		Status:          domain.DeliveryStatusSending,
		MaxAttempts:     1,
	}
	if err := s.deliveries.Create(ctx, &delivery); err != nil {
		return nil, nil, fmt.Errorf("failed to create test delivery: %w", err)
	}

	result, sendErr := s.dispatcher.Dispatch(ctx, &delivery)

	if sendErr == nil {
		if err := s.deliveries.MarkSucceeded(ctx, delivery.ID); err != nil {
			return &delivery, result, err
		}
		delivery.Status = domain.DeliveryStatusSucceeded
	} else {
		if err := s.deliveries.MarkFailed(ctx, delivery.ID); err != nil {
			return &delivery, result, err
		}
		delivery.Status = domain.DeliveryStatusFailed
	}
	delivery.AttemptCount = 1

	return &delivery, result, sendErr
}

// Logs returns the attempt log for one configuration, owner-scoped.
func (s *WebhookService) Logs(ctx context.Context, id, ownerID string, status *domain.AttemptStatus, limit, offset int) ([]domain.DeliveryAttempt, int64, error) {
	if _, err := s.configurations.GetByIDForOwner(ctx, id, ownerID); err != nil {
		return nil, 0, err
	}

	return s.attempts.Query(ctx, repository.AttemptQuery{
		ConfigurationID: &id,
		Status:          status,
		Limit:           limit,
		Offset:          offset,
	})
}

// QueryLogs is the admin view over the whole delivery log.
func (s *WebhookService) QueryLogs(ctx context.Context, q repository.AttemptQuery) ([]domain.DeliveryAttempt, int64, error) {
	return s.attempts.Query(ctx, q)
}

// Stats rolls attempt counts up by channel and status for a time window.
func (s *WebhookService) Stats(ctx context.Context, from, to time.Time) ([]repository.AttemptStat, error) {
	if to.IsZero() {
		to = s.now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	return s.attempts.Stats(ctx, from, to)
}
