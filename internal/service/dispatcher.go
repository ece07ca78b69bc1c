package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
	"github.com/basilakis/kai-delivery/internal/provider"
	"github.com/basilakis/kai-delivery/internal/ratelimit"
	"github.com/basilakis/kai-delivery/internal/repository"
	"github.com/basilakis/kai-delivery/internal/secret"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultDispatchTimeout = 15 * time.Second

// DispatchResult summarizes one attempted transport invocation.
type DispatchResult struct {
	AttemptNumber int
	Receipts      []provider.DeliveryReceipt
}

// DeliveryDispatcher executes one attempt for a delivery.
type DeliveryDispatcher interface {
	Dispatch(ctx context.Context, delivery *domain.Delivery) (*DispatchResult, error)
}

// Dispatcher executes exactly one delivery attempt: it resolves the adapter,
// enforces the rate limit, signs webhook payloads, invokes the transport, and
// appends exactly one attempt row regardless of outcome.
type Dispatcher struct {
	configurations repository.WebhookConfigurationRepository
	attempts       repository.AttemptRepository
	secrets        *secret.Manager
	providers      *provider.Factory
	resolver       *ratelimit.Resolver
	limiter        ratelimit.Limiter
	timeout        time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

func NewDispatcher(
	configurations repository.WebhookConfigurationRepository,
	attempts repository.AttemptRepository,
	secrets *secret.Manager,
	providers *provider.Factory,
	resolver *ratelimit.Resolver,
	limiter ratelimit.Limiter,
	timeout time.Duration,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if configurations == nil {
		return nil, fmt.Errorf("configuration repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("secret manager is required")
	}
	if providers == nil {
		return nil, fmt.Errorf("provider factory is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("rate limit resolver is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		configurations: configurations,
		attempts:       attempts,
		secrets:        secrets,
		providers:      providers,
		resolver:       resolver,
		limiter:        limiter,
		timeout:        timeout,
		logger:         logger,
		now:            time.Now,
	}, nil
}

// Dispatch performs one attempt for the delivery. The returned error carries
// the taxonomy class; callers decide retry versus terminal failure.
func (d *Dispatcher) Dispatch(ctx context.Context, delivery *domain.Delivery) (*DispatchResult, error) {
	if delivery == nil {
		return nil, fmt.Errorf("%w: delivery is required", domain.ErrValidation)
	}

	attemptNumber := delivery.AttemptCount + 1
	startedAt := d.now().UTC()
	result := &DispatchResult{AttemptNumber: attemptNumber}

	msg, endpointKey, buildErr := d.buildMessage(ctx, delivery)
	if buildErr != nil {
		if err := d.recordAttempt(ctx, delivery, attemptNumber, startedAt, nil, buildErr); err != nil {
			return result, err
		}
		return result, buildErr
	}

	scope := d.resolver.Resolve(endpointKey)
	admitted, err := d.limiter.TryAcquire(ctx, scope, 1)
	if err != nil {
		d.logger.Warn("rate limiter unavailable, admitting delivery",
			zap.String("deliveryId", delivery.ID),
			zap.String("scope", scope.Key),
			zap.Error(err),
		)
		admitted = true
	}
	if !admitted {
		limitErr := &provider.ProviderError{
			Message: fmt.Sprintf("rate limit exceeded for scope %s", scope.Key),
			Class:   domain.ErrorClassRateLimited,
			Cause:   domain.ErrRateLimited,
		}
		if err := d.recordAttempt(ctx, delivery, attemptNumber, startedAt, nil, limitErr); err != nil {
			return result, err
		}
		return result, limitErr
	}

	handle, err := d.providers.Handle(delivery.Channel)
	if err != nil {
		if recordErr := d.recordAttempt(ctx, delivery, attemptNumber, startedAt, nil, err); recordErr != nil {
			return result, recordErr
		}
		return result, err
	}
	adapter, err := handle.Acquire(ctx)
	if err != nil {
		initErr := &provider.ProviderError{
			Message: fmt.Sprintf("%s provider unavailable", delivery.Channel),
			Class:   domain.ErrorClassConfiguration,
			Cause:   err,
		}
		if recordErr := d.recordAttempt(ctx, delivery, attemptNumber, startedAt, nil, initErr); recordErr != nil {
			return result, recordErr
		}
		return result, initErr
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	receipts, sendErr := adapter.Send(sendCtx, msg)
	result.Receipts = receipts

	if err := d.recordAttempt(ctx, delivery, attemptNumber, startedAt, receipts, sendErr); err != nil {
		return result, err
	}

	return result, sendErr
}

// buildMessage assembles the transport message. Webhook deliveries are signed
// with the configuration's current secret over "<timestamp>.<payload>".
func (d *Dispatcher) buildMessage(ctx context.Context, delivery *domain.Delivery) (provider.Message, string, error) {
	msg := provider.Message{
		DeliveryID: delivery.ID,
		Channel:    delivery.Channel,
		EventType:  delivery.EventType,
	}

	switch delivery.Channel {
	case domain.ChannelWebhook:
		if delivery.ConfigurationID == nil {
			return msg, "", fmt.Errorf("%w: webhook delivery %s has no configuration", domain.ErrValidation, delivery.ID)
		}

		cfg, err := d.configurations.GetByID(ctx, *delivery.ConfigurationID)
		if err != nil {
			return msg, "", err
		}
		if !cfg.IsActive {
			return msg, "", &provider.ProviderError{
				Message: fmt.Sprintf("configuration %s is disabled", cfg.ID),
				Class:   domain.ErrorClassRejected,
			}
		}

		signingSecret, err := d.secrets.CurrentSecret(ctx, cfg.ID)
		if err != nil {
			return msg, "", err
		}

		timestamp := d.now().Unix()
		msg.URL = cfg.URL
		msg.Payload = delivery.Payload
		msg.Headers = map[string]string{
			secret.HeaderSignature:  secret.Sign(signingSecret, timestamp, delivery.Payload),
			secret.HeaderTimestamp:  strconv.FormatInt(timestamp, 10),
			secret.HeaderEvent:      string(delivery.EventType),
			secret.HeaderDeliveryID: delivery.ID,
		}
		return msg, cfg.Host(), nil

	case domain.ChannelEmail, domain.ChannelSMS:
		msg.Recipients = []string{delivery.Recipient}
		msg.Subject = delivery.Subject
		msg.Body = string(delivery.Payload)
		return msg, strings.ToLower(delivery.Channel.String()), nil
	}

	return msg, "", fmt.Errorf("%w: unsupported channel %q", domain.ErrValidation, delivery.Channel)
}

// recordAttempt appends the attempt row. One row per Dispatch call, including
// rate-limited attempts that never reached the transport.
func (d *Dispatcher) recordAttempt(
	ctx context.Context,
	delivery *domain.Delivery,
	attemptNumber int,
	startedAt time.Time,
	receipts []provider.DeliveryReceipt,
	sendErr error,
) error {
	completedAt := d.now().UTC()

	attempt := &domain.DeliveryAttempt{
		ID:              uuid.NewString(),
		DeliveryID:      delivery.ID,
		ConfigurationID: delivery.ConfigurationID,
		Channel:         delivery.Channel,
		PayloadDigest:   delivery.PayloadDigest,
		AttemptNumber:   attemptNumber,
		Status:          domain.AttemptStatusSuccess,
		StartedAt:       startedAt,
		CompletedAt:     &completedAt,
	}

	if len(receipts) > 0 {
		if id := strings.TrimSpace(receipts[0].MessageID); id != "" {
			attempt.ProviderMessageID = &id
		}
		if receipts[0].StatusCode > 0 {
			statusCode := receipts[0].StatusCode
			attempt.HTTPStatus = &statusCode
		}
	}

	if sendErr != nil {
		attempt.Status = domain.AttemptStatusError

		message := sendErr.Error()
		attempt.Error = &message

		class := provider.Classify(sendErr)
		attempt.ErrorClass = &class

		var providerErr *provider.ProviderError
		if errors.As(sendErr, &providerErr) && providerErr.StatusCode > 0 && attempt.HTTPStatus == nil {
			statusCode := providerErr.StatusCode
			attempt.HTTPStatus = &statusCode
		}
	}

	if err := d.attempts.Create(ctx, attempt); err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}
	return nil
}
