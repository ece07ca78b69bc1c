package service

import (
	"context"
	"fmt"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
	"github.com/basilakis/kai-delivery/internal/queue"
	"github.com/basilakis/kai-delivery/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultMaxAttempts = 5

// DeliveryService turns incoming events and ad hoc notifications into
// delivery rows and enqueues them for the workers.
type DeliveryService struct {
	deliveries     repository.DeliveryRepository
	configurations repository.WebhookConfigurationRepository
	publisher      queue.Publisher
	maxAttempts    int
	logger         *zap.Logger
}

func NewDeliveryService(
	deliveries repository.DeliveryRepository,
	configurations repository.WebhookConfigurationRepository,
	publisher queue.Publisher,
	maxAttempts int,
	logger *zap.Logger,
) (*DeliveryService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if configurations == nil {
		return nil, fmt.Errorf("configuration repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryService{
		deliveries:     deliveries,
		configurations: configurations,
		publisher:      publisher,
		maxAttempts:    maxAttempts,
		logger:         logger,
	}, nil
}

// IngestEvent fans an event out to every active configuration subscribed to
// its type. Each matching configuration gets its own delivery row so per-
// endpoint failures stay isolated.
func (s *DeliveryService) IngestEvent(ctx context.Context, event *domain.Event) ([]domain.Delivery, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if event != nil && event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event != nil && event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := event.CanonicalPayload()
	if err != nil {
		return nil, err
	}
	digest := domain.PayloadDigest(payload)

	configurations, err := s.configurations.ListActiveByEvent(ctx, event.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve subscribers: %w", err)
	}

	deliveries := make([]domain.Delivery, 0, len(configurations))
	for i := range configurations {
		cfg := configurations[i]
		configurationID := cfg.ID

		delivery := domain.Delivery{
			ID:              uuid.NewString(),
			CorrelationID:   event.ID,
			ConfigurationID: &configurationID,
			Channel:         domain.ChannelWebhook,
			EventType:       event.Type,
			Recipient:       cfg.URL,
			Payload:         payload,
			PayloadDigest:   digest,
			Status:          domain.DeliveryStatusPending,
			MaxAttempts:     s.maxAttempts,
		}

		if err := s.createAndEnqueue(ctx, &delivery); err != nil {
			return deliveries, err
		}
		deliveries = append(deliveries, delivery)
	}

	return deliveries, nil
}

// CreateNotification creates one delivery per address for an ad hoc email or
// SMS send.
func (s *DeliveryService) CreateNotification(ctx context.Context, target *domain.NotificationTarget) ([]domain.Delivery, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := target.Validate(); err != nil {
		return nil, err
	}

	correlationID := uuid.NewString()
	payload := []byte(target.Body)
	digest := domain.PayloadDigest(payload)

	deliveries := make([]domain.Delivery, 0, len(target.Addresses))
	for _, address := range target.Addresses {
		delivery := domain.Delivery{
			ID:            uuid.NewString(),
			CorrelationID: correlationID,
			Channel:       target.Channel,
			Recipient:     address,
			Subject:       target.Subject,
			Payload:       payload,
			PayloadDigest: digest,
			Status:        domain.DeliveryStatusPending,
			MaxAttempts:   s.maxAttempts,
		}

		if err := s.createAndEnqueue(ctx, &delivery); err != nil {
			return deliveries, err
		}
		deliveries = append(deliveries, delivery)
	}

	return deliveries, nil
}

func (s *DeliveryService) GetDelivery(ctx context.Context, id string) (*domain.Delivery, error) {
	return s.deliveries.GetByID(ctx, id)
}

func (s *DeliveryService) createAndEnqueue(ctx context.Context, delivery *domain.Delivery) error {
	if err := delivery.Validate(); err != nil {
		return err
	}

	if err := s.deliveries.Create(ctx, delivery); err != nil {
		return fmt.Errorf("failed to create delivery: %w", err)
	}

	msg := queue.DeliveryMessage{
		DeliveryID:    delivery.ID,
		CorrelationID: delivery.CorrelationID,
		Channel:       delivery.Channel,
	}
	if err := s.publisher.Publish(ctx, queue.QueueName(delivery.Channel), msg); err != nil {
		s.logger.Error("failed to publish delivery",
			zap.String("deliveryId", delivery.ID),
			zap.String("channel", string(delivery.Channel)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish delivery: %w", err)
	}

	return nil
}
