package service

import (
	"context"
	"fmt"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
	"github.com/basilakis/kai-delivery/internal/queue"
	"github.com/basilakis/kai-delivery/internal/ratelimit"
	"github.com/basilakis/kai-delivery/internal/repository"
)

type fakeDeliveryRepo struct {
	createFn         func(ctx context.Context, d *domain.Delivery) error
	getByIDFn        func(ctx context.Context, id string) (*domain.Delivery, error)
	lockForSendingFn func(ctx context.Context, id string) (*domain.Delivery, error)
	markSucceededFn  func(ctx context.Context, id string) error
	markFailedFn     func(ctx context.Context, id string) error
	scheduleRetryFn  func(ctx context.Context, id string, nextRetryAt time.Time) error
	clearNextRetryFn func(ctx context.Context, id string) error
	getDueForRetryFn func(ctx context.Context, limit int) ([]domain.Delivery, error)
}

func (f *fakeDeliveryRepo) Create(ctx context.Context, d *domain.Delivery) error {
	if f.createFn == nil {
		return nil
	}
	return f.createFn(ctx, d)
}

func (f *fakeDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	if f.getByIDFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.getByIDFn(ctx, id)
}

func (f *fakeDeliveryRepo) LockForSending(ctx context.Context, id string) (*domain.Delivery, error) {
	if f.lockForSendingFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.lockForSendingFn(ctx, id)
}

func (f *fakeDeliveryRepo) MarkSucceeded(ctx context.Context, id string) error {
	if f.markSucceededFn == nil {
		return nil
	}
	return f.markSucceededFn(ctx, id)
}

func (f *fakeDeliveryRepo) MarkFailed(ctx context.Context, id string) error {
	if f.markFailedFn == nil {
		return nil
	}
	return f.markFailedFn(ctx, id)
}

func (f *fakeDeliveryRepo) ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time) error {
	if f.scheduleRetryFn == nil {
		return nil
	}
	return f.scheduleRetryFn(ctx, id, nextRetryAt)
}

func (f *fakeDeliveryRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	if f.clearNextRetryFn == nil {
		return nil
	}
	return f.clearNextRetryFn(ctx, id)
}

func (f *fakeDeliveryRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.Delivery, error) {
	if f.getDueForRetryFn == nil {
		return nil, nil
	}
	return f.getDueForRetryFn(ctx, limit)
}

type fakeConfigurationRepo struct {
	configurations map[string]*domain.WebhookConfiguration

	createFn            func(ctx context.Context, c *domain.WebhookConfiguration) error
	updateFn            func(ctx context.Context, c *domain.WebhookConfiguration) error
	updateSecretsFn     func(ctx context.Context, id, current string, previous *string, rotatedAt time.Time) error
	deleteFn            func(ctx context.Context, id, ownerID string) error
	listActiveByEventFn func(ctx context.Context, eventType domain.EventType) ([]domain.WebhookConfiguration, error)
}

func (f *fakeConfigurationRepo) Create(ctx context.Context, c *domain.WebhookConfiguration) error {
	if f.createFn != nil {
		return f.createFn(ctx, c)
	}
	if f.configurations == nil {
		f.configurations = map[string]*domain.WebhookConfiguration{}
	}
	stored := *c
	f.configurations[c.ID] = &stored
	return nil
}

func (f *fakeConfigurationRepo) GetByID(ctx context.Context, id string) (*domain.WebhookConfiguration, error) {
	cfg, ok := f.configurations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *cfg
	return &copied, nil
}

func (f *fakeConfigurationRepo) GetByIDForOwner(ctx context.Context, id, ownerID string) (*domain.WebhookConfiguration, error) {
	cfg, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cfg.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return cfg, nil
}

func (f *fakeConfigurationRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.WebhookConfiguration, error) {
	var out []domain.WebhookConfiguration
	for _, cfg := range f.configurations {
		if cfg.OwnerID == ownerID {
			out = append(out, *cfg)
		}
	}
	return out, nil
}

func (f *fakeConfigurationRepo) ListAll(ctx context.Context) ([]domain.WebhookConfiguration, error) {
	var out []domain.WebhookConfiguration
	for _, cfg := range f.configurations {
		out = append(out, *cfg)
	}
	return out, nil
}

func (f *fakeConfigurationRepo) ListActiveByEvent(ctx context.Context, eventType domain.EventType) ([]domain.WebhookConfiguration, error) {
	if f.listActiveByEventFn != nil {
		return f.listActiveByEventFn(ctx, eventType)
	}
	var out []domain.WebhookConfiguration
	for _, cfg := range f.configurations {
		if cfg.IsActive && cfg.SubscribesTo(eventType) {
			out = append(out, *cfg)
		}
	}
	return out, nil
}

func (f *fakeConfigurationRepo) Update(ctx context.Context, c *domain.WebhookConfiguration) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, c)
	}
	existing, ok := f.configurations[c.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.URL = c.URL
	existing.Events = c.Events
	existing.IsActive = c.IsActive
	return nil
}

func (f *fakeConfigurationRepo) UpdateSecrets(ctx context.Context, id, current string, previous *string, rotatedAt time.Time) error {
	if f.updateSecretsFn != nil {
		return f.updateSecretsFn(ctx, id, current, previous, rotatedAt)
	}
	existing, ok := f.configurations[id]
	if !ok {
		return domain.ErrNotFound
	}
	existing.SigningSecret = current
	existing.PreviousSecret = previous
	existing.SecretRotatedAt = &rotatedAt
	return nil
}

func (f *fakeConfigurationRepo) Delete(ctx context.Context, id, ownerID string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id, ownerID)
	}
	cfg, ok := f.configurations[id]
	if !ok || cfg.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	delete(f.configurations, id)
	return nil
}

type fakeAttemptRepo struct {
	attempts []domain.DeliveryAttempt

	createFn func(ctx context.Context, a *domain.DeliveryAttempt) error
	queryFn  func(ctx context.Context, q repository.AttemptQuery) ([]domain.DeliveryAttempt, int64, error)
	statsFn  func(ctx context.Context, from, to time.Time) ([]repository.AttemptStat, error)
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	f.attempts = append(f.attempts, *a)
	return nil
}

func (f *fakeAttemptRepo) GetByDeliveryID(ctx context.Context, deliveryID string) ([]domain.DeliveryAttempt, error) {
	var out []domain.DeliveryAttempt
	for _, a := range f.attempts {
		if a.DeliveryID == deliveryID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAttemptRepo) Query(ctx context.Context, q repository.AttemptQuery) ([]domain.DeliveryAttempt, int64, error) {
	if f.queryFn != nil {
		return f.queryFn(ctx, q)
	}
	return f.attempts, int64(len(f.attempts)), nil
}

func (f *fakeAttemptRepo) Stats(ctx context.Context, from, to time.Time) ([]repository.AttemptStat, error) {
	if f.statsFn != nil {
		return f.statsFn(ctx, from, to)
	}
	return nil, nil
}

type fakePublisher struct {
	published []queue.DeliveryMessage
	publishFn func(ctx context.Context, queueName string, msg queue.DeliveryMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeDispatcher struct {
	dispatchFn func(ctx context.Context, delivery *domain.Delivery) (*DispatchResult, error)
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, delivery *domain.Delivery) (*DispatchResult, error) {
	if f.dispatchFn == nil {
		return nil, fmt.Errorf("dispatch not configured")
	}
	return f.dispatchFn(ctx, delivery)
}

type fakeLimiter struct {
	tryAcquireFn func(ctx context.Context, scope ratelimit.Scope, cost int) (bool, error)
}

func (f *fakeLimiter) TryAcquire(ctx context.Context, scope ratelimit.Scope, cost int) (bool, error) {
	if f.tryAcquireFn == nil {
		return true, nil
	}
	return f.tryAcquireFn(ctx, scope, cost)
}
