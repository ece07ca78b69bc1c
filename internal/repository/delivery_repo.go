package repository

import (
	"context"
	"errors"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.Delivery) error
	GetByID(ctx context.Context, id string) (*domain.Delivery, error)
	LockForSending(ctx context.Context, id string) (*domain.Delivery, error)
	MarkSucceeded(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time) error
	ClearNextRetryAt(ctx context.Context, id string) error
	GetDueForRetry(ctx context.Context, limit int) ([]domain.Delivery, error)
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

func (r *GormDeliveryRepo) Create(ctx context.Context, d *domain.Delivery) error {
	model := deliveryModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if d != nil {
		*d = *deliveryModelToDomain(model)
	}
	return nil
}

func (r *GormDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	var model DeliveryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

// LockForSending claims a delivery for exactly one worker. Returns nil
// without error when the row is already terminal or claimed, so duplicate
// queue messages become no-ops.
func (r *GormDeliveryRepo) LockForSending(ctx context.Context, id string) (*domain.Delivery, error) {
	var model DeliveryModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	switch model.Status {
	case domain.DeliveryStatusSucceeded, domain.DeliveryStatusFailed, domain.DeliveryStatusSending:
		return nil, nil
	}

	updates := map[string]any{
		"status":        domain.DeliveryStatusSending,
		"next_retry_at": nil,
	}
	if model.FirstAttemptAt == nil {
		firstAttemptAt := time.Now()
		model.FirstAttemptAt = &firstAttemptAt
		updates["first_attempt_at"] = firstAttemptAt
	}

	if err := r.db.WithContext(ctx).
		Model(&model).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	model.Status = domain.DeliveryStatusSending
	model.NextRetryAt = nil
	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) MarkSucceeded(ctx context.Context, id string) error {
	return r.setTerminalStatus(ctx, id, domain.DeliveryStatusSucceeded)
}

func (r *GormDeliveryRepo) MarkFailed(ctx context.Context, id string) error {
	return r.setTerminalStatus(ctx, id, domain.DeliveryStatusFailed)
}

func (r *GormDeliveryRepo) setTerminalStatus(ctx context.Context, id string, status domain.DeliveryStatus) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        status,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"next_retry_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormDeliveryRepo) ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.DeliveryStatusPending,
			"next_retry_at": nextRetryAt,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormDeliveryRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ?", id).
		Update("next_retry_at", nil)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormDeliveryRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.Delivery, error) {
	var models []DeliveryModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", domain.DeliveryStatusPending, time.Now()).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	deliveries := make([]domain.Delivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}

	return deliveries, nil
}
