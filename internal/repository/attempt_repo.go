package repository

import (
	"context"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
	"gorm.io/gorm"
)

// AttemptQuery filters the append-only delivery log. OwnerID scopes results
// to attempts against configurations the owner can see.
type AttemptQuery struct {
	ConfigurationID *string
	OwnerID         *string
	Status          *domain.AttemptStatus
	Limit           int
	Offset          int
}

// AttemptStat is one bucket of the admin stats rollup.
type AttemptStat struct {
	Channel domain.Channel       `gorm:"column:channel"`
	Status  domain.AttemptStatus `gorm:"column:status"`
	Count   int                  `gorm:"column:count"`
}

type AttemptRepository interface {
	Create(ctx context.Context, a *domain.DeliveryAttempt) error
	GetByDeliveryID(ctx context.Context, deliveryID string) ([]domain.DeliveryAttempt, error)
	Query(ctx context.Context, q AttemptQuery) ([]domain.DeliveryAttempt, int64, error)
	Stats(ctx context.Context, from, to time.Time) ([]AttemptStat, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	model := attemptModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		*a = *attemptModelToDomain(model)
	}
	return nil
}

func (r *GormAttemptRepo) GetByDeliveryID(ctx context.Context, deliveryID string) ([]domain.DeliveryAttempt, error) {
	var models []DeliveryAttemptModel
	err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return attemptsToDomain(models), nil
}

func (r *GormAttemptRepo) Query(ctx context.Context, q AttemptQuery) ([]domain.DeliveryAttempt, int64, error) {
	query := r.db.WithContext(ctx).Model(&DeliveryAttemptModel{})

	if q.ConfigurationID != nil {
		query = query.Where("configuration_id = ?", *q.ConfigurationID)
	}
	if q.OwnerID != nil {
		query = query.Where("configuration_id IN (?)",
			r.db.Model(&WebhookConfigurationModel{}).
				Select("id").
				Where("owner_id = ?", *q.OwnerID))
	}
	if q.Status != nil {
		query = query.Where("status = ?", *q.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := q.Limit
	if limit < 1 {
		limit = 50
	}
	limit = min(limit, 100)
	offset := max(q.Offset, 0)

	var models []DeliveryAttemptModel
	err := query.
		Order("started_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	return attemptsToDomain(models), total, nil
}

func (r *GormAttemptRepo) Stats(ctx context.Context, from, to time.Time) ([]AttemptStat, error) {
	var stats []AttemptStat
	err := r.db.WithContext(ctx).
		Model(&DeliveryAttemptModel{}).
		Select("channel, status, COUNT(*) as count").
		Where("started_at >= ? AND started_at <= ?", from, to).
		Group("channel").
		Group("status").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func attemptsToDomain(models []DeliveryAttemptModel) []domain.DeliveryAttempt {
	attempts := make([]domain.DeliveryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}
	return attempts
}
