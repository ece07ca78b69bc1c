package repository

import (
	"context"
	"errors"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
	"gorm.io/gorm"
)

type WebhookConfigurationRepository interface {
	Create(ctx context.Context, c *domain.WebhookConfiguration) error
	GetByID(ctx context.Context, id string) (*domain.WebhookConfiguration, error)
	GetByIDForOwner(ctx context.Context, id, ownerID string) (*domain.WebhookConfiguration, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.WebhookConfiguration, error)
	ListAll(ctx context.Context) ([]domain.WebhookConfiguration, error)
	ListActiveByEvent(ctx context.Context, eventType domain.EventType) ([]domain.WebhookConfiguration, error)
	Update(ctx context.Context, c *domain.WebhookConfiguration) error
	UpdateSecrets(ctx context.Context, id, currentSecret string, previousSecret *string, rotatedAt time.Time) error
	Delete(ctx context.Context, id, ownerID string) error
}

type GormWebhookConfigurationRepo struct {
	db *gorm.DB
}

func NewGormWebhookConfigurationRepo(db *gorm.DB) *GormWebhookConfigurationRepo {
	return &GormWebhookConfigurationRepo{db: db}
}

func (r *GormWebhookConfigurationRepo) Create(ctx context.Context, c *domain.WebhookConfiguration) error {
	model := configurationModelFromDomain(c)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if c != nil {
		*c = *configurationModelToDomain(model)
	}
	return nil
}

func (r *GormWebhookConfigurationRepo) GetByID(ctx context.Context, id string) (*domain.WebhookConfiguration, error) {
	var model WebhookConfigurationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return configurationModelToDomain(&model), nil
}

func (r *GormWebhookConfigurationRepo) GetByIDForOwner(ctx context.Context, id, ownerID string) (*domain.WebhookConfiguration, error) {
	var model WebhookConfigurationModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return configurationModelToDomain(&model), nil
}

func (r *GormWebhookConfigurationRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.WebhookConfiguration, error) {
	var models []WebhookConfigurationModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return configurationsToDomain(models), nil
}

func (r *GormWebhookConfigurationRepo) ListAll(ctx context.Context) ([]domain.WebhookConfiguration, error) {
	var models []WebhookConfigurationModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return configurationsToDomain(models), nil
}

// ListActiveByEvent matches on the comma-joined events column; the LIKE
// prefilter narrows the scan and SubscribesTo makes the final call so a
// subscription to order.created never matches order.created_legacy.
func (r *GormWebhookConfigurationRepo) ListActiveByEvent(ctx context.Context, eventType domain.EventType) ([]domain.WebhookConfiguration, error) {
	var models []WebhookConfigurationModel
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND events LIKE ?", true, "%"+string(eventType)+"%").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	configurations := make([]domain.WebhookConfiguration, 0, len(models))
	for i := range models {
		configuration := configurationModelToDomain(&models[i])
		if configuration.SubscribesTo(eventType) {
			configurations = append(configurations, *configuration)
		}
	}
	return configurations, nil
}

func (r *GormWebhookConfigurationRepo) Update(ctx context.Context, c *domain.WebhookConfiguration) error {
	model := configurationModelFromDomain(c)
	result := r.db.WithContext(ctx).
		Model(&WebhookConfigurationModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]any{
			"url":       model.URL,
			"events":    model.Events,
			"is_active": model.IsActive,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormWebhookConfigurationRepo) UpdateSecrets(ctx context.Context, id, currentSecret string, previousSecret *string, rotatedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&WebhookConfigurationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"signing_secret":    currentSecret,
			"previous_secret":   previousSecret,
			"secret_rotated_at": rotatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormWebhookConfigurationRepo) Delete(ctx context.Context, id, ownerID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&WebhookConfigurationModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func configurationsToDomain(models []WebhookConfigurationModel) []domain.WebhookConfiguration {
	configurations := make([]domain.WebhookConfiguration, 0, len(models))
	for i := range models {
		configurations = append(configurations, *configurationModelToDomain(&models[i]))
	}
	return configurations
}
