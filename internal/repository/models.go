package repository

import (
	"strings"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
)

// WebhookConfigurationModel is the persistence model for webhook_configurations.
type WebhookConfigurationModel struct {
	ID              string     `gorm:"type:uuid;primaryKey"`
	OwnerID         string     `gorm:"type:varchar(255);not null"`
	URL             string     `gorm:"type:text;not null"`
	Events          string     `gorm:"type:text;not null"`
	IsActive        bool       `gorm:"not null;default:true"`
	SigningSecret   string     `gorm:"type:varchar(255);not null"`
	PreviousSecret  *string    `gorm:"type:varchar(255)"`
	SecretRotatedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (WebhookConfigurationModel) TableName() string {
	return "webhook_configurations"
}

// DeliveryModel is the persistence model for the deliveries table.
type DeliveryModel struct {
	ID              string                `gorm:"type:uuid;primaryKey"`
	CorrelationID   string                `gorm:"type:varchar(36);not null"`
	ConfigurationID *string               `gorm:"type:uuid"`
	Channel         domain.Channel        `gorm:"type:varchar(10);not null"`
	EventType       domain.EventType      `gorm:"type:varchar(255);not null"`
	Recipient       string                `gorm:"type:text;not null"`
	Subject         string                `gorm:"type:text"`
	Payload         []byte                `gorm:"type:bytea;not null"`
	PayloadDigest   string                `gorm:"type:varchar(64);not null"`
	Status          domain.DeliveryStatus `gorm:"type:varchar(20);not null"`
	AttemptCount    int                   `gorm:"not null;default:0"`
	MaxAttempts     int                   `gorm:"not null;default:5"`
	FirstAttemptAt  *time.Time            `gorm:"type:timestamptz"`
	NextRetryAt     *time.Time            `gorm:"type:timestamptz"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (DeliveryModel) TableName() string {
	return "deliveries"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID                string             `gorm:"type:uuid;primaryKey"`
	DeliveryID        string             `gorm:"type:uuid;not null"`
	ConfigurationID   *string            `gorm:"type:uuid"`
	Channel           domain.Channel     `gorm:"type:varchar(10);not null"`
	PayloadDigest     string             `gorm:"type:varchar(64);not null"`
	AttemptNumber     int                `gorm:"not null"`
	Status            domain.AttemptStatus `gorm:"type:varchar(20);not null"`
	HTTPStatus        *int               `gorm:"type:int"`
	ProviderMessageID *string            `gorm:"type:varchar(255)"`
	ErrorClass        *string            `gorm:"type:varchar(20)"`
	Error             *string            `gorm:"type:text"`
	StartedAt         time.Time          `gorm:"type:timestamptz;not null"`
	CompletedAt       *time.Time         `gorm:"type:timestamptz"`
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func configurationModelFromDomain(c *domain.WebhookConfiguration) *WebhookConfigurationModel {
	if c == nil {
		return nil
	}

	events := make([]string, 0, len(c.Events))
	for _, eventType := range c.Events {
		events = append(events, string(eventType))
	}

	return &WebhookConfigurationModel{
		ID:              c.ID,
		OwnerID:         c.OwnerID,
		URL:             c.URL,
		Events:          strings.Join(events, ","),
		IsActive:        c.IsActive,
		SigningSecret:   c.SigningSecret,
		PreviousSecret:  c.PreviousSecret,
		SecretRotatedAt: c.SecretRotatedAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func configurationModelToDomain(m *WebhookConfigurationModel) *domain.WebhookConfiguration {
	if m == nil {
		return nil
	}

	var events []domain.EventType
	for _, raw := range strings.Split(m.Events, ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			events = append(events, domain.EventType(raw))
		}
	}

	return &domain.WebhookConfiguration{
		ID:              m.ID,
		OwnerID:         m.OwnerID,
		URL:             m.URL,
		Events:          events,
		IsActive:        m.IsActive,
		SigningSecret:   m.SigningSecret,
		PreviousSecret:  m.PreviousSecret,
		SecretRotatedAt: m.SecretRotatedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func deliveryModelFromDomain(d *domain.Delivery) *DeliveryModel {
	if d == nil {
		return nil
	}

	return &DeliveryModel{
		ID:              d.ID,
		CorrelationID:   d.CorrelationID,
		ConfigurationID: d.ConfigurationID,
		Channel:         d.Channel,
		EventType:       d.EventType,
		Recipient:       d.Recipient,
		Subject:         d.Subject,
		Payload:         d.Payload,
		PayloadDigest:   d.PayloadDigest,
		Status:          d.Status,
		AttemptCount:    d.AttemptCount,
		MaxAttempts:     d.MaxAttempts,
		FirstAttemptAt:  d.FirstAttemptAt,
		NextRetryAt:     d.NextRetryAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func deliveryModelToDomain(m *DeliveryModel) *domain.Delivery {
	if m == nil {
		return nil
	}

	return &domain.Delivery{
		ID:              m.ID,
		CorrelationID:   m.CorrelationID,
		ConfigurationID: m.ConfigurationID,
		Channel:         m.Channel,
		EventType:       m.EventType,
		Recipient:       m.Recipient,
		Subject:         m.Subject,
		Payload:         m.Payload,
		PayloadDigest:   m.PayloadDigest,
		Status:          m.Status,
		AttemptCount:    m.AttemptCount,
		MaxAttempts:     m.MaxAttempts,
		FirstAttemptAt:  m.FirstAttemptAt,
		NextRetryAt:     m.NextRetryAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	var errorClass *string
	if a.ErrorClass != nil {
		value := string(*a.ErrorClass)
		errorClass = &value
	}

	return &DeliveryAttemptModel{
		ID:                a.ID,
		DeliveryID:        a.DeliveryID,
		ConfigurationID:   a.ConfigurationID,
		Channel:           a.Channel,
		PayloadDigest:     a.PayloadDigest,
		AttemptNumber:     a.AttemptNumber,
		Status:            a.Status,
		HTTPStatus:        a.HTTPStatus,
		ProviderMessageID: a.ProviderMessageID,
		ErrorClass:        errorClass,
		Error:             a.Error,
		StartedAt:         a.StartedAt,
		CompletedAt:       a.CompletedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	var errorClass *domain.ErrorClass
	if m.ErrorClass != nil {
		value := domain.ErrorClass(*m.ErrorClass)
		errorClass = &value
	}

	return &domain.DeliveryAttempt{
		ID:                m.ID,
		DeliveryID:        m.DeliveryID,
		ConfigurationID:   m.ConfigurationID,
		Channel:           m.Channel,
		PayloadDigest:     m.PayloadDigest,
		AttemptNumber:     m.AttemptNumber,
		Status:            m.Status,
		HTTPStatus:        m.HTTPStatus,
		ProviderMessageID: m.ProviderMessageID,
		ErrorClass:        errorClass,
		Error:             m.Error,
		StartedAt:         m.StartedAt,
		CompletedAt:       m.CompletedAt,
	}
}
