package secret

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
)

const defaultGraceWindow = 24 * time.Hour

// ConfigurationStore is the slice of the configuration repository the manager
// needs: secret reads and the rotation write.
type ConfigurationStore interface {
	GetByID(ctx context.Context, id string) (*domain.WebhookConfiguration, error)
	UpdateSecrets(ctx context.Context, id string, current string, previous *string, rotatedAt time.Time) error
}

// Manager owns the signing-secret lifecycle for webhook configurations:
// generation, rotation with a grace window, and signature validation across
// the current and previous secret generations.
type Manager struct {
	store       ConfigurationStore
	graceWindow time.Duration
	now         func() time.Time
}

func NewManager(store ConfigurationStore, graceWindow time.Duration) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("configuration store is required")
	}
	if graceWindow <= 0 {
		graceWindow = defaultGraceWindow
	}

	return &Manager{
		store:       store,
		graceWindow: graceWindow,
		now:         time.Now,
	}, nil
}

// CurrentSecret returns the active signing secret for a configuration.
func (m *Manager) CurrentSecret(ctx context.Context, configurationID string) (string, error) {
	cfg, err := m.store.GetByID(ctx, configurationID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cfg.SigningSecret) == "" {
		return "", fmt.Errorf("%w: configuration %s has no signing secret", domain.ErrConfiguration, configurationID)
	}
	return cfg.SigningSecret, nil
}

// Rotate generates a new secret, demotes the old one to the previous
// generation, and starts the grace window. Consumers can migrate to the new
// secret while signatures from either generation still validate.
func (m *Manager) Rotate(ctx context.Context, configurationID string) (string, error) {
	cfg, err := m.store.GetByID(ctx, configurationID)
	if err != nil {
		return "", err
	}

	newSecret, err := GenerateSecret()
	if err != nil {
		return "", err
	}

	var previous *string
	if old := strings.TrimSpace(cfg.SigningSecret); old != "" {
		previous = &old
	}

	rotatedAt := m.now().UTC()
	if err := m.store.UpdateSecrets(ctx, configurationID, newSecret, previous, rotatedAt); err != nil {
		return "", fmt.Errorf("failed to persist rotated secret: %w", err)
	}

	return newSecret, nil
}

// ValidSecrets returns every secret generation that currently validates:
// always the current one, plus the previous generation while the grace window
// since rotation has not elapsed.
func (m *Manager) ValidSecrets(ctx context.Context, configurationID string) ([]string, error) {
	cfg, err := m.store.GetByID(ctx, configurationID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.SigningSecret) == "" {
		return nil, fmt.Errorf("%w: configuration %s has no signing secret", domain.ErrConfiguration, configurationID)
	}

	secrets := []string{cfg.SigningSecret}
	if cfg.PreviousSecret != nil && cfg.SecretRotatedAt != nil {
		if m.now().Sub(*cfg.SecretRotatedAt) <= m.graceWindow {
			secrets = append(secrets, *cfg.PreviousSecret)
		}
	}

	return secrets, nil
}

// IsValidSignature recomputes the HMAC over the exact payload bytes for each
// valid secret generation and compares in constant time.
func (m *Manager) IsValidSignature(ctx context.Context, configurationID string, payload []byte, timestamp int64, signature string) (bool, error) {
	secrets, err := m.ValidSecrets(ctx, configurationID)
	if err != nil {
		return false, err
	}
	return VerifyAny(secrets, timestamp, payload, signature), nil
}
