package secret

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
)

type fakeConfigStore struct {
	configs map[string]*domain.WebhookConfiguration
}

func newFakeConfigStore(configs ...*domain.WebhookConfiguration) *fakeConfigStore {
	store := &fakeConfigStore{configs: make(map[string]*domain.WebhookConfiguration)}
	for _, cfg := range configs {
		store.configs[cfg.ID] = cfg
	}
	return store
}

func (s *fakeConfigStore) GetByID(ctx context.Context, id string) (*domain.WebhookConfiguration, error) {
	cfg, ok := s.configs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *cfg
	return &copied, nil
}

func (s *fakeConfigStore) UpdateSecrets(ctx context.Context, id string, current string, previous *string, rotatedAt time.Time) error {
	cfg, ok := s.configs[id]
	if !ok {
		return domain.ErrNotFound
	}
	cfg.SigningSecret = current
	cfg.PreviousSecret = previous
	cfg.SecretRotatedAt = &rotatedAt
	return nil
}

func TestGenerateSecret(t *testing.T) {
	t.Parallel()

	first, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret() unexpected error: %v", err)
	}
	second, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret() unexpected error: %v", err)
	}

	if !strings.HasPrefix(first, "whsec_") {
		t.Fatalf("secret %q missing whsec_ prefix", first)
	}
	if len(first) != len("whsec_")+64 {
		t.Fatalf("secret length = %d, want %d", len(first), len("whsec_")+64)
	}
	if first == second {
		t.Fatal("two generated secrets are identical")
	}
}

func TestSignAndVerifyAny(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":"evt-1","type":"material.created"}`)
	signature := Sign("secret-a", 1700000000, payload)

	if !VerifyAny([]string{"secret-a"}, 1700000000, payload, signature) {
		t.Fatal("VerifyAny() = false for matching secret")
	}
	if !VerifyAny([]string{"secret-b", "secret-a"}, 1700000000, payload, signature) {
		t.Fatal("VerifyAny() = false when match is not first candidate")
	}
	if VerifyAny([]string{"secret-b"}, 1700000000, payload, signature) {
		t.Fatal("VerifyAny() = true for wrong secret")
	}
	if VerifyAny([]string{"secret-a"}, 1700000001, payload, signature) {
		t.Fatal("VerifyAny() = true for tampered timestamp")
	}
	if VerifyAny([]string{"secret-a"}, 1700000000, []byte("tampered"), signature) {
		t.Fatal("VerifyAny() = true for tampered payload")
	}
}

func TestManagerCurrentSecret(t *testing.T) {
	t.Parallel()

	store := newFakeConfigStore(
		&domain.WebhookConfiguration{ID: "cfg-1", SigningSecret: "whsec_current"},
		&domain.WebhookConfiguration{ID: "cfg-empty"},
	)

	m, err := NewManager(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}

	got, err := m.CurrentSecret(context.Background(), "cfg-1")
	if err != nil {
		t.Fatalf("CurrentSecret() unexpected error: %v", err)
	}
	if got != "whsec_current" {
		t.Fatalf("CurrentSecret() = %q, want whsec_current", got)
	}

	if _, err := m.CurrentSecret(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("CurrentSecret(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := m.CurrentSecret(context.Background(), "cfg-empty"); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("CurrentSecret(cfg-empty) error = %v, want ErrConfiguration", err)
	}
}

func TestManagerRotateKeepsOldSecretValidWithinGrace(t *testing.T) {
	t.Parallel()

	store := newFakeConfigStore(&domain.WebhookConfiguration{ID: "cfg-1", SigningSecret: "whsec_old"})

	m, err := NewManager(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	payload := []byte(`{"hello":"world"}`)
	oldSignature := Sign("whsec_old", now.Unix(), payload)

	newSecret, err := m.Rotate(context.Background(), "cfg-1")
	if err != nil {
		t.Fatalf("Rotate() unexpected error: %v", err)
	}
	if newSecret == "whsec_old" {
		t.Fatal("Rotate() did not generate a new secret")
	}

	// New secret validates immediately.
	newSignature := Sign(newSecret, now.Unix(), payload)
	ok, err := m.IsValidSignature(context.Background(), "cfg-1", payload, now.Unix(), newSignature)
	if err != nil || !ok {
		t.Fatalf("IsValidSignature(new) = %v, %v; want true", ok, err)
	}

	// Old secret stays valid inside the grace window.
	ok, err = m.IsValidSignature(context.Background(), "cfg-1", payload, now.Unix(), oldSignature)
	if err != nil || !ok {
		t.Fatalf("IsValidSignature(old within grace) = %v, %v; want true", ok, err)
	}

	// After the grace window elapses, the old generation stops validating.
	m.now = func() time.Time { return now.Add(25 * time.Hour) }
	ok, err = m.IsValidSignature(context.Background(), "cfg-1", payload, now.Unix(), oldSignature)
	if err != nil {
		t.Fatalf("IsValidSignature() unexpected error: %v", err)
	}
	if ok {
		t.Fatal("IsValidSignature(old after grace) = true, want false")
	}

	// The current generation has no expiry.
	ok, err = m.IsValidSignature(context.Background(), "cfg-1", payload, now.Unix(), newSignature)
	if err != nil || !ok {
		t.Fatalf("IsValidSignature(new after grace) = %v, %v; want true", ok, err)
	}
}

func TestManagerRotateFirstGeneration(t *testing.T) {
	t.Parallel()

	store := newFakeConfigStore(&domain.WebhookConfiguration{ID: "cfg-1"})

	m, err := NewManager(store, 0)
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}

	newSecret, err := m.Rotate(context.Background(), "cfg-1")
	if err != nil {
		t.Fatalf("Rotate() unexpected error: %v", err)
	}

	secrets, err := m.ValidSecrets(context.Background(), "cfg-1")
	if err != nil {
		t.Fatalf("ValidSecrets() unexpected error: %v", err)
	}
	if len(secrets) != 1 || secrets[0] != newSecret {
		t.Fatalf("ValidSecrets() = %v, want only the new secret", secrets)
	}
}
