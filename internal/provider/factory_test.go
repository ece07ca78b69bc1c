package provider

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
	"go.uber.org/zap"
)

func newTestFactory(t *testing.T, email EmailSettings, sms SMSSettings, production bool) *Factory {
	t.Helper()

	factory, err := NewFactory(zap.NewNop(), 5*time.Second, email, sms, production)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	return factory
}

func TestFactoryWebhookHandle(t *testing.T) {
	t.Parallel()

	factory := newTestFactory(t,
		EmailSettings{Kind: "dev", MailboxDir: t.TempDir(), From: "noreply@example.com"},
		SMSSettings{Kind: "mock"},
		false)

	handle, err := factory.Handle(domain.ChannelWebhook)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	p, err := handle.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if p.Name() != "webhook" {
		t.Errorf("provider name = %q", p.Name())
	}

	again, err := handle.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if again != p {
		t.Error("Acquire must reuse the initialized provider")
	}

	state := handle.State()
	if !state.Initialized || state.FallbackActive {
		t.Errorf("unexpected state: %+v", state)
	}
	if state.LastVerifiedAt == nil {
		t.Error("LastVerifiedAt not recorded")
	}
}

func TestFactoryEmailFallbackOutsideProduction(t *testing.T) {
	t.Parallel()

	factory := newTestFactory(t,
		EmailSettings{
			Kind:       "smtp",
			SMTPHost:   "", // invalid on purpose, forces the fallback path
			SMTPPort:   587,
			From:       "noreply@example.com",
			MailboxDir: t.TempDir(),
		},
		SMSSettings{Kind: "mock"},
		false)

	handle, err := factory.Handle(domain.ChannelEmail)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	p, err := handle.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if p.Name() != "dev" {
		t.Errorf("expected dev fallback, got %q", p.Name())
	}

	state := handle.State()
	if !state.FallbackActive {
		t.Error("FallbackActive not set after degrading")
	}
	if state.Kind != "dev" {
		t.Errorf("state kind = %q, want dev", state.Kind)
	}
}

func TestFactoryEmailFailureInProduction(t *testing.T) {
	t.Parallel()

	factory := newTestFactory(t,
		EmailSettings{
			Kind:     "smtp",
			SMTPHost: "",
			SMTPPort: 587,
			From:     "noreply@example.com",
		},
		SMSSettings{Kind: "mock"},
		true)

	handle, err := factory.Handle(domain.ChannelEmail)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if _, err := handle.Acquire(context.Background()); err == nil {
		t.Fatal("expected initialization failure in production")
	}

	state := handle.State()
	if state.Initialized {
		t.Error("handle must not report initialized after failure")
	}
}

func TestFactoryConcurrentAcquireInitializesOnce(t *testing.T) {
	t.Parallel()

	factory := newTestFactory(t,
		EmailSettings{Kind: "dev", MailboxDir: t.TempDir(), From: "noreply@example.com"},
		SMSSettings{Kind: "mock"},
		false)

	handle, err := factory.Handle(domain.ChannelSMS)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	const goroutines = 32
	providers := make([]Provider, goroutines)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			p, err := handle.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			providers[i] = p
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if providers[i] != providers[0] {
			t.Fatalf("goroutine %d received a different provider instance", i)
		}
	}
}

func TestFactoryStates(t *testing.T) {
	t.Parallel()

	factory := newTestFactory(t,
		EmailSettings{Kind: "dev", MailboxDir: t.TempDir(), From: "noreply@example.com"},
		SMSSettings{Kind: "mock"},
		false)

	states := factory.States()
	if len(states) != 3 {
		t.Fatalf("expected 3 states, got %d", len(states))
	}
	wantChannels := []domain.Channel{domain.ChannelWebhook, domain.ChannelEmail, domain.ChannelSMS}
	for i, want := range wantChannels {
		if states[i].Channel != want {
			t.Errorf("state %d channel = %s, want %s", i, states[i].Channel, want)
		}
		if states[i].Initialized {
			t.Errorf("state %d reports initialized before first Acquire", i)
		}
	}
}
