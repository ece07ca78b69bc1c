package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
	"go.uber.org/zap"
)

// EmailSettings selects and configures the email adapter.
type EmailSettings struct {
	Kind string // smtp, postmark or dev

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	PostmarkServerToken  string
	PostmarkAccountToken string

	From       string
	MailboxDir string
}

// SMSSettings selects and configures the SMS adapter.
type SMSSettings struct {
	Kind string // twilio or mock

	TwilioBaseURL    string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

// State describes an adapter slot for the admin surface.
type State struct {
	Channel        domain.Channel `json:"channel"`
	Kind           string         `json:"kind"`
	Initialized    bool           `json:"initialized"`
	FallbackActive bool           `json:"fallback_active"`
	LastVerifiedAt *time.Time     `json:"last_verified_at,omitempty"`
}

// Handle is a lazily initialized adapter slot. The first Acquire builds and
// verifies the underlying provider; later calls reuse it. Initialization is
// serialized so concurrent workers cannot build the adapter twice.
type Handle struct {
	channel domain.Channel
	kind    string
	build   func() (Provider, error)
	logger  *zap.Logger

	mu             sync.Mutex
	provider       Provider
	fallbackActive bool
	lastVerifiedAt *time.Time
	now            func() time.Time

	// fallback is tried when build or verify fails outside production.
	fallback func() (Provider, error)
}

func (h *Handle) Channel() domain.Channel { return h.channel }

// Acquire returns the ready provider, initializing it on first use.
func (h *Handle) Acquire(ctx context.Context) (Provider, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.provider != nil {
		return h.provider, nil
	}

	provider, err := h.initLocked(ctx)
	if err != nil {
		return nil, err
	}

	h.provider = provider
	return provider, nil
}

func (h *Handle) initLocked(ctx context.Context) (Provider, error) {
	provider, err := h.build()
	if err == nil {
		err = provider.Verify(ctx)
	}
	if err == nil {
		verifiedAt := h.now()
		h.lastVerifiedAt = &verifiedAt
		h.logger.Info("provider initialized",
			zap.String("channel", string(h.channel)),
			zap.String("provider", provider.Name()))
		return provider, nil
	}

	if h.fallback == nil {
		return nil, fmt.Errorf("initialize %s provider %s: %w", h.channel, h.kind, err)
	}

	h.logger.Warn("provider initialization failed, switching to fallback",
		zap.String("channel", string(h.channel)),
		zap.String("provider", h.kind),
		zap.Error(err))

	fallbackProvider, fallbackErr := h.fallback()
	if fallbackErr == nil {
		fallbackErr = fallbackProvider.Verify(ctx)
	}
	if fallbackErr != nil {
		return nil, fmt.Errorf("initialize %s fallback provider: %w", h.channel, fallbackErr)
	}

	h.fallbackActive = true
	verifiedAt := h.now()
	h.lastVerifiedAt = &verifiedAt
	h.logger.Info("fallback provider initialized",
		zap.String("channel", string(h.channel)),
		zap.String("provider", fallbackProvider.Name()))
	return fallbackProvider, nil
}

// State snapshots the slot without forcing initialization.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	state := State{
		Channel:        h.channel,
		Kind:           h.kind,
		Initialized:    h.provider != nil,
		FallbackActive: h.fallbackActive,
	}
	if h.lastVerifiedAt != nil {
		verifiedAt := *h.lastVerifiedAt
		state.LastVerifiedAt = &verifiedAt
	}
	if h.fallbackActive && h.provider != nil {
		state.Kind = h.provider.Name()
	}
	return state
}

// Factory owns one handle per channel.
type Factory struct {
	handles map[domain.Channel]*Handle
}

// NewFactory wires one adapter slot per channel. Outside production a
// failing email adapter degrades to the dev mailbox instead of taking the
// channel down.
func NewFactory(logger *zap.Logger, deliveryTimeout time.Duration, email EmailSettings, sms SMSSettings, production bool) (*Factory, error) {
	webhookHandle := &Handle{
		channel: domain.ChannelWebhook,
		kind:    "webhook",
		logger:  logger,
		now:     time.Now,
		build: func() (Provider, error) {
			return NewWebhookProvider(deliveryTimeout), nil
		},
	}

	emailHandle := &Handle{
		channel: domain.ChannelEmail,
		kind:    email.Kind,
		logger:  logger,
		now:     time.Now,
		build:   emailBuilder(email),
	}
	if !production && email.Kind != "dev" {
		emailHandle.fallback = func() (Provider, error) {
			return NewDevMailboxProvider(email.MailboxDir, email.From)
		}
	}

	smsHandle := &Handle{
		channel: domain.ChannelSMS,
		kind:    sms.Kind,
		logger:  logger,
		now:     time.Now,
		build:   smsBuilder(sms),
	}

	return &Factory{
		handles: map[domain.Channel]*Handle{
			domain.ChannelWebhook: webhookHandle,
			domain.ChannelEmail:   emailHandle,
			domain.ChannelSMS:     smsHandle,
		},
	}, nil
}

func emailBuilder(settings EmailSettings) func() (Provider, error) {
	switch settings.Kind {
	case "postmark":
		return func() (Provider, error) {
			return NewPostmarkProvider(settings.PostmarkServerToken, settings.PostmarkAccountToken, settings.From)
		}
	case "dev":
		return func() (Provider, error) {
			return NewDevMailboxProvider(settings.MailboxDir, settings.From)
		}
	case "smtp":
		return func() (Provider, error) {
			return NewSMTPProvider(settings.SMTPHost, settings.SMTPPort, settings.SMTPUsername, settings.SMTPPassword, settings.From)
		}
	default:
		return func() (Provider, error) {
			return nil, fmt.Errorf("%w: unknown email provider %q", domain.ErrConfiguration, settings.Kind)
		}
	}
}

func smsBuilder(settings SMSSettings) func() (Provider, error) {
	switch settings.Kind {
	case "twilio":
		return func() (Provider, error) {
			return NewTwilioProvider(settings.TwilioBaseURL, settings.TwilioAccountSID, settings.TwilioAuthToken, settings.TwilioFromNumber)
		}
	case "mock":
		return func() (Provider, error) {
			return NewMockSMSProvider(), nil
		}
	default:
		return func() (Provider, error) {
			return nil, fmt.Errorf("%w: unknown sms provider %q", domain.ErrConfiguration, settings.Kind)
		}
	}
}

// Handle returns the adapter slot for a channel.
func (f *Factory) Handle(channel domain.Channel) (*Handle, error) {
	handle, ok := f.handles[channel]
	if !ok {
		return nil, fmt.Errorf("%w: no provider for channel %s", domain.ErrConfiguration, channel)
	}
	return handle, nil
}

// States lists every slot for the admin surface.
func (f *Factory) States() []State {
	states := make([]State, 0, len(f.handles))
	for _, channel := range []domain.Channel{domain.ChannelWebhook, domain.ChannelEmail, domain.ChannelSMS} {
		if handle, ok := f.handles[channel]; ok {
			states = append(states, handle.State())
		}
	}
	return states
}
