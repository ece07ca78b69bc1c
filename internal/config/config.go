package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const EnvironmentProduction = "production"

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	Environment       string `env:"ENVIRONMENT,default=development"`
	APIPort           int    `env:"API_PORT,default=8080"`
	MetricsPort       int    `env:"METRICS_PORT,default=9090"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=16"`

	DeliveryTimeoutSec    int `env:"DELIVERY_TIMEOUT_SEC,default=15"`
	MaxDeliveryAttempts   int `env:"MAX_DELIVERY_ATTEMPTS,default=5"`
	MaxDeliveryElapsedMin int `env:"MAX_DELIVERY_ELAPSED_MIN,default=15"`
	SecretGraceHours      int `env:"SECRET_GRACE_HOURS,default=24"`

	DefaultRateLimitPerMin    int    `env:"DEFAULT_RATE_LIMIT_PER_MIN,default=60"`
	InternalUpgradeMultiplier int    `env:"INTERNAL_UPGRADE_MULTIPLIER,default=5"`
	InternalNetworks          string `env:"INTERNAL_NETWORKS"`
	CustomRateLimits          string `env:"CUSTOM_RATE_LIMITS"`

	EmailProvider string `env:"EMAIL_PROVIDER,default=smtp"`
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT,default=587"`
	SMTPUsername  string `env:"SMTP_USERNAME"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
	EmailFrom     string `env:"EMAIL_FROM,default=no-reply@kai.local"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`

	DevMailboxDir string `env:"DEV_MAILBOX_DIR,default=./tmp/outbox"`

	SMSProvider      string `env:"SMS_PROVIDER,default=mock"`
	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `env:"TWILIO_FROM_NUMBER"`
	TwilioBaseURL    string `env:"TWILIO_BASE_URL,default=https://api.twilio.com"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentProduction)
}

func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutSec) * time.Second
}

func (c *Config) MaxDeliveryElapsed() time.Duration {
	return time.Duration(c.MaxDeliveryElapsedMin) * time.Minute
}

func (c *Config) SecretGraceWindow() time.Duration {
	return time.Duration(c.SecretGraceHours) * time.Hour
}

// InternalCIDRs returns the configured internal-network allowlist. An empty
// setting falls back to the RFC 1918 private ranges plus loopback.
func (c *Config) InternalCIDRs() []string {
	trimmed := strings.TrimSpace(c.InternalNetworks)
	if trimmed == "" {
		return []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8"}
	}

	parts := strings.Split(trimmed, ";")
	cidrs := make([]string, 0, len(parts))
	for _, part := range parts {
		if cidr := strings.TrimSpace(part); cidr != "" {
			cidrs = append(cidrs, cidr)
		}
	}
	return cidrs
}

// CustomRateLimitOverrides parses CUSTOM_RATE_LIMITS entries shaped as
// "endpoint=requestsPerMinute" separated by semicolons, e.g.
// "hooks.partner.test=1;api.bulk.test=600".
func (c *Config) CustomRateLimitOverrides() (map[string]int, error) {
	trimmed := strings.TrimSpace(c.CustomRateLimits)
	if trimmed == "" {
		return map[string]int{}, nil
	}

	overrides := make(map[string]int)
	for _, part := range strings.Split(trimmed, ";") {
		entry := strings.TrimSpace(part)
		if entry == "" {
			continue
		}

		key, value, found := strings.Cut(entry, "=")
		if !found {
			return nil, fmt.Errorf("invalid custom rate limit entry %q", entry)
		}

		limit, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || limit <= 0 {
			return nil, fmt.Errorf("invalid custom rate limit value in %q", entry)
		}

		overrides[strings.ToLower(strings.TrimSpace(key))] = limit
	}

	return overrides, nil
}
