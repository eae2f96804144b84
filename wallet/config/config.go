// Package config loads the walletbot configuration: the shared core
// sections plus storage, moderation, deposit limits, fulfillment, sessions
// and metrics.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	coreconfig "github.com/m3rciful/walletbot/core/config"
	coredatabase "github.com/m3rciful/walletbot/core/database"
	"github.com/m3rciful/walletbot/wallet/conversation"
	"github.com/m3rciful/walletbot/wallet/domain"
	"github.com/m3rciful/walletbot/wallet/fulfillment"
	"github.com/m3rciful/walletbot/wallet/session"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// LimitConfig bounds deposit amounts for one currency.
type LimitConfig struct {
	Min decimal.Decimal `yaml:"min"`
	Max decimal.Decimal `yaml:"max"`
}

// FulfillmentConfig points at the game top-up API.
type FulfillmentConfig struct {
	Endpoint        string        `yaml:"endpoint" envconfig:"FULFILLMENT_ENDPOINT" validate:"required,url"`
	MemberCode      string        `yaml:"member_code" envconfig:"FULFILLMENT_MEMBER_CODE" validate:"required"`
	Secret          string        `yaml:"secret" envconfig:"FULFILLMENT_SECRET" validate:"required"`
	Timeout         time.Duration `yaml:"timeout" envconfig:"FULFILLMENT_TIMEOUT"`
	RefPrefix       string        `yaml:"ref_prefix" envconfig:"FULFILLMENT_REF_PREFIX" validate:"omitempty,alphanum,max=16"`
	BreakerFailures uint32        `yaml:"breaker_failures" envconfig:"FULFILLMENT_BREAKER_FAILURES"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" envconfig:"FULFILLMENT_BREAKER_COOLDOWN"`
}

// SessionConfig selects the conversation session backend.
type SessionConfig struct {
	Backend string `yaml:"backend" envconfig:"SESSION_BACKEND" validate:"oneof=memory redis"`
	// TTL defaults to session.DefaultTTL when unset; 0 keeps sessions until
	// they are finished.
	TTL           *time.Duration `yaml:"ttl" envconfig:"SESSION_TTL"`
	SweepInterval time.Duration  `yaml:"sweep_interval" envconfig:"SESSION_SWEEP_INTERVAL"`
	RedisAddr     string         `yaml:"redis_addr" envconfig:"REDIS_ADDR" validate:"required_if=Backend redis"`
	RedisPassword string         `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int            `yaml:"redis_db" envconfig:"REDIS_DB" validate:"gte=0"`
	RedisPrefix   string         `yaml:"redis_prefix" envconfig:"REDIS_PREFIX"`
}

// SessionTTL resolves the effective inactivity timeout.
func (s SessionConfig) SessionTTL() time.Duration {
	if s.TTL == nil {
		return session.DefaultTTL
	}
	return *s.TTL
}

// MetricsConfig configures the Prometheus endpoint; an empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN" validate:"omitempty,hostname_port"`
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Storage  string              `yaml:"storage" envconfig:"WALLET_STORAGE" validate:"oneof=postgres memory"`
	Database coredatabase.Config `yaml:"database"`

	// ModeratorID defaults to telegram.admin_id.
	ModeratorID int64 `yaml:"moderator_id" envconfig:"WALLET_MODERATOR_ID" validate:"gt=0"`

	Limits              map[string]LimitConfig `yaml:"limits" ignored:"true"`
	PaymentInstructions map[string]string      `yaml:"payment_instructions" ignored:"true"`

	Fulfillment FulfillmentConfig `yaml:"fulfillment"`
	Session     SessionConfig     `yaml:"session"`
	Metrics     MetricsConfig     `yaml:"metrics"`

	// CatalogPath is a YAML product list upserted at boot; empty skips seeding.
	CatalogPath string `yaml:"catalog_path" envconfig:"WALLET_CATALOG_PATH"`
}

// CoreConfig exposes the embedded core configuration to the shared runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads path, overlays the environment, applies defaults and validates.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize fills defaults and validates every section.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}

	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	if c.Storage == "" {
		c.Storage = StoragePostgres
	}
	if c.ModeratorID == 0 {
		c.ModeratorID = c.Telegram.AdminID
	}

	c.Session.Backend = strings.ToLower(strings.TrimSpace(c.Session.Backend))
	if c.Session.Backend == "" {
		c.Session.Backend = SessionMemory
	}
	if c.Session.SweepInterval <= 0 {
		c.Session.SweepInterval = time.Minute
	}
	c.Fulfillment.RefPrefix = strings.TrimSpace(c.Fulfillment.RefPrefix)

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Session.SessionTTL() < 0 {
		return fmt.Errorf("session.ttl must be >= 0")
	}
	if c.Fulfillment.Timeout < 0 || c.Fulfillment.BreakerCooldown < 0 {
		return fmt.Errorf("fulfillment timeout and breaker_cooldown must be >= 0")
	}
	if c.Storage == StoragePostgres {
		if err := c.Database.Normalize(); err != nil {
			return err
		}
	}
	if _, err := c.DepositLimits(); err != nil {
		return err
	}
	if _, err := c.Payment(); err != nil {
		return err
	}
	return nil
}

// DepositLimits returns the configured per-currency ranges.
func (c *Config) DepositLimits() (map[domain.Currency]conversation.Range, error) {
	out := make(map[domain.Currency]conversation.Range, len(c.Limits))
	for raw, l := range c.Limits {
		cur, err := domain.ParseCurrency(raw)
		if err != nil {
			return nil, fmt.Errorf("limits: %w", err)
		}
		if !l.Min.IsPositive() || l.Max.LessThan(l.Min) {
			return nil, fmt.Errorf("limits.%s: need 0 < min <= max, got [%s, %s]", cur, l.Min, l.Max)
		}
		out[cur] = conversation.Range{Min: l.Min, Max: l.Max}
	}
	return out, nil
}

// Payment returns the deposit payment instructions per currency.
func (c *Config) Payment() (map[domain.Currency]string, error) {
	out := make(map[domain.Currency]string, len(c.PaymentInstructions))
	for raw, text := range c.PaymentInstructions {
		cur, err := domain.ParseCurrency(raw)
		if err != nil {
			return nil, fmt.Errorf("payment_instructions: %w", err)
		}
		out[cur] = strings.TrimSpace(text)
	}
	return out, nil
}

// ClientConfig maps the fulfillment section onto the API client options.
func (f FulfillmentConfig) ClientConfig() fulfillment.ClientConfig {
	return fulfillment.ClientConfig{
		Endpoint:        f.Endpoint,
		MemberCode:      f.MemberCode,
		Secret:          f.Secret,
		Timeout:         f.Timeout,
		BreakerFailures: f.BreakerFailures,
		BreakerCooldown: f.BreakerCooldown,
	}
}
