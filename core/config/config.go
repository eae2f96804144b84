// Package config loads the settings shared by every bot built on core:
// Telegram credentials, update delivery, logging and rate limiting.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds the bot credentials and how updates are received.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	// SecretToken is echoed by Telegram in every webhook request.
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET_TOKEN"`
}

// LoggingConfig selects level, format and sinks of the structured logger.
// Empty fields pick profile dependent defaults.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order" envconfig:"LOG_KEYS_ORDER"`
	DebugSample string `yaml:"debug_sample" envconfig:"LOG_DEBUG_SAMPLE"`
	Stacks      string `yaml:"stacks" envconfig:"LOG_STACKS"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file" envconfig:"LOG_BOT_FILE"`
	ErrorsFile  string `yaml:"errors_file" envconfig:"LOG_ERRORS_FILE"`
	// Profile is "dev", "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

var runModeAliases = map[string]string{
	"":              RunModeLongpoll,
	"polling":       RunModeLongpoll,
	"long_polling":  RunModeLongpoll,
	RunModeLongpoll: RunModeLongpoll,
	RunModeWebhook:  RunModeWebhook,
}

var updateTypes = map[string]struct{}{
	UpdateCallback:    {},
	UpdateMessage:     {},
	UpdateInlineQuery: {},
}

// RateLimitConfig holds per-user token bucket settings. One token is
// refilled every IntervalMS and up to Burst updates pass back to back;
// IntervalMS 0 disables limiting. ExcludeUpdates lists update types
// (callback, message, inline_query) that bypass the limiter.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	Burst          int      `yaml:"burst" envconfig:"RATE_LIMIT_BURST"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads the core configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode fills dst from the YAML file at path and then overlays environment
// variables. dst is usually a bot config embedding Config inline.
func Decode(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize validates cfg and fills defaults in place. All problems are
// reported together.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram token is required"))
	}
	errs = append(errs, cfg.normalizeDelivery()...)
	errs = append(errs, cfg.RateLimit.normalize()...)
	return errors.Join(errs...)
}

func (c *Config) normalizeDelivery() []error {
	mode, ok := runModeAliases[strings.ToLower(strings.TrimSpace(c.Telegram.RunMode))]
	if !ok {
		return []error{fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", c.Telegram.RunMode)}
	}
	c.Telegram.RunMode = mode

	if mode == RunModeLongpoll {
		if c.Telegram.LongPollTimeoutSeconds < 0 {
			return []error{errors.New("telegram.longpoll_timeout_seconds must be >= 0")}
		}
		return nil
	}

	var errs []error
	if u, err := url.Parse(strings.TrimSpace(c.Webhook.URL)); err != nil || u.Host == "" {
		errs = append(errs, errors.New("webhook.url is required when telegram.run_mode is 'webhook'"))
	} else if u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("webhook.url must use https, got %q", u.Scheme))
	}
	if strings.TrimSpace(c.Webhook.Listen) == "" {
		errs = append(errs, errors.New("webhook.listen is required when telegram.run_mode is 'webhook'"))
	}
	if c.Webhook.Port <= 0 || c.Webhook.Port > 65535 {
		errs = append(errs, errors.New("webhook.port must be between 1 and 65535 when telegram.run_mode is 'webhook'"))
	}
	return errs
}

func (r *RateLimitConfig) normalize() []error {
	var errs []error
	if r.IntervalMS < 0 {
		errs = append(errs, errors.New("rate_limit.interval_ms must be >= 0"))
	}
	if r.Burst <= 0 {
		r.Burst = 1
	}
	kept := r.ExcludeUpdates[:0]
	for _, v := range r.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := updateTypes[key]; !ok {
			errs = append(errs, fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v))
			continue
		}
		kept = append(kept, key)
	}
	r.ExcludeUpdates = kept
	return errs
}
