package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the pathwise service.
type Config struct {
	Database     DatabaseConfig
	AI           AIConfig
	Insights     InsightsConfig
	Refresh      RefreshConfig
	Identity     IdentityConfig
	Metrics      MetricsConfig
	Notification NotificationConfig
}

// DatabaseConfig selects the durable store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`    // file path for sqlite, connection URL for postgres
}

// AIConfig controls the LLM used to generate industry insights.
type AIConfig struct {
	Enabled           bool
	BaseURL           string        // defaults to https://api.openai.com/v1
	Model             string        // OpenAI model identifier, e.g. "gpt-4o-mini"
	APIKey            string        // expanded from env var by Load
	Timeout           time.Duration // per-request timeout
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RequestsPerMinute int // 0 disables pacing
}

// InsightsConfig tunes the insight cache.
type InsightsConfig struct {
	GenerationTimeout time.Duration // upper bound on one shared generation
	MemoryTTL         time.Duration // in-memory front cache lifetime, 0 disables it
}

// RefreshConfig controls the scheduled refresh of stale insights.
type RefreshConfig struct {
	Schedule    string `yaml:"schedule"` // standard cron expression
	Concurrency int    `yaml:"concurrency"`
}

// IdentityConfig selects where user identities are looked up.
type IdentityConfig struct {
	Provider    string `yaml:"provider"` // "static" or "clerk"
	BaseURL     string `yaml:"base_url"`
	SecretKey   string `yaml:"secret_key"`
	EmailDomain string `yaml:"email_domain"` // static provider only
}

// NotificationConfig controls where refresh cycle summaries are sent.
type NotificationConfig struct {
	Type         string `yaml:"type"`          // "log" or "slack"
	WebhookURL   string `yaml:"webhook_url"`   // required if type is "slack"
	OnlyFailures bool   `yaml:"only_failures"` // skip clean cycles
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // e.g. ":9090"; empty disables the endpoint
}

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultSchedule      = "0 0 * * 0"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Database     DatabaseConfig     `yaml:"database"`
	AI           rawAIConfig        `yaml:"ai"`
	Insights     rawInsightsConfig  `yaml:"insights"`
	Refresh      RefreshConfig      `yaml:"refresh"`
	Identity     IdentityConfig     `yaml:"identity"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Notification NotificationConfig `yaml:"notification"`
}

type rawAIConfig struct {
	Enabled           bool   `yaml:"enabled"`
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"api_key"`
	Timeout           string `yaml:"timeout"`
	MaxRetries        *int   `yaml:"max_retries"`
	RetryBaseDelay    string `yaml:"retry_base_delay"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type rawInsightsConfig struct {
	GenerationTimeout string `yaml:"generation_timeout"`
	MemoryTTL         string `yaml:"memory_ttl"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	aiTimeout, err := parseDuration("ai.timeout", raw.AI.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	retryBase, err := parseDuration("ai.retry_base_delay", raw.AI.RetryBaseDelay, 2*time.Second)
	if err != nil {
		return nil, err
	}
	genTimeout, err := parseDuration("insights.generation_timeout", raw.Insights.GenerationTimeout, 60*time.Second)
	if err != nil {
		return nil, err
	}
	memoryTTL, err := parseDuration("insights.memory_ttl", raw.Insights.MemoryTTL, 10*time.Minute)
	if err != nil {
		return nil, err
	}

	maxRetries := 2 // default
	if raw.AI.MaxRetries != nil {
		maxRetries = *raw.AI.MaxRetries
	}

	aiBaseURL := raw.AI.BaseURL
	if aiBaseURL == "" {
		aiBaseURL = defaultOpenAIBaseURL
	}

	db := raw.Database
	if db.Driver == "" {
		db.Driver = "sqlite"
	}
	if db.DSN == "" && db.Driver == "sqlite" {
		db.DSN = "pathwise.db"
	}

	refresh := raw.Refresh
	if refresh.Schedule == "" {
		refresh.Schedule = defaultSchedule
	}
	if refresh.Concurrency == 0 {
		refresh.Concurrency = 4
	}

	identity := raw.Identity
	if identity.Provider == "" {
		identity.Provider = "static"
	}

	notification := raw.Notification
	if notification.Type == "" {
		notification.Type = "log"
	}

	cfg := &Config{
		Database: db,
		AI: AIConfig{
			Enabled:           raw.AI.Enabled,
			BaseURL:           aiBaseURL,
			Model:             raw.AI.Model,
			APIKey:            raw.AI.APIKey,
			Timeout:           aiTimeout,
			MaxRetries:        maxRetries,
			RetryBaseDelay:    retryBase,
			RequestsPerMinute: raw.AI.RequestsPerMinute,
		},
		Insights: InsightsConfig{
			GenerationTimeout: genTimeout,
			MemoryTTL:         memoryTTL,
		},
		Refresh:      refresh,
		Identity:     identity,
		Metrics:      raw.Metrics,
		Notification: notification,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return d, nil
}

func validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case "sqlite", "postgres", "pgx":
	default:
		return fmt.Errorf("database.driver must be \"sqlite\" or \"postgres\", got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for driver %q", cfg.Database.Driver)
	}

	if cfg.AI.Enabled {
		if cfg.AI.APIKey == "" {
			return fmt.Errorf("ai.api_key is required when ai.enabled is true")
		}
		if cfg.AI.Model == "" {
			return fmt.Errorf("ai.model is required when ai.enabled is true")
		}
	}
	if cfg.AI.Timeout <= 0 {
		return fmt.Errorf("ai.timeout must be positive, got %v", cfg.AI.Timeout)
	}
	if cfg.AI.MaxRetries < 0 {
		return fmt.Errorf("ai.max_retries must not be negative, got %d", cfg.AI.MaxRetries)
	}
	if cfg.AI.RequestsPerMinute < 0 {
		return fmt.Errorf("ai.requests_per_minute must not be negative, got %d", cfg.AI.RequestsPerMinute)
	}

	if cfg.Insights.GenerationTimeout <= 0 {
		return fmt.Errorf("insights.generation_timeout must be positive, got %v", cfg.Insights.GenerationTimeout)
	}
	if cfg.Insights.MemoryTTL < 0 {
		return fmt.Errorf("insights.memory_ttl must not be negative, got %v", cfg.Insights.MemoryTTL)
	}

	sched, err := cron.ParseStandard(cfg.Refresh.Schedule)
	if err != nil {
		return fmt.Errorf("refresh.schedule %q: %w", cfg.Refresh.Schedule, err)
	}
	if sched.Next(time.Now()).IsZero() {
		return fmt.Errorf("refresh.schedule %q never fires", cfg.Refresh.Schedule)
	}
	if cfg.Refresh.Concurrency < 1 {
		return fmt.Errorf("refresh.concurrency must be at least 1, got %d", cfg.Refresh.Concurrency)
	}

	switch cfg.Identity.Provider {
	case "static":
	case "clerk":
		if cfg.Identity.SecretKey == "" {
			return fmt.Errorf("identity.secret_key is required when provider is \"clerk\"")
		}
	default:
		return fmt.Errorf("identity.provider must be \"static\" or \"clerk\", got %q", cfg.Identity.Provider)
	}

	switch cfg.Notification.Type {
	case "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	default:
		return fmt.Errorf("notification.type must be \"log\" or \"slack\", got %q", cfg.Notification.Type)
	}

	return nil
}
