package config

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceConfig is the top-level configuration for the agent-core service
// (spec §6). It is loaded the same way the gateway's legacy Config is
// (LoadRaw + $include resolution + os.ExpandEnv), but describes the
// session/ledger/vendor surface this spec covers rather than the channel
// bot surface.
type ServiceConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     ServiceAuth    `yaml:"auth"`
	Session  ServiceSession `yaml:"session"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Vendors  VendorsConfig  `yaml:"vendors"`
	Tools    ServiceTools   `yaml:"tools"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServiceAuth holds secrets required to sign/verify session snapshot tokens
// and encrypt stored credentials (spec §6).
type ServiceAuth struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	EncryptionKey string        `yaml:"encryption_key"`
	TokenExpiry   time.Duration `yaml:"token_expiry"`
}

// ServiceSession holds defaults for the Session Manager / Agent Loop
// (spec §4.1, §4.5).
type ServiceSession struct {
	DefaultTimeLimit      time.Duration `yaml:"default_time_limit"`
	DefaultTokenThreshold int           `yaml:"default_token_threshold"`
	PreserveExchanges     int           `yaml:"preserve_exchanges"`
	MaxConcurrentSessions int           `yaml:"max_concurrent_sessions"`
	TimeoutSweepInterval  string        `yaml:"timeout_sweep_interval"` // robfig/cron/v3 expression
}

// LedgerConfig holds the credit-accounting defaults (spec §4.7).
type LedgerConfig struct {
	FreeDailyCredits    float64 `yaml:"free_daily_credits"`
	TrialDailyCredits   float64 `yaml:"trial_daily_credits"`
	ProDailyCredits     float64 `yaml:"pro_daily_credits"`
	CreditLimit         float64 `yaml:"credit_limit"`
	TrialPeriodDays     int     `yaml:"trial_period_days"`
	MetadataProductType string  `yaml:"metadata_product_type"`
}

// VendorConfig is one LLM vendor's connection details (spec §4.4).
type VendorConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url,omitempty"`
	DefaultModel string        `yaml:"default_model"`
	Timeout      time.Duration `yaml:"timeout"`
}

// VendorsConfig maps a vendor name ("anthropic", "openai") to its config.
type VendorsConfig struct {
	Default string                  `yaml:"default"`
	Entries map[string]VendorConfig `yaml:"entries"`
}

// ServiceTools holds per-tool overrides to the registry-declared defaults
// (spec §4.2's "cost may be overridden by deployment config").
type ServiceTools struct {
	CostOverrides map[string]int `yaml:"cost_overrides"`
	MaxRetries    int            `yaml:"max_retries"`
}

// LoggingConfig controls log/slog setup.
type LoggingConfig struct {
	Level  string `yaml:"level"` // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DefaultServiceConfig returns the built-in defaults, overridden by
// whatever LoadServiceConfig finds on disk/env.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Server: ServerConfig{Host: "0.0.0.0", HTTPPort: 8080, MetricsPort: 9090},
		Session: ServiceSession{
			DefaultTimeLimit:      30 * time.Minute,
			DefaultTokenThreshold: 100_000,
			PreserveExchanges:     3,
			MaxConcurrentSessions: 1000,
			TimeoutSweepInterval:  "@every 1m",
		},
		Ledger: LedgerConfig{
			FreeDailyCredits:  10,
			TrialDailyCredits: 50,
			ProDailyCredits:   200,
			CreditLimit:       1000,
			TrialPeriodDays:   14,
		},
		Tools:   ServiceTools{MaxRetries: 2},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadServiceConfig reads path (resolving $include and expanding env vars,
// same mechanics as the legacy LoadRaw/loadRawRecursive pipeline), merges it
// over the defaults, and validates required secrets.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load service config: %w", err)
	}
	if err := decodeRawServiceConfig(raw, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeRawServiceConfig(raw map[string]any, cfg *ServiceConfig) error {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("serialize raw service config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(false)
	if err := decoder.Decode(cfg); err != nil && err != io.EOF {
		return fmt.Errorf("parse service config: %w", err)
	}
	return nil
}

// Validate checks that every secret/credential the service needs to start
// is present, failing fast rather than surfacing a nil-pointer deep in a
// vendor adapter later (spec §6).
func (c *ServiceConfig) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwt_secret is required (set JWT_SECRET)")
	}
	if c.Auth.EncryptionKey == "" {
		return fmt.Errorf("config: auth.encryption_key is required (set ENCRYPTION_KEY)")
	}
	if len(c.Auth.EncryptionKey) != 16 && len(c.Auth.EncryptionKey) != 24 && len(c.Auth.EncryptionKey) != 32 {
		return fmt.Errorf("config: auth.encryption_key must be 16, 24, or 32 bytes for AES, got %d", len(c.Auth.EncryptionKey))
	}
	if c.Vendors.Default == "" {
		return fmt.Errorf("config: vendors.default is required")
	}
	vendor, ok := c.Vendors.Entries[c.Vendors.Default]
	if !ok {
		return fmt.Errorf("config: vendors.default %q has no matching entry", c.Vendors.Default)
	}
	if vendor.APIKey == "" {
		return fmt.Errorf("config: vendors.entries[%s].api_key is required", c.Vendors.Default)
	}
	for name, v := range c.Vendors.Entries {
		if v.APIKey == "" {
			return fmt.Errorf("config: vendors.entries[%s].api_key is required", name)
		}
	}
	return nil
}
