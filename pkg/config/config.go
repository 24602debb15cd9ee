package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arclight-ai/arclight/pkg/models"
)

// MinSecretLength is the minimum accepted encryption secret length in bytes.
const MinSecretLength = 32

// Config holds all Arclight configuration.
type Config struct {
	Listen    string             `yaml:"listen"`
	DBPath    string             `yaml:"db_path"`
	Security  SecurityConfig     `yaml:"security"`
	Providers []ProviderOverride `yaml:"providers"`
	Upstream  UpstreamConfig     `yaml:"upstream"`
	Cache     CacheConfig        `yaml:"cache"`
	RateLimit RateLimitConfig    `yaml:"rate_limit"`
	Pricing   PricingConfig      `yaml:"pricing"`
	Usage     UsageConfig        `yaml:"usage"`
}

// SecurityConfig controls credential encryption.
// AllowPlaintextCredentials accepts stored credential values that do not
// parse as sealed blobs and uses them verbatim. Off by default; intended
// only for migrating databases written before encryption at rest.
type SecurityConfig struct {
	EncryptionSecret          string `yaml:"encryption_secret"`
	AllowPlaintextCredentials bool   `yaml:"allow_plaintext_credentials"`
}

// ProviderOverride supplies a process-wide API key for a provider, taking
// precedence over any per-scope stored credential.
type ProviderOverride struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
}

// UpstreamConfig controls calls to external providers.
type UpstreamConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// CacheConfig controls the in-memory response cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// RateLimitConfig sets per-scope quotas for the three windows.
type RateLimitConfig struct {
	Enabled   bool  `yaml:"enabled"`
	PerMinute int64 `yaml:"per_minute"`
	PerHour   int64 `yaml:"per_hour"`
	PerDay    int64 `yaml:"per_day"`
}

// PricingConfig extends the built-in price table and sets fallback rates
// for models absent from it.
type PricingConfig struct {
	Models                 []models.ModelPricing `yaml:"models"`
	DefaultPromptPerMTok   float64               `yaml:"default_prompt_per_mtok"`
	DefaultCompletePerMTok float64               `yaml:"default_completion_per_mtok"`
}

// UsageConfig controls the usage log.
type UsageConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "arclight.db",
		Upstream: UpstreamConfig{
			Timeout:           60 * time.Second,
			RequestsPerSecond: 10,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        15 * time.Minute,
			MaxEntries: 100,
		},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			PerMinute: 20,
			PerHour:   100,
			PerDay:    1000,
		},
		Usage: UsageConfig{
			RetentionDays: 90,
		},
	}
}

// Load reads a YAML config file, expands environment variables, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the gateway cannot run with safely.
func (c *Config) Validate() error {
	if len(c.Security.EncryptionSecret) < MinSecretLength {
		return fmt.Errorf("security.encryption_secret must be at least %d bytes", MinSecretLength)
	}
	for _, p := range c.Pricing.Models {
		if p.PromptPerMTok < 0 || p.CompletePerMTok < 0 {
			return fmt.Errorf("pricing for %q: rates must not be negative", p.Model)
		}
	}
	if c.Upstream.RequestsPerSecond < 0 {
		return fmt.Errorf("upstream.requests_per_second must not be negative")
	}
	return nil
}

// OverrideFor returns the process-wide API key override for a provider,
// if one is configured.
func (c *Config) OverrideFor(provider string) (string, bool) {
	for _, p := range c.Providers {
		if p.Provider == provider && p.APIKey != "" {
			return p.APIKey, true
		}
	}
	return "", false
}
