// Package config handles loading and validating daybreak configuration.
// Supports YAML config files and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marcus/daybreak/internal/provider"
)

// Config holds all daybreak configuration.
type Config struct {
	Log       LogConfig        `mapstructure:"log"`
	History   HistoryConfig    `mapstructure:"history"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Defaults  DefaultsConfig   `mapstructure:"defaults"`
	Providers []ProviderConfig `mapstructure:"providers"`
	Jobs      []JobConfig      `mapstructure:"jobs"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	Level         string `mapstructure:"level"`
	Path          string `mapstructure:"path"`
	Format        string `mapstructure:"format"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// HistoryConfig controls the local run history database.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MetricsConfig controls the daemon metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// DefaultsConfig holds cross-provider execution defaults.
type DefaultsConfig struct {
	Provider     string `mapstructure:"provider"`
	Timeout      string `mapstructure:"timeout"`
	MaxRetries   int    `mapstructure:"max_retries"`
	RetryDelay   string `mapstructure:"retry_delay"`
	PollInterval string `mapstructure:"poll_interval"`
	MaxPollTime  string `mapstructure:"max_poll_time"`
}

// ProviderConfig is the YAML shape of one provider entry.
type ProviderConfig struct {
	Name         string            `mapstructure:"name"`
	Kind         string            `mapstructure:"kind"`
	Command      string            `mapstructure:"command"`
	Args         []string          `mapstructure:"args"`
	BaseURL      string            `mapstructure:"base_url"`
	Model        string            `mapstructure:"model"`
	APIKey       string            `mapstructure:"api_key"`
	APIKeyEnv    string            `mapstructure:"api_key_env"`
	DevserverURL string            `mapstructure:"devserver_url"`
	Pricing      *PricingConfig    `mapstructure:"pricing"`
	RateLimits   *RateLimitsConfig `mapstructure:"rate_limits"`
	Capabilities []string          `mapstructure:"capabilities"`
}

// PricingConfig is the YAML shape of per-token pricing. Unit is "per_1k"
// or "per_1m"; per_1k is assumed when omitted.
type PricingConfig struct {
	Input  float64 `mapstructure:"input"`
	Output float64 `mapstructure:"output"`
	Unit   string  `mapstructure:"unit"`
}

// RateLimitsConfig is the YAML shape of per-provider rate limits.
type RateLimitsConfig struct {
	RequestsPerMinute int64 `mapstructure:"requests_per_minute"`
	TokensPerMinute   int64 `mapstructure:"tokens_per_minute"`
}

// JobConfig describes one scheduled daemon job.
type JobConfig struct {
	Name     string `mapstructure:"name"`
	Provider string `mapstructure:"provider"`
	Prompt   string `mapstructure:"prompt"`
	Schedule string `mapstructure:"schedule"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "daybreak", "config.yaml")
}

// Load reads configuration from the given file. An empty path falls back
// to DefaultPath; a missing file yields the built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.retention_days", 7)
	v.SetDefault("history.enabled", true)
	v.SetDefault("metrics.listen", "127.0.0.1:9090")
	v.SetDefault("defaults.max_retries", 3)
	v.SetDefault("defaults.retry_delay", "1s")
	v.SetDefault("defaults.timeout", "120s")
	v.SetDefault("defaults.poll_interval", "1s")
	v.SetDefault("defaults.max_poll_time", "300s")

	v.SetEnvPrefix("DAYBREAK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider entry missing name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider %q", p.Name)
		}
		seen[p.Name] = true
		if _, err := p.Descriptor(); err != nil {
			return err
		}
	}

	for _, j := range c.Jobs {
		if j.Name == "" {
			return fmt.Errorf("job entry missing name")
		}
		if !seen[j.Provider] {
			return fmt.Errorf("job %q references unknown provider %q", j.Name, j.Provider)
		}
		if j.Schedule == "" {
			return fmt.Errorf("job %q missing schedule", j.Name)
		}
	}

	for _, field := range []struct{ name, value string }{
		{"defaults.timeout", c.Defaults.Timeout},
		{"defaults.retry_delay", c.Defaults.RetryDelay},
		{"defaults.poll_interval", c.Defaults.PollInterval},
		{"defaults.max_poll_time", c.Defaults.MaxPollTime},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", field.name, field.value)
		}
	}

	return nil
}

// Provider returns the config entry with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// HistoryPath returns the history database path, expanded, with a
// default under the user data directory.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return expandPath(c.History.Path)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "daybreak", "history.db")
}

// Descriptor converts a config entry into a provider descriptor. The
// result still needs provider.New to validate kind-specific fields.
func (p ProviderConfig) Descriptor() (provider.Descriptor, error) {
	desc := provider.Descriptor{
		Name:         p.Name,
		Kind:         provider.Kind(p.Kind),
		Command:      p.Command,
		Args:         p.Args,
		BaseURL:      p.BaseURL,
		Model:        p.Model,
		APIKey:       p.APIKey,
		DevserverURL: p.DevserverURL,
		Capabilities: p.Capabilities,
	}

	if p.APIKey == "" && p.APIKeyEnv != "" {
		desc.APIKey = os.Getenv(p.APIKeyEnv)
	}

	if p.Pricing != nil {
		unit := provider.PerThousandTokens
		switch p.Pricing.Unit {
		case "", "per_1k":
		case "per_1m":
			unit = provider.PerMillionTokens
		default:
			return desc, fmt.Errorf("provider %q: pricing unit must be per_1k or per_1m, got %q", p.Name, p.Pricing.Unit)
		}
		desc.Pricing = &provider.Pricing{
			Input:  p.Pricing.Input,
			Output: p.Pricing.Output,
			Unit:   unit,
		}
	}

	if p.RateLimits != nil {
		desc.RateLimits = &provider.RateLimits{
			RequestsPerMinute: p.RateLimits.RequestsPerMinute,
			TokensPerMinute:   p.RateLimits.TokensPerMinute,
		}
	}

	return desc, nil
}

// Options converts the defaults section into provider options.
func (c *Config) Options() []provider.Option {
	var opts []provider.Option
	if d, err := time.ParseDuration(c.Defaults.Timeout); err == nil && d > 0 {
		opts = append(opts, provider.WithTimeout(d))
	}
	if c.Defaults.MaxRetries > 0 {
		opts = append(opts, provider.WithMaxRetries(c.Defaults.MaxRetries))
	}
	if d, err := time.ParseDuration(c.Defaults.RetryDelay); err == nil && d > 0 {
		opts = append(opts, provider.WithRetryDelay(d))
	}
	if d, err := time.ParseDuration(c.Defaults.PollInterval); err == nil && d > 0 {
		opts = append(opts, provider.WithPollInterval(d))
	}
	if d, err := time.ParseDuration(c.Defaults.MaxPollTime); err == nil && d > 0 {
		opts = append(opts, provider.WithMaxPollTime(d))
	}
	return opts
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
