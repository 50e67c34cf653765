package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus/daybreak/internal/provider"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: text

defaults:
  provider: claude-cli
  timeout: 30s
  max_retries: 5

providers:
  - name: claude-cli
    kind: local
    command: claude
    args: ["-p", "--output-format", "json"]
    rate_limits:
      requests_per_minute: 10
  - name: openai
    kind: remoteApi
    base_url: https://api.openai.com
    model: gpt-4o
    pricing:
      input: 2.5
      output: 10.0
      unit: per_1m
  - name: farm
    kind: devserver
    devserver_url: http://localhost:8080

jobs:
  - name: nightly-review
    provider: claude-cli
    prompt: review the latest changes
    schedule: "0 2 * * *"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log config = %+v", cfg.Log)
	}
	if cfg.Defaults.Provider != "claude-cli" || cfg.Defaults.MaxRetries != 5 {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
	if len(cfg.Providers) != 3 {
		t.Fatalf("providers = %d, want 3", len(cfg.Providers))
	}
	if len(cfg.Jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(cfg.Jobs))
	}

	entry, ok := cfg.Provider("openai")
	if !ok {
		t.Fatal("Provider(openai) not found")
	}
	desc, err := entry.Descriptor()
	if err != nil {
		t.Fatalf("Descriptor() error = %v", err)
	}
	if desc.Kind != provider.KindRemoteAPI {
		t.Errorf("kind = %q", desc.Kind)
	}
	if desc.Pricing == nil || desc.Pricing.Unit != provider.PerMillionTokens {
		t.Errorf("pricing = %+v, want per-1M unit", desc.Pricing)
	}

	local, _ := cfg.Provider("claude-cli")
	localDesc, err := local.Descriptor()
	if err != nil {
		t.Fatalf("Descriptor() error = %v", err)
	}
	if localDesc.RateLimits == nil || localDesc.RateLimits.RequestsPerMinute != 10 {
		t.Errorf("rate limits = %+v", localDesc.RateLimits)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Defaults.MaxRetries != 3 {
		t.Errorf("default max_retries = %d, want 3", cfg.Defaults.MaxRetries)
	}
	if cfg.Defaults.Timeout != "120s" {
		t.Errorf("default timeout = %q, want 120s", cfg.Defaults.Timeout)
	}
	if !cfg.History.Enabled {
		t.Error("history should be enabled by default")
	}
}

func TestLoad_DuplicateProvider(t *testing.T) {
	path := writeConfig(t, `
providers:
  - name: a
    kind: local
    command: tool
  - name: a
    kind: local
    command: other
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for duplicate provider")
	}
}

func TestLoad_JobUnknownProvider(t *testing.T) {
	path := writeConfig(t, `
providers:
  - name: a
    kind: local
    command: tool
jobs:
  - name: j
    provider: missing
    prompt: hi
    schedule: "* * * * *"
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for unknown job provider")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
defaults:
  timeout: not-a-duration
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid duration")
	}
}

func TestLoad_BadPricingUnit(t *testing.T) {
	path := writeConfig(t, `
providers:
  - name: r
    kind: remoteApi
    base_url: https://x
    pricing:
      input: 1
      output: 2
      unit: per_billion
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for unknown pricing unit")
	}
}

func TestDescriptor_APIKeyEnv(t *testing.T) {
	t.Setenv("CUSTOM_KEY_VAR", "sekrit")
	entry := ProviderConfig{
		Name:      "r",
		Kind:      "remoteApi",
		BaseURL:   "https://x",
		APIKeyEnv: "CUSTOM_KEY_VAR",
	}
	desc, err := entry.Descriptor()
	if err != nil {
		t.Fatalf("Descriptor() error = %v", err)
	}
	if desc.APIKey != "sekrit" {
		t.Errorf("APIKey = %q, want value from named env var", desc.APIKey)
	}
}

func TestDescriptor_PricingDefaultsToPerThousand(t *testing.T) {
	entry := ProviderConfig{
		Name:    "l",
		Kind:    "local",
		Command: "tool",
		Pricing: &PricingConfig{Input: 0.01, Output: 0.03},
	}
	desc, err := entry.Descriptor()
	if err != nil {
		t.Fatalf("Descriptor() error = %v", err)
	}
	if desc.Pricing.Unit != provider.PerThousandTokens {
		t.Errorf("unit = %v, want per-1K default", desc.Pricing.Unit)
	}
}

func TestOptions(t *testing.T) {
	cfg := &Config{
		Defaults: DefaultsConfig{
			Timeout:      "45s",
			MaxRetries:   4,
			RetryDelay:   "2s",
			PollInterval: "500ms",
			MaxPollTime:  "1m",
		},
	}
	opts := cfg.Options()
	if len(opts) != 5 {
		t.Errorf("Options() returned %d options, want 5", len(opts))
	}

	// They must apply cleanly to a provider.
	desc := provider.Descriptor{Name: "x", Kind: provider.KindLocal, Command: "tool"}
	if _, err := provider.New(desc, opts...); err != nil {
		t.Errorf("New() with options error = %v", err)
	}
}

func TestHistoryPath(t *testing.T) {
	cfg := &Config{History: HistoryConfig{Path: "/tmp/custom.db"}}
	if got := cfg.HistoryPath(); got != "/tmp/custom.db" {
		t.Errorf("HistoryPath() = %q", got)
	}

	cfg = &Config{}
	if got := cfg.HistoryPath(); got == "" {
		t.Error("HistoryPath() empty, want default")
	}
}

func TestConfigDurationsParse(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for _, v := range []string{cfg.Defaults.Timeout, cfg.Defaults.RetryDelay, cfg.Defaults.PollInterval, cfg.Defaults.MaxPollTime} {
		if _, err := time.ParseDuration(v); err != nil {
			t.Errorf("default duration %q does not parse: %v", v, err)
		}
	}
}
