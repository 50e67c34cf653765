// Package provider executes coding-assistance requests through interchangeable
// backends: a local CLI tool, an OpenAI-compatible HTTP endpoint, or a
// devserver that runs requests asynchronously. Every backend produces the same
// normalized Result.
package provider

import (
	"os"
	"strings"
)

// Kind selects which executor a descriptor binds to.
type Kind string

const (
	// KindLocal spawns a locally installed CLI tool as a subprocess.
	KindLocal Kind = "local"

	// KindRemoteAPI posts to an OpenAI-compatible chat-completion endpoint.
	KindRemoteAPI Kind = "remoteApi"

	// KindDevserver submits an async job and polls until it is terminal.
	KindDevserver Kind = "devserver"
)

// Descriptor identifies one executable backend. It is immutable after
// construction; per-call state lives in RunOptions and the provider's
// rate-limit window.
type Descriptor struct {
	Name string
	Kind Kind

	// Local backend.
	Command string
	Args    []string // fixed flags; the prompt is always appended last

	// Remote API backend.
	BaseURL string
	Model   string
	APIKey  string // optional; falls back to {NAME}_API_KEY

	// Devserver backend.
	DevserverURL string

	Pricing      *Pricing
	RateLimits   *RateLimits
	Capabilities []string
}

// RateLimits configures the rolling 60-second window for a provider.
// A zero limit means unlimited.
type RateLimits struct {
	RequestsPerMinute int64
	TokensPerMinute   int64
}

// Validate checks that the descriptor is well formed for its kind.
// A failure here is a configuration error, never a runtime one.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &ConfigError{Field: "name", Reason: "required"}
	}

	switch d.Kind {
	case KindLocal:
		if strings.TrimSpace(d.Command) == "" {
			return &ConfigError{Provider: d.Name, Field: "command", Reason: "required for local providers"}
		}
	case KindRemoteAPI:
		if strings.TrimSpace(d.BaseURL) == "" {
			return &ConfigError{Provider: d.Name, Field: "base_url", Reason: "required for remoteApi providers"}
		}
	case KindDevserver:
		if strings.TrimSpace(d.DevserverURL) == "" {
			return &ConfigError{Provider: d.Name, Field: "devserver_url", Reason: "required for devserver providers"}
		}
	case "":
		return &ConfigError{Provider: d.Name, Field: "kind", Reason: "required"}
	default:
		return &ConfigError{Provider: d.Name, Field: "kind", Reason: "must be one of local, remoteApi, devserver"}
	}

	if d.Pricing != nil {
		if err := d.Pricing.validate(); err != nil {
			return &ConfigError{Provider: d.Name, Field: "pricing", Reason: err.Error()}
		}
	}
	if d.RateLimits != nil {
		if d.RateLimits.RequestsPerMinute < 0 || d.RateLimits.TokensPerMinute < 0 {
			return &ConfigError{Provider: d.Name, Field: "rate_limits", Reason: "limits must not be negative"}
		}
	}

	return nil
}

// ResolveAPIKey returns the configured key, falling back to the
// {NAME_UPPERCASE}_API_KEY environment variable.
func (d Descriptor) ResolveAPIKey() string {
	if d.APIKey != "" {
		return d.APIKey
	}
	return os.Getenv(d.apiKeyEnv())
}

func (d Descriptor) apiKeyEnv() string {
	name := strings.ToUpper(d.Name)
	mapped := strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, name)
	return mapped + "_API_KEY"
}

// HasCapability reports whether the descriptor advertises the named capability.
func (d Descriptor) HasCapability(name string) bool {
	for _, c := range d.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}
