package provider

import (
	"encoding/json"
	"time"
)

// TokenUsage holds per-call token counts as reported by the backend, or an
// estimate when the backend reports none.
type TokenUsage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
}

// Total returns input plus output tokens.
func (u *TokenUsage) Total() int64 {
	if u == nil {
		return 0
	}
	return u.Input + u.Output
}

// RunOptions configures a single call. Never mutated by the provider.
type RunOptions struct {
	// OutputSchema is an optional JSON schema forwarded to backends that
	// support structured output.
	OutputSchema map[string]any

	// Sandbox is an opaque mode string passed through to local tools.
	Sandbox string

	// Cwd is the working directory for local execution.
	Cwd string

	// Timeout overrides the provider's default wall-clock budget.
	Timeout time.Duration
}

// Result is the single normalized output shape every backend produces.
type Result struct {
	Raw      string          `json:"raw"`
	Parsed   json.RawMessage `json:"parsed,omitempty"`
	ExitCode int             `json:"exitCode"`
	Stderr   string          `json:"stderr,omitempty"`

	TokenUsage *TokenUsage `json:"tokenUsage,omitempty"`
	Cost       *float64    `json:"cost,omitempty"`

	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`

	Duration time.Duration `json:"-"`
}

// IsSuccess reports whether the call completed without error.
func (r *Result) IsSuccess() bool {
	return r != nil && r.ExitCode == 0 && r.Error == ""
}
