package provider

import (
	"errors"
	"testing"
)

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name      string
		desc      Descriptor
		wantField string // "" means valid
	}{
		{
			name:      "missing name",
			desc:      Descriptor{Kind: KindLocal, Command: "tool"},
			wantField: "name",
		},
		{
			name:      "missing kind",
			desc:      Descriptor{Name: "x"},
			wantField: "kind",
		},
		{
			name:      "unknown kind",
			desc:      Descriptor{Name: "x", Kind: "grpc"},
			wantField: "kind",
		},
		{
			name:      "local without command",
			desc:      Descriptor{Name: "x", Kind: KindLocal},
			wantField: "command",
		},
		{
			name: "local ok",
			desc: Descriptor{Name: "x", Kind: KindLocal, Command: "tool"},
		},
		{
			name:      "remote without base url",
			desc:      Descriptor{Name: "x", Kind: KindRemoteAPI, Model: "gpt-4o"},
			wantField: "base_url",
		},
		{
			name: "remote ok",
			desc: Descriptor{Name: "x", Kind: KindRemoteAPI, BaseURL: "https://api.example.com"},
		},
		{
			name:      "devserver without url",
			desc:      Descriptor{Name: "x", Kind: KindDevserver},
			wantField: "devserver_url",
		},
		{
			name: "devserver ok",
			desc: Descriptor{Name: "x", Kind: KindDevserver, DevserverURL: "http://localhost:8080"},
		},
		{
			name: "bad pricing",
			desc: Descriptor{Name: "x", Kind: KindLocal, Command: "tool",
				Pricing: &Pricing{Input: -1, Unit: PerThousandTokens}},
			wantField: "pricing",
		},
		{
			name: "negative rate limit",
			desc: Descriptor{Name: "x", Kind: KindLocal, Command: "tool",
				RateLimits: &RateLimits{RequestsPerMinute: -1}},
			wantField: "rate_limits",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() error = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("Validate() field = %q, want %q", cfgErr.Field, tt.wantField)
			}
		})
	}
}

func TestResolveAPIKey(t *testing.T) {
	desc := Descriptor{Name: "my-remote", Kind: KindRemoteAPI, BaseURL: "https://x", APIKey: "inline"}
	if got := desc.ResolveAPIKey(); got != "inline" {
		t.Errorf("ResolveAPIKey() = %q, want inline key", got)
	}

	desc.APIKey = ""
	t.Setenv("MY_REMOTE_API_KEY", "from-env")
	if got := desc.ResolveAPIKey(); got != "from-env" {
		t.Errorf("ResolveAPIKey() = %q, want env key", got)
	}
}

func TestAPIKeyEnv(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"openai", "OPENAI_API_KEY"},
		{"my-remote", "MY_REMOTE_API_KEY"},
		{"glm4.6", "GLM4_6_API_KEY"},
	}
	for _, tt := range tests {
		d := Descriptor{Name: tt.provider}
		if got := d.apiKeyEnv(); got != tt.want {
			t.Errorf("apiKeyEnv(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestHasCapability(t *testing.T) {
	d := Descriptor{Capabilities: []string{"vision", "json"}}
	if !d.HasCapability("json") {
		t.Error("HasCapability(json) = false, want true")
	}
	if d.HasCapability("audio") {
		t.Error("HasCapability(audio) = true, want false")
	}
}
