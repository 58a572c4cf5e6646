package config

import (
	"errors"
	"testing"
)

func TestResolveCredential(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		cfg     *Config
		want    Credential
		wantErr error
	}{
		{
			name: "environment wins",
			env:  "sk-ant-test-key",
			cfg:  &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}},
			want: Credential{Key: "sk-ant-test-key", Source: KeySourceEnv},
		},
		{
			name: "config file",
			cfg:  &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}},
			want: Credential{Key: "sk-ant-config-key", Source: KeySourceConfig},
		},
		{
			name:    "unexpanded reference",
			cfg:     &Config{Anthropic: AnthropicConfig{APIKey: "${REQFLOW_MISSING_KEY}"}},
			want:    Credential{Source: KeySourceNone},
			wantErr: ErrNoAPIKey,
		},
		{
			name: "bedrock",
			cfg:  &Config{Anthropic: AnthropicConfig{UseBedrock: true}},
			want: Credential{Source: KeySourceBedrock},
		},
		{
			name:    "nothing configured",
			cfg:     &Config{},
			want:    Credential{Source: KeySourceNone},
			wantErr: ErrNoAPIKey,
		},
		{
			name:    "nil config",
			want:    Credential{Source: KeySourceNone},
			wantErr: ErrNoAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ANTHROPIC_API_KEY", tt.env)
			t.Setenv("REQFLOW_MISSING_KEY", "")

			got, err := ResolveCredential(tt.cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolveCredentialExpandsReference(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("REQFLOW_KEY", "sk-ant-from-reference")

	got, err := ResolveCredential(&Config{Anthropic: AnthropicConfig{APIKey: "${REQFLOW_KEY}"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Key != "sk-ant-from-reference" || got.Source != KeySourceConfig {
		t.Errorf("got %+v", got)
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "(not set)"},
		{"short", "***"},
		{"sk-ant-REDACTED", "sk-ant-...mnop"},
	}

	for _, tt := range tests {
		if got := MaskAPIKey(tt.key); got != tt.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
	if got := (Credential{Source: KeySourceBedrock}).Masked(); got != "(aws credentials)" {
		t.Errorf("bedrock masked = %q", got)
	}
}
