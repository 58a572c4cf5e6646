package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when neither an API key nor Bedrock is configured.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// KeySource names where the gateway credential comes from.
type KeySource string

const (
	KeySourceEnv     KeySource = "environment"
	KeySourceConfig  KeySource = "config_file"
	KeySourceBedrock KeySource = "aws_bedrock"
	KeySourceNone    KeySource = "none"
)

// Credential is the resolved gateway credential.
type Credential struct {
	Key    string
	Source KeySource
}

// Masked returns the key with everything but its prefix and tail hidden.
func (c Credential) Masked() string {
	if c.Source == KeySourceBedrock {
		return "(aws credentials)"
	}
	return MaskAPIKey(c.Key)
}

// ResolveCredential picks the credential a run will use. ANTHROPIC_API_KEY
// wins over anthropic.api_key, which may itself reference an environment
// variable as ${NAME}. Bedrock needs no key.
func ResolveCredential(cfg *Config) (Credential, error) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return Credential{Key: key, Source: KeySourceEnv}, nil
	}
	if cfg == nil {
		return Credential{Source: KeySourceNone}, ErrNoAPIKey
	}
	if raw := cfg.Anthropic.APIKey; raw != "" {
		if key := os.ExpandEnv(raw); key != "" && !strings.HasPrefix(key, "${") {
			return Credential{Key: key, Source: KeySourceConfig}, nil
		}
	}
	if cfg.Anthropic.UseBedrock {
		return Credential{Source: KeySourceBedrock}, nil
	}
	return Credential{Source: KeySourceNone}, ErrNoAPIKey
}

// MaskAPIKey keeps the "sk-ant-" prefix and the last four characters.
func MaskAPIKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 15:
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
