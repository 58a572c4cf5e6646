// Package config handles configuration loading and management for reqflow.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for reqflow.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AnthropicConfig holds model endpoint settings.
type AnthropicConfig struct {
	APIKey            string `mapstructure:"api_key"`
	UseBedrock        bool   `mapstructure:"use_bedrock"`
	AWSRegion         string `mapstructure:"aws_region"`
	AWSProfile        string `mapstructure:"aws_profile"`
	MaxTokens         int64  `mapstructure:"max_tokens"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// PipelineConfig holds the inputs and knobs of a pipeline run.
type PipelineConfig struct {
	SystemName               string  `mapstructure:"system_name"`
	ResultsDir               string  `mapstructure:"results_dir"`
	PersonasDir              string  `mapstructure:"personas_dir"`
	DocsDir                  string  `mapstructure:"docs_dir"`
	Seed                     int64   `mapstructure:"seed"`
	TaskDedupMaxRemovalRatio float64 `mapstructure:"task_dedup_max_removal_ratio"`
	IncludeUnclustered       bool    `mapstructure:"include_unclustered"`
	LanguageHint             string  `mapstructure:"language_hint"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.reqflow.yaml in current directory or parent)
// 3. User config (~/.config/reqflow/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	v.SetEnvPrefix("reqflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	return decode(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no run could use.
func (c *Config) Validate() error {
	if r := c.Pipeline.TaskDedupMaxRemovalRatio; r < 0 || r > 1 {
		return fmt.Errorf("pipeline.task_dedup_max_removal_ratio must be within [0, 1], got %v", r)
	}
	if c.Anthropic.RequestsPerMinute < 0 {
		return fmt.Errorf("anthropic.requests_per_minute must not be negative")
	}
	if strings.TrimSpace(c.Pipeline.SystemName) == "" {
		return fmt.Errorf("pipeline.system_name must not be empty")
	}
	return nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveToPath(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveToPath writes the configuration to path.
func SaveToPath(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	for _, key := range Keys() {
		value, err := rawValue(cfg, key)
		if err != nil {
			return err
		}
		v.Set(key, value)
	}
	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()
	for _, key := range Keys() {
		value, _ := rawValue(d, key)
		v.SetDefault(key, value)
	}
}

// getUserConfigDir returns the XDG config directory for reqflow.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "reqflow")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "reqflow")
	}
	return filepath.Join(home, ".config", "reqflow")
}

// findProjectConfig searches for .reqflow.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".reqflow.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			MaxTokens: 4096,
		},
		Pipeline: PipelineConfig{
			SystemName:               "system",
			ResultsDir:               "results",
			PersonasDir:              "personas",
			DocsDir:                  "docs",
			Seed:                     42,
			TaskDedupMaxRemovalRatio: 0.30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Keys lists every configuration key in display order.
func Keys() []string {
	return []string{
		"anthropic.api_key",
		"anthropic.use_bedrock",
		"anthropic.aws_region",
		"anthropic.aws_profile",
		"anthropic.max_tokens",
		"anthropic.requests_per_minute",
		"pipeline.system_name",
		"pipeline.results_dir",
		"pipeline.personas_dir",
		"pipeline.docs_dir",
		"pipeline.seed",
		"pipeline.task_dedup_max_removal_ratio",
		"pipeline.include_unclustered",
		"pipeline.language_hint",
		"logging.level",
		"logging.file",
	}
}

// rawValue returns the typed value stored under key.
func rawValue(cfg *Config, key string) (any, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return cfg.Anthropic.APIKey, nil
	case "anthropic.use_bedrock":
		return cfg.Anthropic.UseBedrock, nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "anthropic.aws_profile":
		return cfg.Anthropic.AWSProfile, nil
	case "anthropic.max_tokens":
		return cfg.Anthropic.MaxTokens, nil
	case "anthropic.requests_per_minute":
		return cfg.Anthropic.RequestsPerMinute, nil
	case "pipeline.system_name":
		return cfg.Pipeline.SystemName, nil
	case "pipeline.results_dir":
		return cfg.Pipeline.ResultsDir, nil
	case "pipeline.personas_dir":
		return cfg.Pipeline.PersonasDir, nil
	case "pipeline.docs_dir":
		return cfg.Pipeline.DocsDir, nil
	case "pipeline.seed":
		return cfg.Pipeline.Seed, nil
	case "pipeline.task_dedup_max_removal_ratio":
		return cfg.Pipeline.TaskDedupMaxRemovalRatio, nil
	case "pipeline.include_unclustered":
		return cfg.Pipeline.IncludeUnclustered, nil
	case "pipeline.language_hint":
		return cfg.Pipeline.LanguageHint, nil
	case "logging.level":
		return cfg.Logging.Level, nil
	case "logging.file":
		return cfg.Logging.File, nil
	default:
		return nil, fmt.Errorf("unknown configuration key: %s", key)
	}
}

// Value renders the value under key for display. The API key is masked.
func Value(cfg *Config, key string) (string, error) {
	if strings.EqualFold(key, "anthropic.api_key") {
		return MaskAPIKey(cfg.Anthropic.APIKey), nil
	}
	v, err := rawValue(cfg, key)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

// Set parses value and stores it under key.
func Set(cfg *Config, key, value string) error {
	parseBool := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		return b, nil
	}
	parseInt := func() (int64, error) {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		return n, nil
	}

	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.use_bedrock":
		b, err := parseBool()
		if err != nil {
			return err
		}
		cfg.Anthropic.UseBedrock = b
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "anthropic.max_tokens":
		n, err := parseInt()
		if err != nil {
			return err
		}
		cfg.Anthropic.MaxTokens = n
	case "anthropic.requests_per_minute":
		n, err := parseInt()
		if err != nil {
			return err
		}
		cfg.Anthropic.RequestsPerMinute = int(n)
	case "pipeline.system_name":
		cfg.Pipeline.SystemName = value
	case "pipeline.results_dir":
		cfg.Pipeline.ResultsDir = value
	case "pipeline.personas_dir":
		cfg.Pipeline.PersonasDir = value
	case "pipeline.docs_dir":
		cfg.Pipeline.DocsDir = value
	case "pipeline.seed":
		n, err := parseInt()
		if err != nil {
			return err
		}
		cfg.Pipeline.Seed = n
	case "pipeline.task_dedup_max_removal_ratio":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		cfg.Pipeline.TaskDedupMaxRemovalRatio = f
	case "pipeline.include_unclustered":
		b, err := parseBool()
		if err != nil {
			return err
		}
		cfg.Pipeline.IncludeUnclustered = b
	case "pipeline.language_hint":
		cfg.Pipeline.LanguageHint = value
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.file":
		cfg.Logging.File = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return cfg.Validate()
}
