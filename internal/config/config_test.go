package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Pipeline.SystemName != "system" {
		t.Errorf("expected default system name 'system', got %q", cfg.Pipeline.SystemName)
	}
	if cfg.Pipeline.Seed != 42 {
		t.Errorf("expected default seed 42, got %d", cfg.Pipeline.Seed)
	}
	if cfg.Pipeline.TaskDedupMaxRemovalRatio != 0.30 {
		t.Errorf("expected dedup ratio 0.30, got %v", cfg.Pipeline.TaskDedupMaxRemovalRatio)
	}
	if cfg.Pipeline.IncludeUnclustered {
		t.Error("expected include_unclustered to be false")
	}
	if cfg.Anthropic.MaxTokens != 4096 {
		t.Errorf("expected max tokens 4096, got %d", cfg.Anthropic.MaxTokens)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level info, got %q", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
  requests_per_minute: 30
pipeline:
  system_name: harbor
  seed: 7
  task_dedup_max_removal_ratio: 0.5
  include_unclustered: true
logging:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Anthropic.RequestsPerMinute != 30 {
		t.Errorf("expected 30 requests per minute, got %d", cfg.Anthropic.RequestsPerMinute)
	}
	if cfg.Pipeline.SystemName != "harbor" || cfg.Pipeline.Seed != 7 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.TaskDedupMaxRemovalRatio != 0.5 || !cfg.Pipeline.IncludeUnclustered {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.ResultsDir != "results" {
		t.Errorf("unset keys keep defaults, got results_dir %q", cfg.Pipeline.ResultsDir)
	}
	if cfg.Anthropic.MaxTokens != 4096 {
		t.Errorf("unset keys keep defaults, got max_tokens %d", cfg.Anthropic.MaxTokens)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level debug, got %q", cfg.Logging.Level)
	}
}

func TestLoadFromPath_RejectsBadRatio(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("pipeline:\n  task_dedup_max_removal_ratio: 1.5\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := LoadFromPath(configPath); err == nil {
		t.Error("expected an error for a ratio above 1")
	}
}

func TestLoadFromPath_NotFound(t *testing.T) {
	if _, err := LoadFromPath("/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_ProjectOverridesUser(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-environment")
	userDir := filepath.Join(xdg, "reqflow")
	if err := os.MkdirAll(userDir, 0755); err != nil {
		t.Fatal(err)
	}
	user := "pipeline:\n  system_name: user\n  seed: 9\nanthropic:\n  api_key: sk-ant-from-file\n"
	if err := os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte(user), 0644); err != nil {
		t.Fatal(err)
	}

	project := t.TempDir()
	if err := os.WriteFile(filepath.Join(project, ".reqflow.yaml"), []byte("pipeline:\n  system_name: project\n"), 0644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(project, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pipeline.SystemName != "project" {
		t.Errorf("system_name = %q, want project", cfg.Pipeline.SystemName)
	}
	if cfg.Pipeline.Seed != 9 {
		t.Errorf("seed = %d, want 9 from user config", cfg.Pipeline.Seed)
	}
	if cfg.Anthropic.APIKey != "sk-ant-from-environment" {
		t.Errorf("api_key = %q, want the environment value", cfg.Anthropic.APIKey)
	}
}

func TestSaveToPathRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Pipeline.SystemName = "harbor"
	cfg.Anthropic.UseBedrock = true
	cfg.Logging.File = "/tmp/reqflow.log"

	if err := SaveToPath(cfg, path); err != nil {
		t.Fatalf("SaveToPath failed: %v", err)
	}
	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("round trip = %+v, want %+v", loaded, cfg)
	}
}

func TestValueAndSet(t *testing.T) {
	cfg := Default()

	tests := []struct {
		key   string
		value string
		want  string
	}{
		{"pipeline.seed", "13", "13"},
		{"pipeline.include_unclustered", "true", "true"},
		{"pipeline.task_dedup_max_removal_ratio", "0.25", "0.25"},
		{"anthropic.requests_per_minute", "60", "60"},
		{"Logging.Level", "debug", "debug"},
		{"anthropic.api_key", "sk-ant-REDACTED", "sk-ant-...mnop"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := Set(cfg, tt.key, tt.value); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			got, err := Value(cfg, tt.key)
			if err != nil {
				t.Fatalf("Value failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Value(%s) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}

	for _, bad := range [][2]string{
		{"pipeline.seed", "many"},
		{"pipeline.task_dedup_max_removal_ratio", "2"},
		{"no.such_key", "x"},
	} {
		if err := Set(Default(), bad[0], bad[1]); err == nil {
			t.Errorf("Set(%s, %s) should fail", bad[0], bad[1])
		}
	}
}

func TestKeysAllResolve(t *testing.T) {
	cfg := Default()
	for _, key := range Keys() {
		if _, err := Value(cfg, key); err != nil {
			t.Errorf("Value(%s): %v", key, err)
		}
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("REQFLOW_TEST_VAR", "expanded_value")

	if got := expandEnv("${REQFLOW_TEST_VAR}"); got != "expanded_value" {
		t.Errorf("expected 'expanded_value', got %q", got)
	}
	if got := expandEnv("no vars here"); got != "no vars here" {
		t.Errorf("expected unchanged string, got %q", got)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := getUserConfigDir(); got != "/custom/config/reqflow" {
		t.Errorf("getUserConfigDir() = %q, want /custom/config/reqflow", got)
	}
}
