package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Catalog.BaseURL == "" {
		t.Error("default base URL is empty")
	}
	if cfg.Catalog.PageLimit != 4998 {
		t.Errorf("PageLimit = %d, want 4998", cfg.Catalog.PageLimit)
	}
	if cfg.Catalog.Delay != 2*time.Second {
		t.Errorf("Delay = %v, want 2s", cfg.Catalog.Delay)
	}
	if cfg.Catalog.Retry.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Catalog.Retry.MaxAttempts)
	}
	if cfg.Output.Dir != "dtn_symbols" {
		t.Errorf("Output.Dir = %q, want dtn_symbols", cfg.Output.Dir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Catalog.PageLimit != 4998 {
		t.Errorf("PageLimit = %d, want default without config file", cfg.Catalog.PageLimit)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	content := `
catalog:
  page_limit: 100
  delay: 5s
output:
  dir: /tmp/symbols
  split_by_exchange: true
redis:
  addr: localhost:6379
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Catalog.PageLimit != 100 {
		t.Errorf("PageLimit = %d, want 100", cfg.Catalog.PageLimit)
	}
	if cfg.Catalog.Delay != 5*time.Second {
		t.Errorf("Delay = %v, want 5s", cfg.Catalog.Delay)
	}
	if cfg.Output.Dir != "/tmp/symbols" {
		t.Errorf("Output.Dir = %q, want /tmp/symbols", cfg.Output.Dir)
	}
	if !cfg.Output.SplitByExchange {
		t.Error("SplitByExchange = false, want true")
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want localhost:6379", cfg.Redis.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}

	// Unset keys keep their defaults
	if cfg.Catalog.Retry.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want default 5", cfg.Catalog.Retry.MaxAttempts)
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err == nil {
		t.Error("Expected error for missing explicit config file")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(":\n  - not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed config file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DTN_OUTPUT_DIR", "/data/symbols")
	t.Setenv("DTN_CATALOG_PAGE_LIMIT", "250")
	t.Setenv("DTN_CATALOG_DELAY", "500ms")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Output.Dir != "/data/symbols" {
		t.Errorf("Output.Dir = %q, want /data/symbols", cfg.Output.Dir)
	}
	if cfg.Catalog.PageLimit != 250 {
		t.Errorf("PageLimit = %d, want 250", cfg.Catalog.PageLimit)
	}
	if cfg.Catalog.Delay != 500*time.Millisecond {
		t.Errorf("Delay = %v, want 500ms", cfg.Catalog.Delay)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "valid defaults",
			mutate:      func(*Config) {},
			expectError: false,
		},
		{
			name:        "empty base URL",
			mutate:      func(c *Config) { c.Catalog.BaseURL = "" },
			expectError: true,
		},
		{
			name:        "zero page limit",
			mutate:      func(c *Config) { c.Catalog.PageLimit = 0 },
			expectError: true,
		},
		{
			name:        "zero retry attempts",
			mutate:      func(c *Config) { c.Catalog.Retry.MaxAttempts = 0 },
			expectError: true,
		},
		{
			name:        "negative delay",
			mutate:      func(c *Config) { c.Catalog.Delay = -time.Second },
			expectError: true,
		},
		{
			name:        "empty output dir",
			mutate:      func(c *Config) { c.Output.Dir = "" },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectError && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}
