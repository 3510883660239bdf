package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8000 {
		t.Fatalf("port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Fatalf("log defaults = %+v", cfg.Log)
	}
	if cfg.Database.Path != "chat_log.db" {
		t.Fatalf("database path = %q", cfg.Database.Path)
	}
	if cfg.Oracle.MaxBudgetUSD != 5.0 {
		t.Fatalf("budget = %f, want 5.0", cfg.Oracle.MaxBudgetUSD)
	}
	if cfg.Oracle.Cost.Prompt != 0.5 || cfg.Oracle.Cost.Completion != 1.5 {
		t.Fatalf("cost defaults = %+v", cfg.Oracle.Cost)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_ORACLE_KEY", "secret-key")
	path := writeConfig(t, `
server:
  port: 9000
oracle:
  api_key: ${TEST_ORACLE_KEY}
  request_timeout: 30s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Oracle.APIKey != "secret-key" {
		t.Fatalf("api key = %q, want env expansion", cfg.Oracle.APIKey)
	}
	if cfg.Oracle.RequestTimeout != 30*time.Second {
		t.Fatalf("timeout = %v, want 30s", cfg.Oracle.RequestTimeout)
	}
	// Untouched fields still pick up defaults.
	if cfg.Database.Path != "chat_log.db" {
		t.Fatalf("database path = %q", cfg.Database.Path)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate accepted %s", tt.name)
			}
		})
	}
}
