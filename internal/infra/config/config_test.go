package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
security:
  encryption_secret: test-secret
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxSteps != 10 {
		t.Errorf("MaxSteps = %d, want 10", cfg.Agent.MaxSteps)
	}
	if cfg.LLM.DefaultModel != "gemini-2.5-flash" {
		t.Errorf("DefaultModel = %q", cfg.LLM.DefaultModel)
	}
	if cfg.Search.ContentCap != 500 {
		t.Errorf("ContentCap = %d, want 500", cfg.Search.ContentCap)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9999"
  auth_tokens:
    tok-1: alice
agent:
  max_steps: 5
llm:
  timeout: 30s
security:
  encryption_secret: s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.AuthTokens["tok-1"] != "alice" {
		t.Errorf("AuthTokens = %v", cfg.Server.AuthTokens)
	}
	if cfg.Agent.MaxSteps != 5 {
		t.Errorf("MaxSteps = %d, want 5", cfg.Agent.MaxSteps)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.LLM.Timeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LIBRARIA_ENCRYPTION_SECRET", "env-secret")
	t.Setenv("LIBRARIA_MAX_STEPS", "3")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load without file: %v", err)
	}
	if cfg.Security.EncryptionSecret != "env-secret" {
		t.Errorf("EncryptionSecret = %q", cfg.Security.EncryptionSecret)
	}
	if cfg.Agent.MaxSteps != 3 {
		t.Errorf("MaxSteps = %d, want 3", cfg.Agent.MaxSteps)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.Security.EncryptionSecret = "" }},
		{"zero steps", func(c *Config) { c.Agent.MaxSteps = 0 }},
		{"empty db path", func(c *Config) { c.Store.Path = "" }},
		{"bad log level", func(c *Config) { c.Logger.Level = "loud" }},
		{"zero content cap", func(c *Config) { c.Search.ContentCap = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Security.EncryptionSecret = "s"
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate should fail")
			}
		})
	}
}
