package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-from-env")
	path := writeConfig(t, `
logging:
  level: debug
  format: json
agent:
  default_model: claude-sonnet-4-5
  max_tokens: 2048
approval:
  default_timeout: 2m
models:
  claude-sonnet-4-5:
    provider: anthropic
    api_key: ${TEST_API_KEY}
  llama3.1:
    provider: local
    base_url: http://localhost:11434
tools:
  shell:
    requires_approval: true
    max_execution_time: 90s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Agent.MaxTokens != 2048 {
		t.Errorf("max_tokens = %d", cfg.Agent.MaxTokens)
	}
	if cfg.Approval.DefaultTimeout != 2*time.Minute {
		t.Errorf("approval timeout = %v", cfg.Approval.DefaultTimeout)
	}
	if cfg.Models["claude-sonnet-4-5"].APIKey != "sk-from-env" {
		t.Errorf("api_key = %q, env not expanded", cfg.Models["claude-sonnet-4-5"].APIKey)
	}
	shell, ok := cfg.Tools["shell"]
	if !ok || shell.RequiresApproval == nil || !*shell.RequiresApproval {
		t.Errorf("shell tool override = %+v", shell)
	}
	if shell.MaxExecutionTime != 90*time.Second {
		t.Errorf("shell max_execution_time = %v", shell.MaxExecutionTime)
	}
	// Sections absent from the file keep their defaults.
	if !cfg.Storage.Enabled || cfg.Storage.SessionsDir != "sessions" {
		t.Errorf("storage defaults = %+v", cfg.Storage)
	}
}

func TestLoad_EmptyFileGivesDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.Agent.DefaultModel != def.Agent.DefaultModel || cfg.Storage.MaxMessages != def.Storage.MaxMessages {
		t.Errorf("empty config = %+v", cfg)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, "loging:\n  level: info\n")
	if _, err := Load(path); err == nil {
		t.Fatal("misspelled section accepted")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load of missing file succeeded")
	}
	if _, err := Load(" "); err == nil {
		t.Fatal("Load of blank path succeeded")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "storage without dir",
			mutate:  func(c *Config) { c.Storage.SessionsDir = "" },
			wantErr: "sessions_dir",
		},
		{
			name:    "negative max messages",
			mutate:  func(c *Config) { c.Storage.MaxMessages = -1 },
			wantErr: "max_messages",
		},
		{
			name:    "negative approval timeout",
			mutate:  func(c *Config) { c.Approval.DefaultTimeout = -time.Second },
			wantErr: "default_timeout",
		},
		{
			name:    "model without provider",
			mutate:  func(c *Config) { c.Models["m"] = ModelConfig{} },
			wantErr: "provider is required",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Models["m"] = ModelConfig{Provider: "bedrock"} },
			wantErr: "unknown provider",
		},
		{
			name:    "audit without path",
			mutate:  func(c *Config) { c.Audit.Enabled = true },
			wantErr: "audit.path",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
