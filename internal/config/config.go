package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/axon/pkg/models"
)

// Config is the top-level runtime configuration.
type Config struct {
	Logging  LoggingConfig               `yaml:"logging"`
	Storage  StorageConfig               `yaml:"storage"`
	Approval ApprovalConfig              `yaml:"approval"`
	Agent    AgentConfig                 `yaml:"agent"`
	Models   map[string]ModelConfig      `yaml:"models"`
	Tools    map[string]ToolPolicyConfig `yaml:"tools"`
	Audit    AuditConfig                 `yaml:"audit"`
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// StorageConfig configures the transcript store.
type StorageConfig struct {
	Enabled     bool   `yaml:"enabled"`
	AutoSave    bool   `yaml:"auto_save"`
	MaxMessages int    `yaml:"max_messages"`
	SessionsDir string `yaml:"sessions_dir"`
}

// ApprovalConfig configures the approval manager.
type ApprovalConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// AgentConfig configures the reasoning loop defaults.
type AgentConfig struct {
	DefaultModel string `yaml:"default_model"`
	SystemPrompt string `yaml:"system_prompt"`
	Workspace    string `yaml:"workspace"`
	MaxTokens    int    `yaml:"max_tokens"`
}

// ModelConfig configures one model entry, keyed by model identifier.
type ModelConfig struct {
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
}

// ToolPolicyConfig overrides a registered tool's execution policy.
// Nil pointer fields leave the tool's own policy value in place.
type ToolPolicyConfig struct {
	AllowedSessionTypes []models.SessionType `yaml:"allowed_session_types"`
	RequiresApproval    *bool                `yaml:"requires_approval"`
	SandboxRequired     *bool                `yaml:"sandbox_required"`
	MaxExecutionTime    time.Duration        `yaml:"max_execution_time"`
}

// AuditConfig configures the SQLite tool-event audit store.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration with usable defaults for local use.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Enabled:     true,
			AutoSave:    true,
			MaxMessages: 200,
			SessionsDir: "sessions",
		},
		Approval: ApprovalConfig{
			DefaultTimeout: 5 * time.Minute,
		},
		Agent: AgentConfig{
			DefaultModel: "claude-sonnet-4-5",
			MaxTokens:    4096,
		},
		Models: map[string]ModelConfig{},
		Tools:  map[string]ToolPolicyConfig{},
	}
}

// Load reads a YAML configuration file, expanding ${VAR} environment
// references before parsing. Missing optional sections fall back to
// Default values.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if err == io.EOF {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Storage.Enabled && strings.TrimSpace(c.Storage.SessionsDir) == "" {
		return fmt.Errorf("storage.sessions_dir is required when storage is enabled")
	}
	if c.Storage.MaxMessages < 0 {
		return fmt.Errorf("storage.max_messages must not be negative")
	}
	if c.Approval.DefaultTimeout < 0 {
		return fmt.Errorf("approval.default_timeout must not be negative")
	}
	for id, m := range c.Models {
		switch m.Provider {
		case "anthropic", "openai", "local":
		case "":
			return fmt.Errorf("model %q: provider is required", id)
		default:
			return fmt.Errorf("model %q: unknown provider %q", id, m.Provider)
		}
	}
	if c.Audit.Enabled && strings.TrimSpace(c.Audit.Path) == "" {
		return fmt.Errorf("audit.path is required when audit is enabled")
	}
	return nil
}
