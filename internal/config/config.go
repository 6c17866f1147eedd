// Package config loads process-level configuration from a JSON5 file with
// environment overrides. Secrets come from the environment only; the file
// never needs to hold credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

// Config is the full process configuration.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Anthropic AnthropicConfig `json:"anthropic"`
	Workspace WorkspaceConfig `json:"workspace"`
	Database  DatabaseConfig  `json:"database"`
	Ollama    OllamaConfig    `json:"ollama"`
	Voice     VoiceConfig     `json:"voice"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Session   SessionConfig   `json:"session"`
}

type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	// UserID is the sole authorized operator; everyone else is ignored.
	UserID int64 `json:"user_id"`
}

type AnthropicConfig struct {
	// APIKey is used by the conversational model only; it is scrubbed from
	// build agents' environments.
	APIKey string `json:"api_key"`
}

type WorkspaceConfig struct {
	Path string `json:"path"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type OllamaConfig struct {
	Host       string `json:"host"`
	Model      string `json:"model"`
	MaxRetries int    `json:"max_retries"`
}

type VoiceConfig struct {
	STTURL string `json:"stt_url"`
	TTSURL string `json:"tts_url"`
}

type TelemetryConfig struct {
	// OTLPEndpoint enables trace export when non-empty.
	OTLPEndpoint string `json:"otlp_endpoint"`
}

type SessionConfig struct {
	AutoHandoffPct float64 `json:"auto_handoff_pct"`
	WarnPct        float64 `json:"warn_pct"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{Path: "~/.maslow/workspace"},
		Database:  DatabaseConfig{Path: "~/.maslow/maslow.db"},
		Ollama: OllamaConfig{
			Host:       "http://127.0.0.1:11434",
			Model:      "llama3.1",
			MaxRetries: 3,
		},
		Session: SessionConfig{
			AutoHandoffPct: 50,
			WarnPct:        80,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is fine; env vars alone can carry a full working setup.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.expandPaths()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values; secrets are env-only by convention.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("MASLOW_TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	envStr("MASLOW_ANTHROPIC_API_KEY", &c.Anthropic.APIKey)
	envStr("MASLOW_WORKSPACE_PATH", &c.Workspace.Path)
	envStr("MASLOW_DATABASE_PATH", &c.Database.Path)
	envStr("MASLOW_OLLAMA_HOST", &c.Ollama.Host)
	envStr("MASLOW_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
}

func (c *Config) expandPaths() {
	c.Workspace.Path = expandHome(c.Workspace.Path)
	c.Database.Path = expandHome(c.Database.Path)
}

// Validate checks the fields the engine cannot run without.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required (or MASLOW_TELEGRAM_BOT_TOKEN)")
	}
	if c.Telegram.UserID == 0 {
		return fmt.Errorf("telegram.user_id is required")
	}
	if c.Workspace.Path == "" {
		return fmt.Errorf("workspace.path is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
