package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ollama.Host != "http://127.0.0.1:11434" {
		t.Errorf("ollama host = %q", cfg.Ollama.Host)
	}
	if cfg.Session.AutoHandoffPct != 50 || cfg.Session.WarnPct != 80 {
		t.Errorf("session thresholds = %+v", cfg.Session)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	body := `{
  // single operator setup
  telegram: { bot_token: "tok", user_id: 42 },
  workspace: { path: "/srv/maslow" },
  database: { path: "/srv/maslow.db" },
  ollama: { model: "qwen2.5-coder", max_retries: 5 },
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.UserID != 42 || cfg.Telegram.BotToken != "tok" {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Ollama.Model != "qwen2.5-coder" || cfg.Ollama.MaxRetries != 5 {
		t.Errorf("ollama = %+v", cfg.Ollama)
	}
	// Untouched fields keep defaults.
	if cfg.Ollama.Host != "http://127.0.0.1:11434" {
		t.Errorf("ollama host = %q", cfg.Ollama.Host)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	if err := os.WriteFile(path, []byte(`{telegram: {bot_token: "from-file", user_id: 1}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MASLOW_TELEGRAM_BOT_TOKEN", "from-env")
	t.Setenv("MASLOW_ANTHROPIC_API_KEY", "sk-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.BotToken != "from-env" {
		t.Errorf("bot token = %q, want env value", cfg.Telegram.BotToken)
	}
	if cfg.Anthropic.APIKey != "sk-env" {
		t.Errorf("api key = %q", cfg.Anthropic.APIKey)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("empty telegram config passed validation")
	}
	cfg.Telegram = TelegramConfig{BotToken: "tok", UserID: 7}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	got := expandHome("~/.maslow/workspace")
	if !strings.HasPrefix(got, home) {
		t.Errorf("expandHome = %q, want under %q", got, home)
	}
	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed: %q", got)
	}
}
