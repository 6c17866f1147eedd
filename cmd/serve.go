package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maslowhq/maslow/internal/bus"
	"github.com/maslowhq/maslow/internal/clock"
	"github.com/maslowhq/maslow/internal/config"
	"github.com/maslowhq/maslow/internal/heartbeat"
	"github.com/maslowhq/maslow/internal/model"
	"github.com/maslowhq/maslow/internal/registry"
	"github.com/maslowhq/maslow/internal/runner"
	"github.com/maslowhq/maslow/internal/session"
	"github.com/maslowhq/maslow/internal/store/sqlite"
	"github.com/maslowhq/maslow/internal/telegram"
	"github.com/maslowhq/maslow/internal/thinking"
	"github.com/maslowhq/maslow/internal/tracing"
	"github.com/maslowhq/maslow/internal/voice"
	"github.com/maslowhq/maslow/internal/workspace"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration engine",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	setupLogging()

	if err := serve(); err != nil {
		slog.Error("engine exited", "error", err)
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))
}

func serve() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// The conversational model reads the key from the environment. Build
	// agents never see it; the runner scrubs it before exec.
	if cfg.Anthropic.APIKey != "" {
		os.Setenv("ANTHROPIC_API_KEY", cfg.Anthropic.APIKey)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	created, err := workspace.Ensure(cfg.Workspace.Path)
	if err != nil {
		return fmt.Errorf("prepare workspace: %w", err)
	}
	if len(created) > 0 {
		slog.Info("workspace seeded", "path", cfg.Workspace.Path, "files", created)
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry.OTLPEndpoint, Version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	events := bus.New()
	events.Subscribe("log", logEvents)

	reg := registry.New(registry.DefaultMaxConcurrent)
	ollama := runner.NewOllamaClient(cfg.Ollama.Host, cfg.Ollama.Model, cfg.Ollama.MaxRetries)
	agents := runner.New(db, reg, events, clock.System{}, ollama)

	hb := heartbeat.New(db, db, reg, agents, events, clock.System{}, cfg.Workspace.Path)
	hb.SetSynthesizer(heartbeat.NewReviewSweeper(db))

	channel, err := telegram.New(telegram.Config{
		Token:  cfg.Telegram.BotToken,
		UserID: cfg.Telegram.UserID,
	}, nil, reg, agents)
	if err != nil {
		return err
	}

	actions := session.NewActionExecutor(db, db, thinking.New(cfg.Workspace.Path))
	mgr := session.NewManager(db, model.NewClaudeCLI(), channel, hb, actions, cfg.Workspace.Path)
	if cfg.Session.AutoHandoffPct > 0 {
		mgr.AutoHandoffPct = cfg.Session.AutoHandoffPct
	}
	if cfg.Session.WarnPct > 0 {
		mgr.WarnPct = cfg.Session.WarnPct
	}
	if cfg.Voice.STTURL != "" || cfg.Voice.TTSURL != "" {
		mgr.SetVoice(voice.NewClient(cfg.Voice.STTURL, cfg.Voice.TTSURL))
	}
	channel.SetHandler(mgr)

	if err := channel.Start(ctx); err != nil {
		return err
	}
	if err := hb.Start(ctx); err != nil {
		channel.Stop()
		return err
	}

	slog.Info("maslow engine running", "version", Version, "workspace", cfg.Workspace.Path)
	<-ctx.Done()
	slog.Info("shutting down")

	channel.Stop()
	hb.Stop()
	agents.ShutdownAll()
	events.Close()
	return nil
}

// logEvents mirrors every bus event onto the structured log so a bare
// deployment still has an audit trail without a trace backend.
func logEvents(ev bus.Event) {
	attrs := make([]any, 0, 2+2*len(ev.Payload))
	attrs = append(attrs, "type", ev.Type)
	for k, v := range ev.Payload {
		attrs = append(attrs, k, v)
	}
	slog.Debug("event", attrs...)
}
