package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/maslowhq/maslow/internal/config"
	"github.com/maslowhq/maslow/internal/runner"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("maslow doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults + env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config:   INVALID (%s)\n", err)
	}

	fmt.Println()
	fmt.Println("  Channel:")
	checkCredential("Telegram", cfg.Telegram.BotToken)
	if cfg.Telegram.UserID != 0 {
		fmt.Printf("    %-12s %d\n", "Operator:", cfg.Telegram.UserID)
	} else {
		fmt.Printf("    %-12s (not configured)\n", "Operator:")
	}

	fmt.Println()
	fmt.Println("  Agents:")
	checkBinary("claude")
	checkBinary("codex")
	checkBinary("gemini")
	checkOllama(cfg)

	fmt.Println()
	fmt.Println("  External Tools:")
	checkBinary("git")
	checkBinary("gh")

	fmt.Println()
	fmt.Printf("  Workspace: %s", cfg.Workspace.Path)
	if _, err := os.Stat(cfg.Workspace.Path); err != nil {
		fmt.Println(" (NOT FOUND, seeded on first run)")
	} else {
		fmt.Println(" (OK)")
	}
	fmt.Printf("  Database:  %s", cfg.Database.Path)
	if _, err := os.Stat(cfg.Database.Path); err != nil {
		fmt.Println(" (NOT FOUND, created on first run)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkCredential(name, secret string) {
	if secret == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	masked := secret
	if len(masked) > 8 {
		masked = masked[:4] + strings.Repeat("*", len(masked)-8) + masked[len(masked)-4:]
	}
	fmt.Printf("    %-12s %s\n", name+":", masked)
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-12s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-12s %s\n", name+":", path)
	}
}

func checkOllama(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client := runner.NewOllamaClient(cfg.Ollama.Host, cfg.Ollama.Model, 1)
	if err := client.Ping(ctx); err != nil {
		fmt.Printf("    %-12s UNREACHABLE (%s)\n", "ollama:", cfg.Ollama.Host)
	} else {
		fmt.Printf("    %-12s %s (model %s)\n", "ollama:", cfg.Ollama.Host, cfg.Ollama.Model)
	}
}
