package runner

import (
	"fmt"
	"strings"

	"github.com/maslowhq/maslow/internal/store"
)

// maxAgentTurns caps claude's tool iterations per run.
const maxAgentTurns = 50

// BuildCommand returns the argv for a CLI-driven agent. The ollama agent is
// library-mediated and has no argv.
func BuildCommand(agent store.AgentKind, prompt, resumeSessionID string) ([]string, error) {
	switch agent {
	case store.AgentClaude:
		args := []string{
			"claude", "-p", "--verbose",
			"--output-format", "stream-json",
			"--permission-mode", "bypassPermissions",
			"--max-turns", fmt.Sprintf("%d", maxAgentTurns),
		}
		if resumeSessionID != "" {
			args = append(args, "--resume", resumeSessionID)
		}
		return append(args, prompt), nil
	case store.AgentCodex:
		return []string{"codex", "--approval-mode", "full-auto", prompt}, nil
	case store.AgentGemini:
		return []string{"gemini", "-y", prompt}, nil
	case store.AgentOllama:
		return nil, fmt.Errorf("ollama is library-mediated, no command line")
	default:
		return nil, fmt.Errorf("unknown agent %q", agent)
	}
}

// scrubEnv returns env minus any variable named in drop. The sub-agent must
// not inherit the operator's conversational-model credentials.
func scrubEnv(env []string, drop []string) []string {
	if len(drop) == 0 {
		return env
	}
	out := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		dropped := false
		for _, d := range drop {
			if name == d {
				dropped = true
				break
			}
		}
		if !dropped {
			out = append(out, kv)
		}
	}
	return out
}
