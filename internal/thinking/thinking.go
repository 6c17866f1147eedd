// Package thinking is the operator's decision journal: append-only decision
// and assumption logs plus a rolling state summary, kept as markdown in the
// workspace so both the operator and the agents can read them.
package thinking

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	decisionsFile   = "decisions.md"
	assumptionsFile = "assumptions.md"
	stateFile       = "state.md"
)

// Partner persists decisions, assumptions and the state summary.
type Partner struct {
	mu        sync.Mutex
	workspace string
}

func New(workspace string) *Partner {
	return &Partner{workspace: workspace}
}

// LogDecision appends a dated decision entry.
func (p *Partner) LogDecision(title, detail string) error {
	entry := fmt.Sprintf("\n## %s: %s\n", time.Now().Format("2006-01-02"), title)
	if detail != "" {
		entry += "\n" + detail + "\n"
	}
	return p.appendTo(decisionsFile, "# Decisions\n", entry)
}

// AddAssumption appends one assumption bullet.
func (p *Partner) AddAssumption(assumption string) error {
	return p.appendTo(assumptionsFile, "# Assumptions\n", fmt.Sprintf("- %s\n", assumption))
}

// UpdateStateSummary replaces the rolling project state summary.
func (p *Partner) UpdateStateSummary(summary string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	body := fmt.Sprintf("# State\n\n_Updated %s_\n\n%s\n", time.Now().Format(time.RFC3339), summary)
	if err := os.WriteFile(filepath.Join(p.workspace, stateFile), []byte(body), 0o644); err != nil {
		return fmt.Errorf("write state summary: %w", err)
	}
	return nil
}

func (p *Partner) appendTo(name, header, entry string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := filepath.Join(p.workspace, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		entry = header + entry
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("append to %s: %w", name, err)
	}
	return nil
}
