// Package worktree isolates each card's file state in a branch-scoped git
// worktree under <repoRoot>/.worktrees/.
package worktree

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/maslowhq/maslow/internal/store"
)

const (
	worktreesDir = ".worktrees"
	// cardIDPrefixLen is how much of the card id goes into branch and
	// directory names.
	cardIDPrefixLen = 8
	maxSlugLen      = 50

	gitTimeout = 60 * time.Second
)

// Error reports that a worktree could not be produced or removed.
type Error struct {
	Op     string
	CardID string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("worktree %s for card %s: %v", e.Op, e.CardID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Lease is a live worktree handed to an agent.
type Lease struct {
	Dir        string
	BranchName string
}

// Manager creates and destroys worktrees for one repository.
type Manager struct {
	repoRoot string
}

func NewManager(repoRoot string) *Manager {
	return &Manager{repoRoot: repoRoot}
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slug normalizes a card title for use in a branch name: lowercased,
// non-alphanumeric runs collapsed to '-', trimmed, capped at 50 chars.
func Slug(title string) string {
	s := nonAlnum.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.Trim(s[:maxSlugLen], "-")
	}
	return s
}

// BranchName is deterministic from (agent, title, cardId):
// agent/<agent>/<slug>-<cardId[0:8]>.
func BranchName(agent store.AgentKind, title, cardID string) string {
	return fmt.Sprintf("agent/%s/%s-%s", agent, Slug(title), idPrefix(cardID))
}

func idPrefix(cardID string) string {
	if len(cardID) > cardIDPrefixLen {
		return cardID[:cardIDPrefixLen]
	}
	return cardID
}

// Acquire produces a worktree for the card. It first tries a fresh branch;
// if the branch already exists (a previous run pushed it), it checks the
// existing branch out into the new worktree instead.
func (m *Manager) Acquire(ctx context.Context, cardID string, agent store.AgentKind, title string) (*Lease, error) {
	branch := BranchName(agent, title, cardID)
	dir := filepath.Join(m.repoRoot, worktreesDir, idPrefix(cardID))

	if err := os.MkdirAll(filepath.Join(m.repoRoot, worktreesDir), 0o755); err != nil {
		return nil, &Error{Op: "acquire", CardID: cardID, Err: err}
	}

	if _, err := m.git(ctx, "worktree", "add", "-b", branch, dir); err != nil {
		// Branch exists from an earlier attempt; reuse it.
		if _, retryErr := m.git(ctx, "worktree", "add", dir, branch); retryErr != nil {
			return nil, &Error{Op: "acquire", CardID: cardID,
				Err: fmt.Errorf("fresh branch: %v; existing branch: %w", err, retryErr)}
		}
	}

	slog.Debug("worktree acquired", "card_id", cardID, "dir", dir, "branch", branch)
	return &Lease{Dir: dir, BranchName: branch}, nil
}

// Release removes the worktree. Idempotent: succeeds when the worktree or
// the directory is already gone.
func (m *Manager) Release(ctx context.Context, dir string) error {
	if dir == "" {
		return nil
	}
	if out, err := m.git(ctx, "worktree", "remove", "--force", dir); err != nil {
		slog.Debug("git worktree remove failed, removing directory directly",
			"dir", dir, "error", err, "output", out)
	}
	if err := os.RemoveAll(dir); err != nil {
		return &Error{Op: "release", CardID: filepath.Base(dir), Err: err}
	}
	// Drop stale administrative entries left by a direct directory removal.
	m.git(ctx, "worktree", "prune")
	return nil
}

// Orphans lists worktree directories under .worktrees/ whose card-id prefix
// is not in keep. The startup reconciler force-removes them.
func (m *Manager) Orphans(keep map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.repoRoot, worktreesDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", worktreesDir, err)
	}
	var orphans []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if !keep[e.Name()] {
			orphans = append(orphans, filepath.Join(m.repoRoot, worktreesDir, e.Name()))
		}
	}
	return orphans, nil
}

func (m *Manager) git(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", m.repoRoot}, args...)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}
