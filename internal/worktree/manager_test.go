package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maslowhq/maslow/internal/store"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"simple", "Fix login bug", "fix-login-bug"},
		{"punctuation runs", "Add OAuth2!! (finally)", "add-oauth2-finally"},
		{"leading trailing", "  ...weird title...  ", "weird-title"},
		{"unicode dropped", "émoji 🎉 test", "moji-test"},
		{"caps at 50", strings.Repeat("a", 60), strings.Repeat("a", 50)},
		{"empty", "!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slug(tt.title); got != tt.want {
				t.Errorf("Slug(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestBranchName(t *testing.T) {
	got := BranchName(store.AgentClaude, "Fix login bug", "0123456789abcdef")
	want := "agent/claude/fix-login-bug-01234567"
	if got != want {
		t.Errorf("BranchName = %q, want %q", got, want)
	}
}

// initTestRepo creates a git repo with one commit so worktrees can be added.
func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-m", "init")
	return dir
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	repo := initTestRepo(t)
	m := NewManager(repo)
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "0123456789abcdef", store.AgentClaude, "Fix bug")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := os.Stat(lease.Dir); err != nil {
		t.Fatalf("worktree dir missing: %v", err)
	}
	if !strings.Contains(lease.Dir, "01234567") {
		t.Errorf("dir %q does not contain card id prefix", lease.Dir)
	}
	if lease.BranchName != "agent/claude/fix-bug-01234567" {
		t.Errorf("branch = %q", lease.BranchName)
	}

	if err := m.Release(ctx, lease.Dir); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(lease.Dir); !os.IsNotExist(err) {
		t.Errorf("worktree dir still present after release")
	}

	// Idempotent: releasing again must succeed.
	if err := m.Release(ctx, lease.Dir); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestAcquireReusesExistingBranch(t *testing.T) {
	repo := initTestRepo(t)
	m := NewManager(repo)
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "0123456789abcdef", store.AgentClaude, "Fix bug")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := m.Release(ctx, lease.Dir); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// Branch survives release; second acquire must check it out again.
	again, err := m.Acquire(ctx, "0123456789abcdef", store.AgentClaude, "Fix bug")
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if again.BranchName != lease.BranchName {
		t.Errorf("branch changed across reacquire: %q vs %q", again.BranchName, lease.BranchName)
	}
	m.Release(ctx, again.Dir)
}

func TestOrphans(t *testing.T) {
	repo := initTestRepo(t)
	m := NewManager(repo)

	wt := filepath.Join(repo, worktreesDir)
	for _, name := range []string{"aaaa1111", "bbbb2222"} {
		if err := os.MkdirAll(filepath.Join(wt, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	orphans, err := m.Orphans(map[string]bool{"aaaa1111": true})
	if err != nil {
		t.Fatalf("Orphans: %v", err)
	}
	if len(orphans) != 1 || filepath.Base(orphans[0]) != "bbbb2222" {
		t.Errorf("Orphans = %v, want [.../bbbb2222]", orphans)
	}
}
