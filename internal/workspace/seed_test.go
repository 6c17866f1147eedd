package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureSeedsOnce(t *testing.T) {
	dir := t.TempDir()

	created, err := Ensure(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 3 {
		t.Errorf("created = %v, want 3 files", created)
	}
	for _, name := range []string{"heartbeat.md", "steering.md", "assumptions.md"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not seeded: %v", name, err)
		}
	}
	for _, sub := range []string{"steering", "skills"} {
		if fi, err := os.Stat(filepath.Join(dir, sub)); err != nil || !fi.IsDir() {
			t.Errorf("%s/ not created", sub)
		}
	}

	// Operator edits survive a re-run.
	edited := filepath.Join(dir, "heartbeat.md")
	if err := os.WriteFile(edited, []byte("- Max concurrent agents: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	created, err = Ensure(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 0 {
		t.Errorf("second run created %v, want none", created)
	}
	data, err := os.ReadFile(edited)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "- Max concurrent agents: 1\n" {
		t.Error("operator edit was overwritten")
	}
}
