package heartbeat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseConstraints(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want Constraints
	}{
		{
			name: "empty document keeps defaults",
			doc:  "",
			want: DefaultConstraints(),
		},
		{
			name: "full document",
			doc: `# Heartbeat

The scheduler reads this file on every change.

- [x] Builder enabled
- [x] Synthesizer enabled
- Max concurrent agents: 2
- Blocked retry interval (minutes): 45
- Tick period (seconds): 30
`,
			want: Constraints{
				MaxConcurrentAgents: 2,
				BlockedRetryMinutes: 45,
				BuilderEnabled:      true,
				SynthesizerEnabled:  true,
				TickSeconds:         30,
			},
		},
		{
			name: "builder unchecked",
			doc:  "- [ ] Builder enabled\n",
			want: func() Constraints {
				c := DefaultConstraints()
				c.BuilderEnabled = false
				return c
			}(),
		},
		{
			name: "garbage values ignored",
			doc:  "- Max concurrent agents: lots\n- Tick period (seconds): -5\n",
			want: DefaultConstraints(),
		},
		{
			name: "prose lines ignored",
			doc:  "Remember: ship small diffs.\nbuilder: off\n",
			want: DefaultConstraints(),
		},
		{
			name: "tick cron accepted",
			doc:  "- Tick cron: */5 * * * *\n",
			want: func() Constraints {
				c := DefaultConstraints()
				c.TickCron = "*/5 * * * *"
				return c
			}(),
		},
		{
			name: "invalid tick cron ignored",
			doc:  "- Tick cron: every five minutes\n",
			want: DefaultConstraints(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseConstraints([]byte(tt.doc)); got != tt.want {
				t.Errorf("ParseConstraints = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadConstraintsMissingFile(t *testing.T) {
	got, err := LoadConstraints(filepath.Join(t.TempDir(), "heartbeat.md"))
	if err != nil {
		t.Fatal(err)
	}
	if got != DefaultConstraints() {
		t.Errorf("got %+v, want defaults", got)
	}
}

func TestLoadConstraintsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.md")
	if err := os.WriteFile(path, []byte("- Max concurrent agents: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadConstraints(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxConcurrentAgents != 1 {
		t.Errorf("MaxConcurrentAgents = %d, want 1", got.MaxConcurrentAgents)
	}
}
