package heartbeat

import (
	"bufio"
	"bytes"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maslowhq/maslow/internal/clock"
)

// ConstraintsFile is the workspace document the operator edits to steer the
// scheduler. It is a Markdown checklist; unrecognized lines are ignored.
const ConstraintsFile = "heartbeat.md"

// Constraints are the scheduler knobs read from the workspace heartbeat
// document.
type Constraints struct {
	MaxConcurrentAgents int
	BlockedRetryMinutes int
	BuilderEnabled      bool
	SynthesizerEnabled  bool
	TickSeconds         int
	// TickCron, when set, overrides TickSeconds with a cron schedule.
	TickCron string
}

// Schedule returns the tick trigger derived from the knobs.
func (c Constraints) Schedule() clock.Schedule {
	return clock.Schedule{
		Expr:   c.TickCron,
		Period: time.Duration(c.TickSeconds) * time.Second,
	}
}

func DefaultConstraints() Constraints {
	return Constraints{
		MaxConcurrentAgents: 3,
		BlockedRetryMinutes: 30,
		BuilderEnabled:      true,
		SynthesizerEnabled:  false,
		TickSeconds:         60,
	}
}

// LoadConstraints reads the heartbeat document. A missing file yields the
// defaults; the operator has simply not customized anything yet.
func LoadConstraints(path string) (Constraints, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConstraints(), nil
	}
	if err != nil {
		return DefaultConstraints(), err
	}
	return ParseConstraints(data), nil
}

// ParseConstraints extracts knobs from the Markdown document. Toggles are
// checklist items ("- [x] Builder enabled"); numeric knobs are "key: value"
// list items ("- Max concurrent agents: 3"). Matching is case-insensitive
// and tolerant of extra prose.
func ParseConstraints(data []byte) Constraints {
	c := DefaultConstraints()

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(line)

		if checked, ok := checklistState(lower); ok {
			switch {
			case strings.Contains(lower, "builder"):
				c.BuilderEnabled = checked
			case strings.Contains(lower, "synthesizer"):
				c.SynthesizerEnabled = checked
			}
			continue
		}

		key, value, ok := strings.Cut(lower, ":")
		if !ok {
			continue
		}
		if strings.Contains(key, "tick cron") {
			expr := strings.TrimSpace(value)
			if expr != "" && (clock.Schedule{Expr: expr}).Validate() == nil {
				c.TickCron = expr
			}
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			continue
		}
		switch {
		case strings.Contains(key, "max concurrent"):
			if n > 0 {
				c.MaxConcurrentAgents = n
			}
		case strings.Contains(key, "blocked retry"):
			c.BlockedRetryMinutes = n
		case strings.Contains(key, "tick"):
			if n > 0 {
				c.TickSeconds = n
			}
		}
	}
	return c
}

// checklistState reports whether the line is a checklist item and whether it
// is checked.
func checklistState(line string) (checked, ok bool) {
	for _, marker := range []string{"- ", "* "} {
		rest, found := strings.CutPrefix(line, marker)
		if !found {
			continue
		}
		switch {
		case strings.HasPrefix(rest, "[x]"):
			return true, true
		case strings.HasPrefix(rest, "[ ]"):
			return false, true
		}
	}
	return false, false
}
