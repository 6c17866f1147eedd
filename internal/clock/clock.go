// Package clock provides the engine's time source and the heartbeat cadence.
package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// Source is the monotonic time capability the engine components consume.
type Source interface {
	Now() time.Time
	// NowMS is the current time in unix milliseconds.
	NowMS() int64
}

// System reads the real clock. time.Now carries a monotonic reading, so
// durations computed from consecutive calls are immune to wall clock jumps.
type System struct{}

func (System) Now() time.Time { return time.Now() }
func (System) NowMS() int64   { return time.Now().UnixMilli() }

// Fake is a manually advanced clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(start time.Time) *Fake { return &Fake{now: start} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NowMS() int64 { return f.Now().UnixMilli() }

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Schedule describes a periodic trigger: either a cron expression (minute
// resolution) or a fixed period. Expr wins when both are set.
type Schedule struct {
	Expr   string
	Period time.Duration
}

// Validate checks the cron expression, if any.
func (s Schedule) Validate() error {
	if s.Expr == "" {
		if s.Period <= 0 {
			return fmt.Errorf("schedule: period must be positive, got %v", s.Period)
		}
		return nil
	}
	if !gronx.New().IsValid(s.Expr) {
		return fmt.Errorf("schedule: invalid cron expression %q", s.Expr)
	}
	return nil
}

// NextAfter returns the next trigger instant strictly after t.
func (s Schedule) NextAfter(t time.Time) (time.Time, error) {
	if s.Expr != "" {
		next, err := gronx.NextTickAfter(s.Expr, t, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("schedule: next tick for %q: %w", s.Expr, err)
		}
		return next, nil
	}
	return t.Add(s.Period), nil
}
