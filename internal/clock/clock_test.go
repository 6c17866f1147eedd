package clock

import (
	"testing"
	"time"
)

func TestScheduleValidate(t *testing.T) {
	tests := []struct {
		name    string
		sched   Schedule
		wantErr bool
	}{
		{"fixed period", Schedule{Period: time.Minute}, false},
		{"zero period no expr", Schedule{}, true},
		{"valid cron", Schedule{Expr: "*/5 * * * *"}, false},
		{"invalid cron", Schedule{Expr: "not a cron"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sched.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheduleNextAfterPeriod(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := Schedule{Period: 60 * time.Second}
	next, err := s.NextAfter(base)
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}
	if got, want := next, base.Add(time.Minute); !got.Equal(want) {
		t.Errorf("NextAfter = %v, want %v", got, want)
	}
}

func TestScheduleNextAfterCron(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := Schedule{Expr: "* * * * *"}
	next, err := s.NextAfter(base)
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}
	if next.Minute() != 5 || next.Second() != 0 {
		t.Errorf("NextAfter = %v, want top of minute 03:05:00", next)
	}
}

func TestFakeAdvance(t *testing.T) {
	f := NewFake(time.UnixMilli(1000))
	if f.NowMS() != 1000 {
		t.Fatalf("NowMS = %d, want 1000", f.NowMS())
	}
	f.Advance(250 * time.Millisecond)
	if f.NowMS() != 1250 {
		t.Errorf("NowMS = %d, want 1250", f.NowMS())
	}
}
