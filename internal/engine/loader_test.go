package engine

import (
	"testing"
	"time"

	"strategy-monitor/internal/database"
)

func TestParseSchedule(t *testing.T) {
	cases := []struct {
		in         string
		want       time.Duration
		recognised bool
	}{
		{"event", 0, true},
		{"30s", 30 * time.Second, true},
		{"5m", 5 * time.Minute, true},
		{"1h", time.Hour, true},
		{"2d", 48 * time.Hour, true},
		{"", time.Minute, false},
		{"m", time.Minute, false},
		{"garbage", time.Minute, false},
		{"10x", time.Minute, false},
		{"0m", time.Minute, false},
		{"-5m", time.Minute, false},
	}
	for _, tc := range cases {
		got, ok := ParseSchedule(tc.in)
		if got != tc.want || ok != tc.recognised {
			t.Errorf("ParseSchedule(%q) = (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.recognised)
		}
	}
}

func TestIsDue(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	ranAt := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	cases := []struct {
		name      string
		schedule  string
		lastRunAt *time.Time
		want      bool
	}{
		{"never ran", "5m", nil, true},
		{"interval elapsed", "5m", ranAt(6 * time.Minute), true},
		{"exactly elapsed", "5m", ranAt(5 * time.Minute), true},
		{"not yet due", "5m", ranAt(2 * time.Minute), false},
		{"event always due", "event", ranAt(time.Second), true},
		{"unrecognised defaults to 1m", "whenever", ranAt(30 * time.Second), false},
		{"unrecognised past default", "whenever", ranAt(90 * time.Second), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &database.Strategy{Schedule: tc.schedule, LastRunAt: tc.lastRunAt}
			if got := IsDue(s, now); got != tc.want {
				t.Errorf("IsDue = %v, want %v", got, tc.want)
			}
		})
	}
}

// TestDueSetIsIdempotent: two reads with no state change see the same
// due-set.
func TestDueSetIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	earlier := now.Add(-10 * time.Minute)
	strategies := []*database.Strategy{
		{Schedule: "5m", LastRunAt: &earlier},
		{Schedule: "1h", LastRunAt: &earlier},
		{Schedule: "event"},
	}

	first := make([]bool, len(strategies))
	for i, s := range strategies {
		first[i] = IsDue(s, now)
	}
	for i, s := range strategies {
		if IsDue(s, now) != first[i] {
			t.Errorf("strategy %d: due-ness changed without state change", i)
		}
	}
	if !first[0] || first[1] || !first[2] {
		t.Errorf("due-set = %v, want [true false true]", first)
	}
}
