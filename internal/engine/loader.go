package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"strategy-monitor/internal/database"
)

// ScheduleEvent marks a strategy as event-driven: it skips the time gate
// and is due on every cycle.
const ScheduleEvent = "event"

const defaultInterval = time.Minute

// Store is the persistence surface the scheduler needs. Satisfied by
// *database.StrategyRepository; tests supply a fake.
type Store interface {
	GetActiveStrategies(ctx context.Context) ([]*database.Strategy, error)
	GetStrategyByID(ctx context.Context, id uuid.UUID) (*database.Strategy, error)
	CommitCycle(ctx context.Context, updates []database.CycleUpdate) error
}

// ParseSchedule converts a schedule literal into an interval. Accepted
// forms are "event" (zero interval, always due) and "<n><unit>" with unit
// in s, m, h, d. Anything else falls back to one minute.
func ParseSchedule(schedule string) (time.Duration, bool) {
	if schedule == ScheduleEvent {
		return 0, true
	}
	if len(schedule) < 2 {
		return defaultInterval, false
	}

	n, err := strconv.Atoi(schedule[:len(schedule)-1])
	if err != nil || n <= 0 {
		return defaultInterval, false
	}
	switch schedule[len(schedule)-1] {
	case 's':
		return time.Duration(n) * time.Second, true
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	}
	return defaultInterval, false
}

// IsDue reports whether a strategy should run at `now`. Event-driven
// strategies are always due; interval strategies are due when they have
// never run or when the interval has elapsed. Comparisons are in UTC.
func IsDue(s *database.Strategy, now time.Time) bool {
	interval, _ := ParseSchedule(s.Schedule)
	if interval == 0 {
		return true
	}
	if s.LastRunAt == nil {
		return true
	}
	return now.UTC().Sub(s.LastRunAt.UTC()) >= interval
}

// LoadDue returns the active strategies due at `now`, preserving the
// store's insertion order.
func LoadDue(ctx context.Context, store Store, now time.Time) ([]*database.Strategy, error) {
	active, err := store.GetActiveStrategies(ctx)
	if err != nil {
		return nil, err
	}
	due := make([]*database.Strategy, 0, len(active))
	for _, s := range active {
		if IsDue(s, now) {
			due = append(due, s)
		}
	}
	return due, nil
}
