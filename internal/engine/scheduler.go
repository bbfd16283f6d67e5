package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"strategy-monitor/internal/database"
	"strategy-monitor/internal/market"
	"strategy-monitor/internal/metrics"
)

// Scheduler drives periodic evaluation cycles over the active strategies.
// Start is idempotent; Stop blocks until the in-flight cycle finishes.
type Scheduler struct {
	store  Store
	data   market.Data
	logger zerolog.Logger

	period time.Duration
	quote  string

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. Quote is the quote asset used for all
// market lookups, normally "usd".
func NewScheduler(store Store, data market.Data, period time.Duration, quote string, logger zerolog.Logger) *Scheduler {
	if period <= 0 {
		period = 5 * time.Second
	}
	if quote == "" {
		quote = "usd"
	}
	return &Scheduler{
		store:  store,
		data:   data,
		logger: logger.With().Str("component", "scheduler").Logger(),
		period: period,
		quote:  quote,
	}
}

// Start launches the cycle loop. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})

	s.wg.Add(1)
	go s.loop()
	s.logger.Info().Dur("period", s.period).Msg("scheduler started")
}

// Stop signals the loop to exit and waits for the in-flight cycle to
// complete. Calling Stop on an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

// IsRunning reports whether the cycle loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	// Run one cycle immediately rather than waiting out the first tick.
	s.RunCycle(context.Background())

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunCycle(context.Background())
		}
	}
}

// RunCycle executes one evaluation cycle: load the due strategies,
// evaluate each serially, then commit all bookkeeping in one transaction.
// A panic in one strategy's evaluation skips that strategy only.
func (s *Scheduler) RunCycle(ctx context.Context) {
	start := time.Now()
	now := start.UTC()

	due, err := LoadDue(ctx, s.store, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load strategies, skipping cycle")
		return
	}
	if len(due) == 0 {
		return
	}

	updates := make([]database.CycleUpdate, 0, len(due))
	triggered := 0
	for _, strategy := range due {
		select {
		case <-ctx.Done():
			s.logger.Warn().Msg("cycle cancelled mid-evaluation")
			return
		default:
		}

		update, ok := s.evaluateOne(ctx, strategy, now)
		if !ok {
			continue
		}
		updates = append(updates, update)
		if update.Triggered {
			triggered++
		}
	}

	if err := s.store.CommitCycle(ctx, updates); err != nil {
		metrics.CycleCommitFailures.Inc()
		s.logger.Error().Err(err).Int("strategies", len(updates)).Msg("cycle commit failed, bookkeeping lost")
		return
	}

	metrics.CycleDuration.Observe(time.Since(start).Seconds())
	s.logger.Debug().
		Int("evaluated", len(updates)).
		Int("triggered", triggered).
		Dur("elapsed", time.Since(start)).
		Msg("cycle complete")
}

// evaluateOne evaluates a single strategy, converting panics into a
// skipped strategy instead of an aborted cycle.
func (s *Scheduler) evaluateOne(ctx context.Context, strategy *database.Strategy, now time.Time) (update database.CycleUpdate, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.StrategiesEvaluated.WithLabelValues("panic").Inc()
			s.logger.Error().
				Str("strategy_id", strategy.ID.String()).
				Interface("panic", r).
				Msg("strategy evaluation panicked, skipping")
			ok = false
		}
	}()

	result := s.Evaluate(ctx, strategy)
	update = database.CycleUpdate{
		StrategyID: strategy.ID,
		RanAt:      now,
		Triggered:  result.Met,
	}
	if result.Met {
		metrics.StrategiesEvaluated.WithLabelValues("triggered").Inc()
		update.Snapshot = result.Snapshot()
		msg := "strategy conditions met: " + strategy.Name
		update.Message = &msg
		s.logger.Info().
			Str("strategy_id", strategy.ID.String()).
			Str("name", strategy.Name).
			Msg("strategy triggered")
	} else {
		metrics.StrategiesEvaluated.WithLabelValues("not_triggered").Inc()
	}
	return update, true
}

// Evaluate runs one strategy's logic tree against fresh market data. Used
// by the cycle loop and by the on-demand evaluation endpoint.
func (s *Scheduler) Evaluate(ctx context.Context, strategy *database.Strategy) *TreeResult {
	ec := NewEvalContext(strategy, s.data, s.quote)
	return EvaluateTree(ctx, ec, strategy.LogicTree)
}
