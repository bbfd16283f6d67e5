package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("database: not found")

// StrategyRepository provides access to strategies, their conditions, and
// trigger logs.
type StrategyRepository struct {
	db *DB
}

// NewStrategyRepository creates a strategy repository.
func NewStrategyRepository(db *DB) *StrategyRepository {
	return &StrategyRepository{db: db}
}

const strategyColumns = `id, user_id, name, description, logic_tree, schedule,
	assets, status, last_run_at, last_triggered_at, trigger_count, created_at, updated_at`

func scanStrategy(row pgx.Row) (*Strategy, error) {
	var s Strategy
	var logicTree, assets []byte
	err := row.Scan(
		&s.ID, &s.UserID, &s.Name, &s.Description, &logicTree, &s.Schedule,
		&assets, &s.Status, &s.LastRunAt, &s.LastTriggeredAt, &s.TriggerCount,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(logicTree) > 0 {
		if err := json.Unmarshal(logicTree, &s.LogicTree); err != nil {
			return nil, fmt.Errorf("malformed logic_tree for strategy %s: %w", s.ID, err)
		}
	}
	if len(assets) > 0 {
		if err := json.Unmarshal(assets, &s.Assets); err != nil {
			return nil, fmt.Errorf("malformed assets for strategy %s: %w", s.ID, err)
		}
	}
	return &s, nil
}

// GetActiveStrategies loads all active strategies together with their
// conditions. This is the scheduler's per-cycle read.
func (r *StrategyRepository) GetActiveStrategies(ctx context.Context) ([]*Strategy, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+strategyColumns+` FROM strategies WHERE status = $1 ORDER BY created_at`,
		StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()

	var strategies []*Strategy
	byID := make(map[uuid.UUID]*Strategy)
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		strategies = append(strategies, s)
		byID[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read strategies: %w", err)
	}
	if len(strategies) == 0 {
		return strategies, nil
	}

	ids := make([]uuid.UUID, 0, len(strategies))
	for _, s := range strategies {
		ids = append(ids, s.ID)
	}
	condRows, err := r.db.Pool.Query(ctx,
		`SELECT id, strategy_id, type, payload, label, enabled, created_at, updated_at
		 FROM strategy_conditions WHERE strategy_id = ANY($1) ORDER BY created_at`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query conditions: %w", err)
	}
	defer condRows.Close()

	for condRows.Next() {
		var c Condition
		if err := condRows.Scan(&c.ID, &c.StrategyID, &c.Type, &c.Payload,
			&c.Label, &c.Enabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}
		if s, ok := byID[c.StrategyID]; ok {
			s.Conditions = append(s.Conditions, &c)
		}
	}
	if err := condRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conditions: %w", err)
	}
	return strategies, nil
}

// GetStrategyByID loads one strategy with its conditions, regardless of
// status.
func (r *StrategyRepository) GetStrategyByID(ctx context.Context, id uuid.UUID) (*Strategy, error) {
	s, err := scanStrategy(r.db.Pool.QueryRow(ctx,
		`SELECT `+strategyColumns+` FROM strategies WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get strategy: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, strategy_id, type, payload, label, enabled, created_at, updated_at
		 FROM strategy_conditions WHERE strategy_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query conditions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Condition
		if err := rows.Scan(&c.ID, &c.StrategyID, &c.Type, &c.Payload,
			&c.Label, &c.Enabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}
		s.Conditions = append(s.Conditions, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conditions: %w", err)
	}
	return s, nil
}

// CommitCycle applies all bookkeeping from one scheduler cycle in a single
// transaction: last_run_at for every evaluated strategy, plus trigger
// counters and a trigger-log row for the ones that fired. Either the whole
// cycle is recorded or none of it is.
func (r *StrategyRepository) CommitCycle(ctx context.Context, updates []CycleUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range updates {
		if u.Triggered {
			if _, err := tx.Exec(ctx,
				`UPDATE strategies
				 SET last_run_at = $2, last_triggered_at = $2, trigger_count = trigger_count + 1
				 WHERE id = $1`, u.StrategyID, u.RanAt); err != nil {
				return fmt.Errorf("failed to update strategy %s: %w", u.StrategyID, err)
			}
			snapshot := u.Snapshot
			if len(snapshot) == 0 {
				snapshot = json.RawMessage(`{}`)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO strategy_trigger_logs (strategy_id, triggered_at, snapshot, message)
				 VALUES ($1, $2, $3, $4)`, u.StrategyID, u.RanAt, snapshot, u.Message); err != nil {
				return fmt.Errorf("failed to insert trigger log for %s: %w", u.StrategyID, err)
			}
		} else {
			if _, err := tx.Exec(ctx,
				`UPDATE strategies SET last_run_at = $2 WHERE id = $1`,
				u.StrategyID, u.RanAt); err != nil {
				return fmt.Errorf("failed to update strategy %s: %w", u.StrategyID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cycle: %w", err)
	}
	return nil
}

// GetTriggerLogs returns the most recent trigger logs for a strategy,
// newest first.
func (r *StrategyRepository) GetTriggerLogs(ctx context.Context, strategyID uuid.UUID, limit int) ([]*TriggerLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, strategy_id, triggered_at, snapshot, message
		 FROM strategy_trigger_logs WHERE strategy_id = $1
		 ORDER BY triggered_at DESC LIMIT $2`, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger logs: %w", err)
	}
	defer rows.Close()

	var logs []*TriggerLog
	for rows.Next() {
		var l TriggerLog
		if err := rows.Scan(&l.ID, &l.StrategyID, &l.TriggeredAt, &l.Snapshot, &l.Message); err != nil {
			return nil, fmt.Errorf("failed to scan trigger log: %w", err)
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trigger logs: %w", err)
	}
	return logs, nil
}

// CreateStrategy inserts a strategy and its conditions in one transaction.
// Used by tests and seed tooling; the monitoring service itself only reads.
func (r *StrategyRepository) CreateStrategy(ctx context.Context, s *Strategy) error {
	logicTree, err := json.Marshal(s.LogicTree)
	if err != nil {
		return fmt.Errorf("failed to marshal logic tree: %w", err)
	}
	assets, err := json.Marshal(s.Assets)
	if err != nil {
		return fmt.Errorf("failed to marshal assets: %w", err)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`INSERT INTO strategies (id, user_id, name, description, logic_tree, schedule, assets, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		s.ID, s.UserID, s.Name, s.Description, logicTree, s.Schedule, assets, s.Status, now); err != nil {
		return fmt.Errorf("failed to insert strategy: %w", err)
	}

	for _, c := range s.Conditions {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.StrategyID = s.ID
		if _, err := tx.Exec(ctx,
			`INSERT INTO strategy_conditions (id, strategy_id, type, payload, label, enabled, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
			c.ID, c.StrategyID, c.Type, c.Payload, c.Label, c.Enabled, now); err != nil {
			return fmt.Errorf("failed to insert condition: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit strategy: %w", err)
	}
	return nil
}

// UpdateStrategyStatus changes a strategy's lifecycle status.
func (r *StrategyRepository) UpdateStrategyStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE strategies SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
