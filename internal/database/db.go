package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB creates a new database connection from a postgres:// DSN
func NewDB(dsn string, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.With().Str("component", "database").Logger()
	log.Info().Str("database", poolConfig.ConnConfig.Database).Msg("connected to PostgreSQL")

	return &DB{Pool: pool, logger: log}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// Ping checks database connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("running database migrations")

	migrations := []string{
		// Create strategies table
		`CREATE TABLE IF NOT EXISTS strategies (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL,
			name VARCHAR(200) NOT NULL,
			description TEXT,
			logic_tree JSONB NOT NULL,
			schedule VARCHAR(20) NOT NULL DEFAULT '1m',
			assets JSONB NOT NULL DEFAULT '[]',
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			last_run_at TIMESTAMPTZ,
			last_triggered_at TIMESTAMPTZ,
			trigger_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_strategies_user_id ON strategies(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_strategies_status ON strategies(status)`,

		// Create strategy_conditions table
		`CREATE TABLE IF NOT EXISTS strategy_conditions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			strategy_id UUID NOT NULL REFERENCES strategies(id) ON DELETE CASCADE,
			type VARCHAR(40) NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}',
			label VARCHAR(200),
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_conditions_strategy_id ON strategy_conditions(strategy_id)`,

		// Create strategy_trigger_logs table (append-only)
		`CREATE TABLE IF NOT EXISTS strategy_trigger_logs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			strategy_id UUID NOT NULL REFERENCES strategies(id) ON DELETE CASCADE,
			triggered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			snapshot JSONB NOT NULL DEFAULT '{}',
			message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trigger_logs_strategy_id ON strategy_trigger_logs(strategy_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trigger_logs_triggered_at ON strategy_trigger_logs(triggered_at)`,

		// Keep updated_at current on writes
		`CREATE OR REPLACE FUNCTION set_updated_at()
		RETURNS TRIGGER AS $$
		BEGIN
			NEW.updated_at = NOW();
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS trg_strategies_updated_at ON strategies`,
		`CREATE TRIGGER trg_strategies_updated_at
			BEFORE UPDATE ON strategies
			FOR EACH ROW EXECUTE FUNCTION set_updated_at()`,
		`DROP TRIGGER IF EXISTS trg_strategy_conditions_updated_at ON strategy_conditions`,
		`CREATE TRIGGER trg_strategy_conditions_updated_at
			BEFORE UPDATE ON strategy_conditions
			FOR EACH ROW EXECUTE FUNCTION set_updated_at()`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Int("count", len(migrations)).Msg("migrations completed")
	return nil
}
