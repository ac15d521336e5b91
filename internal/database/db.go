// Package database archives closed trade outcomes to PostgreSQL for analysis
// across bots and beyond the rolling JSON ledger.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"dex-perp-bot/config"
	"dex-perp-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	db := &DB{Pool: pool, logger: logging.WithComponent(logger, "Database")}
	db.logger.Info().Str("database", cfg.DBName).Str("host", cfg.Host).Msg("Connected to PostgreSQL")
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS trade_outcomes (
		bot_id VARCHAR(64) NOT NULL,
		trade_id BIGINT NOT NULL,
		symbol VARCHAR(32) NOT NULL,
		base_symbol VARCHAR(16) NOT NULL,
		direction VARCHAR(8) NOT NULL,
		confidence DECIMAL(6, 4) NOT NULL,
		entry_price DECIMAL(24, 10) NOT NULL,
		exit_price DECIMAL(24, 10),
		pnl_percent DECIMAL(12, 4),
		pnl_usd DECIMAL(20, 8),
		is_win BOOLEAN,
		hold_duration_seconds DOUBLE PRECISION,
		llm_reasoning TEXT,
		tags JSONB NOT NULL DEFAULT '{}'::jsonb,
		open_time TIMESTAMPTZ NOT NULL,
		close_time TIMESTAMPTZ,
		archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (bot_id, trade_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_outcomes_close_time ON trade_outcomes(bot_id, close_time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_outcomes_combo ON trade_outcomes(base_symbol, direction)`,
}

// RunMigrations creates the archive schema
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("Running database migrations")

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Int("count", len(migrations)).Msg("Database migrations completed")
	return nil
}
