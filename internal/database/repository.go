package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dex-perp-bot/internal/outcome"
)

// OutcomeArchive writes closed trades to trade_outcomes
type OutcomeArchive struct {
	db *DB
}

// NewOutcomeArchive creates a new archive repository
func NewOutcomeArchive(db *DB) *OutcomeArchive {
	return &OutcomeArchive{db: db}
}

// HealthCheck performs a database health check
func (r *OutcomeArchive) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// TRADE OUTCOMES
// ============================================================================

const upsertOutcomeQuery = `
	INSERT INTO trade_outcomes (
		bot_id, trade_id, symbol, base_symbol, direction, confidence, entry_price,
		exit_price, pnl_percent, pnl_usd, is_win, hold_duration_seconds,
		llm_reasoning, tags, open_time, close_time
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (bot_id, trade_id) DO UPDATE SET
		exit_price = EXCLUDED.exit_price,
		pnl_percent = EXCLUDED.pnl_percent,
		pnl_usd = EXCLUDED.pnl_usd,
		is_win = EXCLUDED.is_win,
		hold_duration_seconds = EXCLUDED.hold_duration_seconds,
		tags = EXCLUDED.tags,
		close_time = EXCLUDED.close_time,
		archived_at = NOW()
`

// ArchiveOutcome upserts a closed trade. Replaying the same trade is harmless.
func (r *OutcomeArchive) ArchiveOutcome(ctx context.Context, botID string, trade *outcome.TradeOutcome) error {
	row, err := NewArchivedOutcome(botID, trade)
	if err != nil {
		return err
	}

	_, err = r.db.Pool.Exec(ctx, upsertOutcomeQuery, row.args()...)
	if err != nil {
		return fmt.Errorf("failed to archive trade %d: %w", row.TradeID, err)
	}
	return nil
}

func (a *ArchivedOutcome) args() []interface{} {
	return []interface{}{
		a.BotID, a.TradeID, a.Symbol, a.BaseSymbol, a.Direction, a.Confidence, a.EntryPrice,
		a.ExitPrice, a.PnLPercent, a.PnLUSD, a.IsWin, a.HoldDurationSeconds,
		a.LLMReasoning, a.Tags, a.OpenTime, a.CloseTime,
	}
}

// RecentOutcomes returns the newest archived trades for a bot, newest first
func (r *OutcomeArchive) RecentOutcomes(ctx context.Context, botID string, limit int) ([]ArchivedOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT bot_id, trade_id, symbol, base_symbol, direction, confidence, entry_price,
		       exit_price, pnl_percent, pnl_usd, is_win, hold_duration_seconds,
		       llm_reasoning, tags, open_time, close_time, archived_at
		FROM trade_outcomes
		WHERE bot_id = $1
		ORDER BY close_time DESC NULLS LAST, trade_id DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	return scanOutcomes(rows)
}

func scanOutcomes(rows pgx.Rows) ([]ArchivedOutcome, error) {
	var out []ArchivedOutcome
	for rows.Next() {
		var o ArchivedOutcome
		if err := rows.Scan(
			&o.BotID, &o.TradeID, &o.Symbol, &o.BaseSymbol, &o.Direction, &o.Confidence, &o.EntryPrice,
			&o.ExitPrice, &o.PnLPercent, &o.PnLUSD, &o.IsWin, &o.HoldDurationSeconds,
			&o.LLMReasoning, &o.Tags, &o.OpenTime, &o.CloseTime, &o.ArchivedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
