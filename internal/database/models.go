package database

import (
	"encoding/json"
	"fmt"
	"time"

	"dex-perp-bot/internal/outcome"
)

// ArchivedOutcome is one row of trade_outcomes
type ArchivedOutcome struct {
	BotID               string     `json:"bot_id"`
	TradeID             int64      `json:"trade_id"`
	Symbol              string     `json:"symbol"`
	BaseSymbol          string     `json:"base_symbol"`
	Direction           string     `json:"direction"`
	Confidence          float64    `json:"confidence"`
	EntryPrice          float64    `json:"entry_price"`
	ExitPrice           *float64   `json:"exit_price,omitempty"`
	PnLPercent          *float64   `json:"pnl_percent,omitempty"`
	PnLUSD              *float64   `json:"pnl_usd,omitempty"`
	IsWin               *bool      `json:"is_win,omitempty"`
	HoldDurationSeconds *float64   `json:"hold_duration_seconds,omitempty"`
	LLMReasoning        string     `json:"llm_reasoning"`
	Tags                []byte     `json:"tags"`
	OpenTime            time.Time  `json:"open_time"`
	CloseTime           *time.Time `json:"close_time,omitempty"`
	ArchivedAt          time.Time  `json:"archived_at"`
}

// NewArchivedOutcome converts a ledger trade into an archive row
func NewArchivedOutcome(botID string, trade *outcome.TradeOutcome) (*ArchivedOutcome, error) {
	if trade == nil {
		return nil, fmt.Errorf("nil trade")
	}

	tags := trade.Tags
	if tags == nil {
		tags = map[string]interface{}{}
	}
	tagJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags for trade %d: %w", trade.ID, err)
	}

	return &ArchivedOutcome{
		BotID:               botID,
		TradeID:             trade.ID,
		Symbol:              trade.Symbol,
		BaseSymbol:          trade.BaseSymbol(),
		Direction:           string(trade.Direction),
		Confidence:          trade.Confidence,
		EntryPrice:          trade.EntryPrice,
		ExitPrice:           trade.ExitPrice,
		PnLPercent:          trade.PnLPercent,
		PnLUSD:              trade.PnLUSD,
		IsWin:               trade.IsWin,
		HoldDurationSeconds: trade.HoldDurationSeconds,
		LLMReasoning:        trade.LLMReasoning,
		Tags:                tagJSON,
		OpenTime:            trade.OpenTime,
		CloseTime:           trade.CloseTime,
	}, nil
}
