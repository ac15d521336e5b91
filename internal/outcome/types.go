package outcome

import (
	"math"
	"time"

	"dex-perp-bot/internal/decision"
)

// Trade status constants
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Dimension names a grouping view over closed trades
type Dimension string

const (
	DimensionSymbol            Dimension = "symbol"
	DimensionDirection         Dimension = "direction"
	DimensionConfidenceBracket Dimension = "confidence_bracket"
	DimensionCombo             Dimension = "combo"
)

// DefaultWindow is the rolling window used when callers pass n <= 0 through
// the orchestrator. The tracker itself treats n <= 0 as "every closed trade".
const DefaultWindow = 50

// MinTradesForStats is the closed-trade floor below which overall stats are
// flagged as insufficient
const MinTradesForStats = 10

// TradeOutcome is one trade attempt from entry fill to close.
// The exit fields (CloseTime, ExitPrice, PnLPercent, IsWin, HoldDurationSeconds)
// are all nil while open and all set once closed. PnLUSD is optional even then.
type TradeOutcome struct {
	ID                  int64                  `json:"id"`
	OpenTime            time.Time              `json:"open_time"`
	CloseTime           *time.Time             `json:"close_time"`
	Symbol              string                 `json:"symbol"`
	Direction           decision.Direction     `json:"direction"`
	Confidence          float64                `json:"confidence"`
	EntryPrice          float64                `json:"entry_price"`
	ExitPrice           *float64               `json:"exit_price"`
	PnLPercent          *float64               `json:"pnl_percent"`
	PnLUSD              *float64               `json:"pnl_usd"`
	IsWin               *bool                  `json:"is_win"`
	LLMReasoning        string                 `json:"llm_reasoning"`
	HoldDurationSeconds *float64               `json:"hold_duration_seconds"`
	Status              string                 `json:"status"`
	Tags                map[string]interface{} `json:"tags,omitempty"`
}

// IsOpen reports whether the trade still awaits its exit
func (t *TradeOutcome) IsOpen() bool {
	return t.Status == StatusOpen
}

// BaseSymbol is the grouping key for symbol stats
func (t *TradeOutcome) BaseSymbol() string {
	return decision.BaseSymbol(t.Symbol)
}

// ComboKey is the grouping key for combo stats ("SOL_SHORT")
func (t *TradeOutcome) ComboKey() string {
	return decision.ComboKey(t.Symbol, t.Direction)
}

// Won reports a closed winning trade
func (t *TradeOutcome) Won() bool {
	return t.IsWin != nil && *t.IsWin
}

func (t *TradeOutcome) pnlPercent() float64 {
	if t.PnLPercent == nil {
		return 0
	}
	return *t.PnLPercent
}

func (t *TradeOutcome) pnlUSD() float64 {
	if t.PnLUSD == nil {
		return 0
	}
	return *t.PnLUSD
}

// Clone returns a deep copy
func (t *TradeOutcome) Clone() *TradeOutcome {
	out := *t
	if t.CloseTime != nil {
		ct := *t.CloseTime
		out.CloseTime = &ct
	}
	out.ExitPrice = cloneFloat(t.ExitPrice)
	out.PnLPercent = cloneFloat(t.PnLPercent)
	out.PnLUSD = cloneFloat(t.PnLUSD)
	out.HoldDurationSeconds = cloneFloat(t.HoldDurationSeconds)
	if t.IsWin != nil {
		w := *t.IsWin
		out.IsWin = &w
	}
	if t.Tags != nil {
		out.Tags = make(map[string]interface{}, len(t.Tags))
		for k, v := range t.Tags {
			out.Tags[k] = v
		}
	}
	return &out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// DimensionStats aggregates the closed trades sharing one dimension value
type DimensionStats struct {
	Count           int     `json:"count"`
	Wins            int     `json:"wins"`
	WinRate         float64 `json:"win_rate"`
	AvgPnLPercent   float64 `json:"avg_pnl_percent"`
	AvgPnLUSD       float64 `json:"avg_pnl_usd"`
	TotalPnLPercent float64 `json:"total_pnl_percent"`
	TotalPnLUSD     float64 `json:"total_pnl_usd"`
}

// OverallStats aggregates the whole rolling window
type OverallStats struct {
	Total           int     `json:"total"`
	Wins            int     `json:"wins"`
	WinRate         float64 `json:"win_rate"`
	TotalPnLPercent float64 `json:"total_pnl_percent"`
	TotalPnLUSD     float64 `json:"total_pnl_usd"`
	AvgPnLPercent   float64 `json:"avg_pnl_percent"`
	AvgPnLUSD       float64 `json:"avg_pnl_usd"`
	PnLStdPercent   float64 `json:"pnl_std_percent"`
	OpenTrades      int     `json:"open_trades"`
	SufficientData  bool    `json:"sufficient_data"`
}

// Confidence bracket labels. The last bracket is closed at 1.0.
const (
	BracketVeryLow  = "0.00-0.50"
	BracketLow      = "0.50-0.70"
	BracketMedium   = "0.70-0.85"
	BracketHigh     = "0.85-0.95"
	BracketVeryHigh = "0.95-1.00"
)

// ConfidenceBrackets lists the bracket labels in ascending order
var ConfidenceBrackets = []string{BracketVeryLow, BracketLow, BracketMedium, BracketHigh, BracketVeryHigh}

// ConfidenceBracket maps a confidence score to its bracket label.
// Scores below 0 land in the lowest bracket, above 1 in the highest.
func ConfidenceBracket(confidence float64) string {
	switch {
	case confidence < 0.5:
		return BracketVeryLow
	case confidence < 0.7:
		return BracketLow
	case confidence < 0.85:
		return BracketMedium
	case confidence < 0.95:
		return BracketHigh
	default:
		return BracketVeryHigh
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteTag(v interface{}) bool {
	switch n := v.(type) {
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	}
	return true
}
