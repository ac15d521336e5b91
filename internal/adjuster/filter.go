package adjuster

import (
	"fmt"
	"strings"
	"time"

	"dex-perp-bot/internal/decision"
	"dex-perp-bot/internal/outcome"
)

// FilterType is how a filter modifies matching decisions
type FilterType string

const (
	FilterBlock               FilterType = "block"
	FilterReduce              FilterType = "reduce"
	FilterConfidenceThreshold FilterType = "confidence_threshold"
)

// strictness orders filter types for upgrades; higher replaces lower
func (ft FilterType) strictness() int {
	switch ft {
	case FilterReduce:
		return 1
	case FilterConfidenceThreshold:
		return 2
	case FilterBlock:
		return 3
	default:
		return 0
	}
}

// Valid reports a known filter type
func (ft FilterType) Valid() bool {
	return ft.strictness() > 0
}

// Dimension is what part of a decision a filter keys on
type Dimension string

const (
	DimensionSymbol    Dimension = "symbol"
	DimensionDirection Dimension = "direction"
	DimensionCombo     Dimension = "combo"
)

// Valid reports a known dimension
func (d Dimension) Valid() bool {
	switch d {
	case DimensionSymbol, DimensionDirection, DimensionCombo:
		return true
	}
	return false
}

// DefaultExpiryTrades is how many closed trades a filter stays active
const DefaultExpiryTrades = 20

// Filter is a standing modifier on future decisions. Filters are never
// deleted; expiry and manual overrides only flip Active to false.
type Filter struct {
	ID                 string                  `json:"id"`
	FilterType         FilterType              `json:"filter_type"`
	Dimension          Dimension               `json:"dimension"`
	Key                string                  `json:"key"`
	ActionValue        float64                 `json:"action_value"`
	Reason             string                  `json:"reason"`
	SourceStats        *outcome.DimensionStats `json:"source_stats,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	Active             bool                    `json:"active"`
	TradesSinceCreated int                     `json:"trades_since_created"`
	ExpiresAfterTrades int                     `json:"expires_after_trades"`
	DeactivatedAt      *time.Time              `json:"deactivated_at,omitempty"`
	DeactivatedReason  string                  `json:"deactivated_reason,omitempty"`
}

// Label is "dimension=key"
func (f *Filter) Label() string {
	return fmt.Sprintf("%s=%s", f.Dimension, f.Key)
}

// Matches reports whether the normalized decision falls under this filter.
// Direction and combo filters never match a decision without a direction.
func (f *Filter) Matches(d decision.Decision) bool {
	switch f.Dimension {
	case DimensionSymbol:
		return f.Key == d.BaseSymbol()
	case DimensionDirection:
		dir := d.Direction()
		return dir != decision.DirectionUnknown && f.Key == string(dir)
	case DimensionCombo:
		dir := d.Direction()
		return dir != decision.DirectionUnknown && f.Key == decision.ComboKey(d.Symbol, dir)
	default:
		return false
	}
}

func (f *Filter) clone() Filter {
	out := *f
	if f.SourceStats != nil {
		s := *f.SourceStats
		out.SourceStats = &s
	}
	if f.DeactivatedAt != nil {
		ts := *f.DeactivatedAt
		out.DeactivatedAt = &ts
	}
	return out
}

// normalizeKey upper-cases keys; symbol keys are reduced to the base token
func normalizeKey(dimension Dimension, key string) string {
	if dimension == DimensionSymbol {
		return decision.BaseSymbol(key)
	}
	return strings.ToUpper(strings.TrimSpace(key))
}

// History actions
const (
	HistoryFilterAdded       = "filter_added"
	HistoryFilterUpgraded    = "filter_upgraded"
	HistoryFilterExpired     = "filter_expired"
	HistoryFilterDeactivated = "filter_deactivated"
	HistoryFiltersCleared    = "filters_cleared"
)

// HistoryEntry is one audit record in adjustment_history
type HistoryEntry struct {
	Time     time.Time              `json:"time"`
	Action   string                 `json:"action"`
	FilterID string                 `json:"filter_id,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
}
