// Package decision holds the normalized trading decision that flows from the
// LLM layer through the learned filters to order execution.
package decision

import (
	"fmt"
	"math"
	"strings"
)

// Action is the raw action an LLM decision carries
type Action string

const (
	ActionLong    Action = "LONG"
	ActionShort   Action = "SHORT"
	ActionBuy     Action = "BUY"
	ActionSell    Action = "SELL"
	ActionClose   Action = "CLOSE"
	ActionNothing Action = "NOTHING"
	ActionUnknown Action = "UNKNOWN"
)

// Direction is the side of a position
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionUnknown Direction = "UNKNOWN"
)

// ParseAction converts free-form action text to an Action.
// Empty or unrecognized input yields ActionUnknown.
func ParseAction(s string) Action {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG":
		return ActionLong
	case "SHORT":
		return ActionShort
	case "BUY":
		return ActionBuy
	case "SELL":
		return ActionSell
	case "CLOSE":
		return ActionClose
	case "NOTHING", "HOLD":
		return ActionNothing
	default:
		return ActionUnknown
	}
}

// Direction maps the action to a position side. BUY and LONG open longs,
// SELL and SHORT open shorts, everything else has no direction.
func (a Action) Direction() Direction {
	switch a {
	case ActionLong, ActionBuy:
		return DirectionLong
	case ActionShort, ActionSell:
		return DirectionShort
	default:
		return DirectionUnknown
	}
}

// Opens reports whether the action opens a position
func (a Action) Opens() bool {
	return a.Direction() != DirectionUnknown
}

// NormalizeDirection accepts buy/sell/long/short in any casing.
// Anything else is returned upper-cased as-is so it never matches a filter.
func NormalizeDirection(s string) Direction {
	if d := ParseAction(s).Direction(); d != DirectionUnknown {
		return d
	}
	up := strings.ToUpper(strings.TrimSpace(s))
	if up == "" {
		return DirectionUnknown
	}
	return Direction(up)
}

// BaseSymbol strips the market suffix: "SOL/USDT-P" -> "SOL"
func BaseSymbol(symbol string) string {
	base := strings.TrimSpace(symbol)
	if idx := strings.Index(base, "/"); idx >= 0 {
		base = base[:idx]
	}
	return strings.ToUpper(base)
}

// ComboKey joins a base symbol and direction: "SOL_SHORT"
func ComboKey(symbol string, direction Direction) string {
	return fmt.Sprintf("%s_%s", BaseSymbol(symbol), direction)
}

// Decision is a parsed LLM decision before order submission
type Decision struct {
	Symbol          string   `json:"symbol"`
	Action          Action   `json:"action"`
	Confidence      float64  `json:"confidence"`
	PositionSizeUSD *float64 `json:"position_size_usd,omitempty"`
	Reasoning       string   `json:"reasoning,omitempty"`
}

// Normalize fills neutral values for missing fields and maps BUY/SELL onto
// LONG/SHORT. A NaN or infinite confidence becomes 0 and a non-finite size is
// dropped. It never fails.
func (d Decision) Normalize() Decision {
	out := d.Clone()
	out.Symbol = strings.TrimSpace(out.Symbol)
	if !finite(out.Confidence) {
		out.Confidence = 0
	}
	if out.PositionSizeUSD != nil && !finite(*out.PositionSizeUSD) {
		out.PositionSizeUSD = nil
	}
	out.Action = ParseAction(string(out.Action))
	switch out.Action.Direction() {
	case DirectionLong:
		out.Action = ActionLong
	case DirectionShort:
		out.Action = ActionShort
	}
	return out
}

// Clone returns a deep copy so callers can mutate the size freely
func (d Decision) Clone() Decision {
	out := d
	if d.PositionSizeUSD != nil {
		size := *d.PositionSizeUSD
		out.PositionSizeUSD = &size
	}
	return out
}

// Direction of the decision's action
func (d Decision) Direction() Direction {
	return d.Action.Direction()
}

// BaseSymbol of the decision's symbol
func (d Decision) BaseSymbol() string {
	return BaseSymbol(d.Symbol)
}

// Size returns the position size or zero when absent
func (d Decision) Size() float64 {
	if d.PositionSizeUSD == nil {
		return 0
	}
	return *d.PositionSizeUSD
}

// WithSize returns a copy carrying the given position size
func (d Decision) WithSize(size float64) Decision {
	out := d.Clone()
	out.PositionSizeUSD = &size
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
