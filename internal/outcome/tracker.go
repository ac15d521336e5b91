// Package outcome keeps the durable ledger of trade outcomes and computes the
// rolling statistics the performance analyzer classifies.
package outcome

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dex-perp-bot/internal/decision"
	"dex-perp-bot/internal/logging"
	"dex-perp-bot/internal/storage"
)

const ledgerVersion = "1.0"

var requiredKeys = []string{"metadata", "trades", "next_id", "last_review_trade_count"}

// Metadata describes the ledger document
type Metadata struct {
	Created     time.Time `json:"created"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
}

type ledger struct {
	Metadata             Metadata        `json:"metadata"`
	Trades               []*TradeOutcome `json:"trades"`
	NextID               int64           `json:"next_id"`
	LastReviewTradeCount int             `json:"last_review_trade_count"`
	LastReviewTime       *time.Time      `json:"last_review_time,omitempty"`
}

// Tracker owns the outcome ledger file. Every mutation is saved before the
// call returns. Only one Tracker per file may exist across all processes.
type Tracker struct {
	mu       sync.Mutex
	path     string
	readOnly bool
	logger   zerolog.Logger
	now      func() time.Time

	ledger ledger
	load   storage.LoadResult
}

// New loads (or creates) the ledger at path. A corrupt ledger is quarantined
// and replaced by an empty one; check LoadStatus to tell that apart from a
// first run.
func New(path string, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		path:   path,
		logger: logging.WithComponent(logger, "OutcomeTracker"),
		now:    time.Now,
	}

	t.load = storage.LoadJSON(path, &t.ledger, requiredKeys...)
	switch t.load.Status {
	case storage.LoadOK:
		t.repairLocked()
		t.logger.Info().
			Str("path", path).
			Int("trades", len(t.ledger.Trades)).
			Msg("Loaded trade outcome ledger")
	case storage.LoadReset:
		t.ledger = t.emptyLedger()
		t.logger.Error().
			Err(t.load.Err).
			Str("path", path).
			Str("quarantined_to", t.load.QuarantinePath).
			Msg("Trade outcome ledger was corrupt; starting from an empty ledger, previous trades are lost")
		t.saveLocked()
	default:
		t.ledger = t.emptyLedger()
		t.logger.Info().Str("path", path).Msg("Created new trade outcome ledger")
		t.saveLocked()
	}
	return t
}

// NewReadOnly opens an existing ledger for inspection. Nothing is ever written
// back, and a corrupt file is reported instead of being reset.
func NewReadOnly(path string, logger zerolog.Logger) (*Tracker, error) {
	t := &Tracker{
		path:     path,
		readOnly: true,
		logger:   logging.WithComponent(logger, "OutcomeTracker"),
		now:      time.Now,
	}
	if err := storage.DecodeJSON(path, &t.ledger, requiredKeys...); err != nil {
		return nil, fmt.Errorf("failed to open outcome ledger %s: %w", path, err)
	}
	t.repairLocked()
	t.load = storage.LoadResult{Status: storage.LoadOK}
	return t, nil
}

// SetClock replaces the wall clock (tests)
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// LoadStatus reports how the ledger was obtained at construction
func (t *Tracker) LoadStatus() storage.LoadResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load
}

// Path of the ledger file
func (t *Tracker) Path() string {
	return t.path
}

func (t *Tracker) emptyLedger() ledger {
	return ledger{
		Metadata: Metadata{
			Created:     t.now().UTC(),
			Version:     ledgerVersion,
			Description: "Trade outcomes for the self-improving LLM strategy",
		},
		Trades: []*TradeOutcome{},
		NextID: 1,
	}
}

// repairLocked keeps ids monotonic even if next_id was hand-edited
func (t *Tracker) repairLocked() {
	if t.ledger.Trades == nil {
		t.ledger.Trades = []*TradeOutcome{}
	}
	var maxID int64
	for _, tr := range t.ledger.Trades {
		if tr.ID > maxID {
			maxID = tr.ID
		}
	}
	if t.ledger.NextID <= maxID {
		t.ledger.NextID = maxID + 1
	}
}

func (t *Tracker) saveLocked() {
	if t.readOnly {
		return
	}
	if err := storage.SaveJSON(t.path, &t.ledger); err != nil {
		t.logger.Error().Err(err).Str("path", t.path).Msg("Failed to save trade outcome ledger; in-memory state kept")
	}
}

// ====== Recording ======

// RecordEntry appends an open trade and returns its id. It never fails;
// the direction is normalized to LONG/SHORT when recognizable. NaN or
// infinite numbers are stored as 0 and non-finite tag values are dropped,
// so the ledger always stays encodable.
func (t *Tracker) RecordEntry(symbol, direction string, confidence, entryPrice float64, reasoning string, tags map[string]interface{}) int64 {
	if !finite(confidence) {
		t.logger.Warn().Str("symbol", symbol).Msg("Non-finite confidence; recorded as 0")
		confidence = 0
	}
	if !finite(entryPrice) {
		t.logger.Warn().Str("symbol", symbol).Msg("Non-finite entry price; recorded as 0")
		entryPrice = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	trade := &TradeOutcome{
		ID:           t.ledger.NextID,
		OpenTime:     t.now().UTC(),
		Symbol:       strings.TrimSpace(symbol),
		Direction:    decision.NormalizeDirection(direction),
		Confidence:   confidence,
		EntryPrice:   entryPrice,
		LLMReasoning: reasoning,
		Status:       StatusOpen,
	}
	if len(tags) > 0 {
		trade.Tags = make(map[string]interface{}, len(tags))
		for k, v := range tags {
			if !finiteTag(v) {
				t.logger.Warn().Str("symbol", symbol).Str("tag", k).Msg("Dropping non-finite tag value")
				continue
			}
			trade.Tags[k] = v
		}
	}

	t.ledger.NextID++
	t.ledger.Trades = append(t.ledger.Trades, trade)
	t.saveLocked()

	log := logging.TradeContext(t.logger, trade.ID, trade.Symbol, string(trade.Direction))
	log.Info().
		Float64("confidence", confidence).
		Float64("entry_price", entryPrice).
		Msg("Recorded trade entry")

	return trade.ID
}

// RecordExit closes the trade and returns a copy of it. Unknown or already
// closed ids and non-finite exit prices are logged and yield nil; the stored
// trade is left unchanged. A non-finite pnlUSD is treated as absent.
func (t *Tracker) RecordExit(tradeID int64, exitPrice float64, pnlUSD *float64) *TradeOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	trade := t.findLocked(tradeID)
	if trade == nil {
		t.logger.Error().Int64("trade_id", tradeID).Msg("Cannot record exit: trade not found")
		return nil
	}
	log := logging.TradeContext(t.logger, trade.ID, trade.Symbol, string(trade.Direction))
	if !trade.IsOpen() {
		log.Error().Msg("Cannot record exit: trade already closed")
		return nil
	}
	if !finite(exitPrice) {
		log.Error().Float64("exit_price", exitPrice).Msg("Cannot record exit: exit price is not a finite number")
		return nil
	}
	if pnlUSD != nil && !finite(*pnlUSD) {
		log.Warn().Msg("Non-finite pnl_usd; recorded as absent")
		pnlUSD = nil
	}

	pct := PnLPercent(trade.Direction, trade.EntryPrice, exitPrice)
	if trade.EntryPrice <= 0 {
		log.Warn().Float64("entry_price", trade.EntryPrice).Msg("Non-positive entry price; pnl_percent recorded as 0")
	}
	win := pct > 0
	closeTime := t.now().UTC()
	hold := closeTime.Sub(trade.OpenTime).Seconds()
	exit := exitPrice

	trade.CloseTime = &closeTime
	trade.ExitPrice = &exit
	trade.PnLPercent = &pct
	trade.PnLUSD = cloneFloat(pnlUSD)
	trade.IsWin = &win
	trade.HoldDurationSeconds = &hold
	trade.Status = StatusClosed
	t.saveLocked()

	ev := log.Info().
		Float64("exit_price", exitPrice).
		Float64("pnl_percent", pct).
		Bool("is_win", win).
		Float64("hold_seconds", hold)
	if pnlUSD != nil {
		ev = ev.Float64("pnl_usd", *pnlUSD)
	}
	ev.Msg("Recorded trade exit")

	return trade.Clone()
}

// PnLPercent is (exit-entry)/entry*100 for longs and the negation for shorts.
// A non-positive entry price or a non-finite result yields 0.
func PnLPercent(direction decision.Direction, entry, exit float64) float64 {
	if entry <= 0 {
		return 0
	}
	pct := (exit - entry) / entry * 100
	if !finite(pct) {
		return 0
	}
	if direction == decision.DirectionShort {
		pct = -pct
	}
	return pct
}

func (t *Tracker) findLocked(id int64) *TradeOutcome {
	for _, tr := range t.ledger.Trades {
		if tr.ID == id {
			return tr
		}
	}
	return nil
}

// ====== Queries ======

// OpenTrades returns copies of every open trade in insertion order
func (t *Tracker) OpenTrades() []*TradeOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	var open []*TradeOutcome
	for _, tr := range t.ledger.Trades {
		if tr.IsOpen() {
			open = append(open, tr.Clone())
		}
	}
	return open
}

// OpenTradeForSymbol returns the most recent open trade on the symbol's base
// token, or nil. Callers that keep one open trade per symbol use it instead
// of tracking ids themselves.
func (t *Tracker) OpenTradeForSymbol(symbol string) *TradeOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	base := decision.BaseSymbol(symbol)
	for i := len(t.ledger.Trades) - 1; i >= 0; i-- {
		tr := t.ledger.Trades[i]
		if tr.IsOpen() && tr.BaseSymbol() == base {
			return tr.Clone()
		}
	}
	return nil
}

// Trade returns a copy of one trade, or nil
func (t *Tracker) Trade(id int64) *TradeOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tr := t.findLocked(id); tr != nil {
		return tr.Clone()
	}
	return nil
}

// ClosedTrades returns copies of the last n closed trades (all when n <= 0)
func (t *Tracker) ClosedTrades(n int) []*TradeOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.closedWindowLocked(n)
	out := make([]*TradeOutcome, len(window))
	for i, tr := range window {
		out[i] = tr.Clone()
	}
	return out
}

// AllTrades returns copies of every trade, open and closed
func (t *Tracker) AllTrades() []*TradeOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*TradeOutcome, len(t.ledger.Trades))
	for i, tr := range t.ledger.Trades {
		out[i] = tr.Clone()
	}
	return out
}

// closedWindowLocked is the last n closed trades in insertion order.
// Truncation happens before any grouping.
func (t *Tracker) closedWindowLocked(n int) []*TradeOutcome {
	var closed []*TradeOutcome
	for _, tr := range t.ledger.Trades {
		if tr.Status == StatusClosed {
			closed = append(closed, tr)
		}
	}
	if n > 0 && len(closed) > n {
		closed = closed[len(closed)-n:]
	}
	return closed
}

// StatsByDimension groups the last n closed trades by symbol (base token),
// direction, confidence bracket or combo. Unknown dimensions yield an empty map.
func (t *Tracker) StatsByDimension(dimension Dimension, n int) map[string]DimensionStats {
	key, ok := keyFor(dimension)
	if !ok {
		t.logger.Warn().Str("dimension", string(dimension)).Msg("Unknown stats dimension")
		return map[string]DimensionStats{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return groupBy(t.closedWindowLocked(n), key)
}

// ComboStats groups the last n closed trades by "BASE_DIRECTION"
func (t *Tracker) ComboStats(n int) map[string]DimensionStats {
	return t.StatsByDimension(DimensionCombo, n)
}

// OverallStats aggregates the last n closed trades
func (t *Tracker) OverallStats(n int) OverallStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	acc := &accumulator{}
	for _, tr := range t.closedWindowLocked(n) {
		acc.add(tr)
	}
	stats := acc.overallStats()
	for _, tr := range t.ledger.Trades {
		if tr.IsOpen() {
			stats.OpenTrades++
		}
	}
	return stats
}

// ====== Review bookkeeping ======

// TradeCount is the number of closed trades in the ledger
func (t *Tracker) TradeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closedCountLocked()
}

func (t *Tracker) closedCountLocked() int {
	count := 0
	for _, tr := range t.ledger.Trades {
		if tr.Status == StatusClosed {
			count++
		}
	}
	return count
}

// TradesSinceLastReview counts closed trades after the last review baseline
func (t *Tracker) TradesSinceLastReview() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	since := t.closedCountLocked() - t.ledger.LastReviewTradeCount
	if since < 0 {
		return 0
	}
	return since
}

// MarkReviewComplete snapshots the closed-trade count as the new baseline
func (t *Tracker) MarkReviewComplete() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	t.ledger.LastReviewTradeCount = t.closedCountLocked()
	t.ledger.LastReviewTime = &now
	t.saveLocked()

	t.logger.Debug().Int("baseline", t.ledger.LastReviewTradeCount).Msg("Review baseline updated")
}

// LastReviewTime is nil until the first completed review
func (t *Tracker) LastReviewTime() *time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ledger.LastReviewTime == nil {
		return nil
	}
	ts := *t.ledger.LastReviewTime
	return &ts
}
