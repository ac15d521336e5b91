package outcome

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-perp-bot/internal/decision"
	"dex-perp-bot/internal/storage"
)

func newTestTracker(t *testing.T) (*Tracker, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trade_outcomes.json")
	tr := New(path, zerolog.Nop())
	return tr, path
}

func usd(v float64) *float64 { return &v }

// closeTrade records an entry at entry and an exit at exit
func closeTrade(t *testing.T, tr *Tracker, symbol, dir string, confidence, entry, exit float64, pnl *float64) *TradeOutcome {
	t.Helper()
	id := tr.RecordEntry(symbol, dir, confidence, entry, "", nil)
	out := tr.RecordExit(id, exit, pnl)
	require.NotNil(t, out)
	return out
}

// ============================================================================
// Entry / exit lifecycle
// ============================================================================

func TestRecordEntry_AssignsMonotonicIDs(t *testing.T) {
	tr, _ := newTestTracker(t)

	id1 := tr.RecordEntry("SOL/USDT-P", "buy", 0.7, 100, "breakout", map[string]interface{}{"bot": "a"})
	id2 := tr.RecordEntry("BTC", "short", 0.6, 50000, "", nil)

	assert.Equal(t, int64(1), id1)
	assert.Equal(t, int64(2), id2)

	open := tr.OpenTrades()
	require.Len(t, open, 2)
	assert.Equal(t, decision.DirectionLong, open[0].Direction)
	assert.Equal(t, decision.DirectionShort, open[1].Direction)
	assert.Equal(t, "a", open[0].Tags["bot"])
	assert.Nil(t, open[0].CloseTime)
	assert.Nil(t, open[0].ExitPrice)
	assert.Nil(t, open[0].IsWin)
	assert.Equal(t, StatusOpen, open[0].Status)
}

func TestRecordExit_LongPnL(t *testing.T) {
	tr, _ := newTestTracker(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return start })

	id := tr.RecordEntry("ETH", "LONG", 0.8, 200, "", nil)
	tr.SetClock(func() time.Time { return start.Add(90 * time.Second) })
	out := tr.RecordExit(id, 210, usd(5))

	require.NotNil(t, out)
	assert.InDelta(t, 5.0, *out.PnLPercent, 1e-9)
	assert.True(t, *out.IsWin)
	assert.Equal(t, 5.0, *out.PnLUSD)
	assert.Equal(t, 90.0, *out.HoldDurationSeconds)
	assert.Equal(t, StatusClosed, out.Status)
	assert.Empty(t, tr.OpenTrades())
}

func TestRecordExit_ShortPnLSign(t *testing.T) {
	tr, _ := newTestTracker(t)

	win := closeTrade(t, tr, "SOL", "SHORT", 0.6, 100, 90, nil)
	assert.InDelta(t, 10.0, *win.PnLPercent, 1e-9)
	assert.True(t, *win.IsWin)
	assert.Nil(t, win.PnLUSD)

	loss := closeTrade(t, tr, "SOL", "sell", 0.6, 100, 110, nil)
	assert.InDelta(t, -10.0, *loss.PnLPercent, 1e-9)
	assert.False(t, *loss.IsWin)
}

func TestRecordExit_BreakEvenIsNotAWin(t *testing.T) {
	tr, _ := newTestTracker(t)

	out := closeTrade(t, tr, "BTC", "LONG", 0.9, 100, 100, usd(0))
	assert.Equal(t, 0.0, *out.PnLPercent)
	assert.False(t, *out.IsWin)
}

func TestRecordExit_ClosesAtMostOnce(t *testing.T) {
	tr, _ := newTestTracker(t)

	id := tr.RecordEntry("BTC", "LONG", 0.9, 100, "", nil)
	first := tr.RecordExit(id, 110, usd(10))
	require.NotNil(t, first)

	second := tr.RecordExit(id, 50, usd(-50))
	assert.Nil(t, second)

	stored := tr.Trade(id)
	require.NotNil(t, stored)
	assert.Equal(t, 110.0, *stored.ExitPrice)
	assert.InDelta(t, 10.0, *stored.PnLPercent, 1e-9)
	assert.Equal(t, 10.0, *stored.PnLUSD)
}

func TestRecordExit_UnknownID(t *testing.T) {
	tr, _ := newTestTracker(t)
	assert.Nil(t, tr.RecordExit(42, 100, nil))
}

func TestRecordExit_ZeroEntryPrice(t *testing.T) {
	tr, _ := newTestTracker(t)
	out := closeTrade(t, tr, "BTC", "LONG", 0.5, 0, 100, nil)
	assert.Equal(t, 0.0, *out.PnLPercent)
	assert.False(t, *out.IsWin)
}

func TestRecordExit_NonFiniteInputs(t *testing.T) {
	tr, path := newTestTracker(t)

	sol := tr.RecordEntry("SOL", "LONG", 0.7, 100, "", nil)
	closed := tr.RecordExit(sol, 105, usd(math.NaN()))
	require.NotNil(t, closed)
	assert.Nil(t, closed.PnLUSD)
	assert.InDelta(t, 5.0, *closed.PnLPercent, 1e-9)

	eth := tr.RecordEntry("ETH", "SHORT", 0.7, 100, "", nil)
	assert.Nil(t, tr.RecordExit(eth, math.Inf(1), nil))
	assert.Nil(t, tr.RecordExit(eth, math.NaN(), usd(3)))
	assert.True(t, tr.Trade(eth).IsOpen())

	tr.RecordEntry("BTC", "LONG", 0.7, 100, "", nil)

	reloaded := New(path, zerolog.Nop())
	assert.Equal(t, storage.LoadOK, reloaded.LoadStatus().Status)
	assert.Len(t, reloaded.AllTrades(), 3)
	assert.NotPanics(t, func() {
		reloaded.OverallStats(50)
		reloaded.StatsByDimension(DimensionSymbol, 50)
	})
}

func TestRecordEntry_NonFiniteInputsStoredAsZero(t *testing.T) {
	tr, path := newTestTracker(t)

	id := tr.RecordEntry("SOL", "LONG", math.NaN(), math.Inf(-1), "", map[string]interface{}{
		"atr":    math.NaN(),
		"regime": "trend",
	})

	stored := tr.Trade(id)
	assert.Equal(t, 0.0, stored.Confidence)
	assert.Equal(t, 0.0, stored.EntryPrice)
	assert.NotContains(t, stored.Tags, "atr")
	assert.Equal(t, "trend", stored.Tags["regime"])

	out := tr.RecordExit(id, 100, nil)
	require.NotNil(t, out)
	assert.Equal(t, 0.0, *out.PnLPercent)

	reloaded := New(path, zerolog.Nop())
	assert.Equal(t, storage.LoadOK, reloaded.LoadStatus().Status)
	assert.Len(t, reloaded.AllTrades(), 1)
}

func TestPnLPercent_OverflowIsZero(t *testing.T) {
	assert.Equal(t, 0.0, PnLPercent(decision.DirectionLong, 1e-320, 1e308))
	assert.Equal(t, 0.0, PnLPercent(decision.DirectionShort, 1e-320, 1e308))
}

func TestOpenTradeForSymbol(t *testing.T) {
	tr, _ := newTestTracker(t)

	tr.RecordEntry("SOL/USDT-P", "LONG", 0.6, 100, "", nil)
	id2 := tr.RecordEntry("sol", "SHORT", 0.6, 101, "", nil)
	tr.RecordEntry("BTC", "LONG", 0.6, 100, "", nil)

	found := tr.OpenTradeForSymbol("SOL/USDC")
	require.NotNil(t, found)
	assert.Equal(t, id2, found.ID)

	tr.RecordExit(id2, 100, nil)
	found = tr.OpenTradeForSymbol("SOL")
	require.NotNil(t, found)
	assert.Equal(t, int64(1), found.ID)

	assert.Nil(t, tr.OpenTradeForSymbol("ETH"))
}

func TestReturnedTradesAreCopies(t *testing.T) {
	tr, _ := newTestTracker(t)
	out := closeTrade(t, tr, "BTC", "LONG", 0.9, 100, 110, usd(10))

	*out.PnLUSD = -999
	stored := tr.Trade(out.ID)
	assert.Equal(t, 10.0, *stored.PnLUSD)
}

// ============================================================================
// Persistence
// ============================================================================

func TestPersistenceRoundTrip(t *testing.T) {
	tr, path := newTestTracker(t)
	assert.Equal(t, storage.LoadFresh, tr.LoadStatus().Status)

	closeTrade(t, tr, "BTC", "LONG", 0.9, 100, 110, usd(10))
	tr.RecordEntry("SOL", "SHORT", 0.5, 20, "", nil)
	tr.MarkReviewComplete()

	reloaded := New(path, zerolog.Nop())
	assert.Equal(t, storage.LoadOK, reloaded.LoadStatus().Status)
	assert.Len(t, reloaded.AllTrades(), 2)
	assert.Len(t, reloaded.OpenTrades(), 1)
	assert.Equal(t, 1, reloaded.TradeCount())
	assert.Equal(t, 0, reloaded.TradesSinceLastReview())
	assert.NotNil(t, reloaded.LastReviewTime())

	// ids continue after reload
	assert.Equal(t, int64(3), reloaded.RecordEntry("ETH", "LONG", 0.5, 1, "", nil))
}

func TestCorruptLedgerIsResetNotFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trade_outcomes.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"trades": [`), 0644))

	tr := New(path, zerolog.Nop())
	res := tr.LoadStatus()

	assert.Equal(t, storage.LoadReset, res.Status)
	assert.Error(t, res.Err)
	assert.NotEmpty(t, res.QuarantinePath)
	assert.Empty(t, tr.AllTrades())
	assert.Equal(t, int64(1), tr.RecordEntry("BTC", "LONG", 0.5, 1, "", nil))

	// a fresh, valid ledger replaced the corrupt one
	again := New(path, zerolog.Nop())
	assert.Equal(t, storage.LoadOK, again.LoadStatus().Status)
}

func TestLedgerMissingKeysIsReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_outcomes.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"trades": [], "next_id": 1}`), 0644))

	tr := New(path, zerolog.Nop())
	assert.Equal(t, storage.LoadReset, tr.LoadStatus().Status)
}

func TestNewReadOnly(t *testing.T) {
	tr, path := newTestTracker(t)
	closeTrade(t, tr, "BTC", "LONG", 0.9, 100, 110, nil)

	ro, err := NewReadOnly(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, ro.TradeCount())

	_, err = NewReadOnly(filepath.Join(t.TempDir(), "missing.json"), zerolog.Nop())
	assert.Error(t, err)
}

// ============================================================================
// Review bookkeeping
// ============================================================================

func TestTradesSinceLastReview(t *testing.T) {
	tr, _ := newTestTracker(t)

	for i := 0; i < 3; i++ {
		closeTrade(t, tr, "BTC", "LONG", 0.9, 100, 110, nil)
	}
	tr.RecordEntry("BTC", "LONG", 0.9, 100, "", nil)

	assert.Equal(t, 3, tr.TradeCount())
	assert.Equal(t, 3, tr.TradesSinceLastReview())

	tr.MarkReviewComplete()
	assert.Equal(t, 0, tr.TradesSinceLastReview())

	closeTrade(t, tr, "BTC", "LONG", 0.9, 100, 110, nil)
	assert.Equal(t, 1, tr.TradesSinceLastReview())
}
