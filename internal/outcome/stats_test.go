package outcome

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfidenceBracket(t *testing.T) {
	testCases := []struct {
		confidence float64
		want       string
	}{
		{0, BracketVeryLow},
		{0.4999, BracketVeryLow},
		{0.5, BracketLow},
		{0.6999, BracketLow},
		{0.7, BracketMedium},
		{0.85, BracketHigh},
		{0.9499, BracketHigh},
		{0.95, BracketVeryHigh},
		{1.0, BracketVeryHigh},
		{-0.1, BracketVeryLow},
		{1.2, BracketVeryHigh},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, ConfidenceBracket(tc.confidence), "confidence %v", tc.confidence)
	}
}

func TestStatsByDimension_Symbol(t *testing.T) {
	tr, _ := newTestTracker(t)

	closeTrade(t, tr, "SOL/USDT-P", "LONG", 0.6, 100, 110, usd(10))
	closeTrade(t, tr, "sol", "SHORT", 0.6, 100, 110, usd(-10))
	closeTrade(t, tr, "BTC/USDT-P", "LONG", 0.6, 100, 95, nil)
	tr.RecordEntry("SOL", "LONG", 0.6, 100, "", nil) // open trades never count

	stats := tr.StatsByDimension(DimensionSymbol, 50)
	require.Len(t, stats, 2)

	sol := stats["SOL"]
	assert.Equal(t, 2, sol.Count)
	assert.Equal(t, 1, sol.Wins)
	assert.Equal(t, 0.5, sol.WinRate)
	assert.InDelta(t, 0.0, sol.TotalPnLPercent, 1e-9)
	assert.InDelta(t, 0.0, sol.TotalPnLUSD, 1e-9)

	btc := stats["BTC"]
	assert.Equal(t, 1, btc.Count)
	assert.Equal(t, 0.0, btc.WinRate)
	assert.InDelta(t, -5.0, btc.AvgPnLPercent, 1e-9)
	assert.Equal(t, 0.0, btc.TotalPnLUSD)
}

func TestStatsByDimension_AvgUSDCountsMissingAsZero(t *testing.T) {
	tr, _ := newTestTracker(t)
	closeTrade(t, tr, "ETH", "LONG", 0.6, 100, 110, usd(10))
	closeTrade(t, tr, "ETH", "LONG", 0.6, 100, 110, nil)

	eth := tr.StatsByDimension(DimensionSymbol, 50)["ETH"]
	assert.InDelta(t, 5.0, eth.AvgPnLUSD, 1e-9)
	assert.InDelta(t, 10.0, eth.TotalPnLUSD, 1e-9)
}

func TestStatsByDimension_TruncateThenGroup(t *testing.T) {
	tr, _ := newTestTracker(t)

	// three old BTC trades fall out of a window of 2
	for i := 0; i < 3; i++ {
		closeTrade(t, tr, "BTC", "LONG", 0.6, 100, 110, nil)
	}
	closeTrade(t, tr, "SOL", "SHORT", 0.6, 100, 110, nil)
	closeTrade(t, tr, "BTC", "LONG", 0.6, 100, 90, nil)

	stats := tr.StatsByDimension(DimensionSymbol, 2)
	assert.Equal(t, 1, stats["SOL"].Count)
	assert.Equal(t, 1, stats["BTC"].Count)
	assert.Equal(t, 0, stats["BTC"].Wins)

	// n <= 0 means every closed trade
	assert.Equal(t, 4, tr.StatsByDimension(DimensionSymbol, 0)["BTC"].Count)
}

func TestStatsByDimension_DirectionBracketCombo(t *testing.T) {
	tr, _ := newTestTracker(t)

	closeTrade(t, tr, "SOL/USDT-P", "sell", 0.96, 100, 90, nil)
	closeTrade(t, tr, "SOL/USDT-P", "short", 1.0, 100, 110, nil)
	closeTrade(t, tr, "BTC", "buy", 0.72, 100, 110, nil)

	dirs := tr.StatsByDimension(DimensionDirection, 50)
	assert.Equal(t, 2, dirs["SHORT"].Count)
	assert.Equal(t, 1, dirs["LONG"].Count)

	brackets := tr.StatsByDimension(DimensionConfidenceBracket, 50)
	assert.Equal(t, 2, brackets[BracketVeryHigh].Count)
	assert.Equal(t, 1, brackets[BracketMedium].Count)

	combos := tr.ComboStats(50)
	assert.Equal(t, 2, combos["SOL_SHORT"].Count)
	assert.Equal(t, 0.5, combos["SOL_SHORT"].WinRate)
	assert.Equal(t, 1, combos["BTC_LONG"].Count)

	assert.Empty(t, tr.StatsByDimension(Dimension("weekday"), 50))
}

func TestOverallStats(t *testing.T) {
	tr, _ := newTestTracker(t)

	empty := tr.OverallStats(50)
	assert.Equal(t, 0, empty.Total)
	assert.False(t, empty.SufficientData)
	assert.Equal(t, 0.0, empty.WinRate)

	for i := 0; i < 9; i++ {
		closeTrade(t, tr, "BTC", "LONG", 0.6, 100, 110, usd(1))
	}
	tr.RecordEntry("BTC", "LONG", 0.6, 100, "", nil)

	nine := tr.OverallStats(50)
	assert.Equal(t, 9, nine.Total)
	assert.False(t, nine.SufficientData)
	assert.Equal(t, 1, nine.OpenTrades)
	assert.Equal(t, 0.0, nine.PnLStdPercent)

	closeTrade(t, tr, "BTC", "LONG", 0.6, 100, 90, usd(-9))
	ten := tr.OverallStats(50)
	assert.Equal(t, 10, ten.Total)
	assert.True(t, ten.SufficientData)
	assert.Equal(t, 9, ten.Wins)
	assert.InDelta(t, 0.9, ten.WinRate, 1e-9)
	assert.InDelta(t, 80.0, ten.TotalPnLPercent, 1e-9)
	assert.InDelta(t, 8.0, ten.AvgPnLPercent, 1e-9)
	assert.InDelta(t, 0.0, ten.TotalPnLUSD, 1e-9)
	assert.Greater(t, ten.PnLStdPercent, 0.0)

	// a window smaller than the floor is never sufficient
	assert.False(t, tr.OverallStats(5).SufficientData)
}

func TestAccumulator_SkipsNonFiniteValues(t *testing.T) {
	nan, inf, win := math.NaN(), math.Inf(1), true
	pct := 4.0

	var a accumulator
	require.NotPanics(t, func() {
		a.add(&TradeOutcome{PnLPercent: &nan, PnLUSD: &inf})
		a.add(&TradeOutcome{PnLPercent: &pct, IsWin: &win})
	})

	st := a.dimensionStats()
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 1, st.Wins)
	assert.InDelta(t, 4.0, st.TotalPnLPercent, 1e-9)
	assert.InDelta(t, 2.0, st.AvgPnLPercent, 1e-9)
	assert.Equal(t, 0.0, st.TotalPnLUSD)
}
