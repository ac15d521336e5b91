package outcome

import (
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// accumulator sums pnl in decimal so long windows of small percentages do not
// drift before they are compared against the loss thresholds
type accumulator struct {
	count    int
	wins     int
	totalPct decimal.Decimal
	totalUSD decimal.Decimal
	pcts     []float64
}

func (a *accumulator) add(t *TradeOutcome) {
	a.count++
	if t.Won() {
		a.wins++
	}
	// non-finite values cannot be summed in decimal; they count as zero
	pct := t.pnlPercent()
	if !finite(pct) {
		pct = 0
	}
	usd := t.pnlUSD()
	if !finite(usd) {
		usd = 0
	}
	a.totalPct = a.totalPct.Add(decimal.NewFromFloat(pct))
	// missing pnl_usd counts as zero and still counts toward the average
	a.totalUSD = a.totalUSD.Add(decimal.NewFromFloat(usd))
	a.pcts = append(a.pcts, pct)
}

func (a *accumulator) winRate() float64 {
	if a.count == 0 {
		return 0
	}
	return float64(a.wins) / float64(a.count)
}

func (a *accumulator) avg(total decimal.Decimal) float64 {
	if a.count == 0 {
		return 0
	}
	return total.Div(decimal.NewFromInt(int64(a.count))).InexactFloat64()
}

func (a *accumulator) dimensionStats() DimensionStats {
	return DimensionStats{
		Count:           a.count,
		Wins:            a.wins,
		WinRate:         a.winRate(),
		AvgPnLPercent:   a.avg(a.totalPct),
		AvgPnLUSD:       a.avg(a.totalUSD),
		TotalPnLPercent: a.totalPct.InexactFloat64(),
		TotalPnLUSD:     a.totalUSD.InexactFloat64(),
	}
}

func (a *accumulator) overallStats() OverallStats {
	return OverallStats{
		Total:           a.count,
		Wins:            a.wins,
		WinRate:         a.winRate(),
		TotalPnLPercent: a.totalPct.InexactFloat64(),
		TotalPnLUSD:     a.totalUSD.InexactFloat64(),
		AvgPnLPercent:   a.avg(a.totalPct),
		AvgPnLUSD:       a.avg(a.totalUSD),
		PnLStdPercent:   a.stdDev(),
		SufficientData:  a.count >= MinTradesForStats,
	}
}

// stdDev is the sample standard deviation of pnl_percent, zero below two trades
func (a *accumulator) stdDev() float64 {
	if len(a.pcts) < 2 {
		return 0
	}
	return stat.StdDev(a.pcts, nil)
}

// groupBy buckets trades by key and returns the per-key stats
func groupBy(trades []*TradeOutcome, key func(*TradeOutcome) string) map[string]DimensionStats {
	buckets := make(map[string]*accumulator)
	for _, t := range trades {
		k := key(t)
		acc, ok := buckets[k]
		if !ok {
			acc = &accumulator{}
			buckets[k] = acc
		}
		acc.add(t)
	}

	result := make(map[string]DimensionStats, len(buckets))
	for k, acc := range buckets {
		result[k] = acc.dimensionStats()
	}
	return result
}

func keyFor(dimension Dimension) (func(*TradeOutcome) string, bool) {
	switch dimension {
	case DimensionSymbol:
		return (*TradeOutcome).BaseSymbol, true
	case DimensionDirection:
		return func(t *TradeOutcome) string { return string(t.Direction) }, true
	case DimensionConfidenceBracket:
		return func(t *TradeOutcome) string { return ConfidenceBracket(t.Confidence) }, true
	case DimensionCombo:
		return (*TradeOutcome).ComboKey, true
	default:
		return nil, false
	}
}
