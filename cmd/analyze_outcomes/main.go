// Command analyze_outcomes prints the learning statistics of an outcome
// ledger and the filters a review would create, without modifying anything.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"dex-perp-bot/config"
	"dex-perp-bot/internal/logging"
	"dex-perp-bot/internal/outcome"
	"dex-perp-bot/internal/performance"
	"dex-perp-bot/internal/selfimprove"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	learning := selfimprove.FromLearningConfig(cfg.LearningConfig)

	file := flag.String("file", learning.OutcomePath(), "outcome ledger to analyze")
	window := flag.Int("window", learning.RollingWindow, "rolling window of closed trades (0 = all)")
	flag.Parse()

	logger := logging.New(logging.Config{Level: "warn", Output: "stderr", Component: "analyze_outcomes"})

	if err := run(os.Stdout, *file, *window, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, path string, window int, logger zerolog.Logger) error {
	tracker, err := outcome.NewReadOnly(path, logger)
	if err != nil {
		return err
	}

	rule := strings.Repeat("=", 80)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "TRADE OUTCOME ANALYSIS: %s\n", path)
	fmt.Fprintln(w, rule)

	overall := tracker.OverallStats(window)
	fmt.Fprintf(w, "\nClosed trades in window: %d (open: %d)\n", overall.Total, overall.OpenTrades)
	fmt.Fprintf(w, "Win rate: %.1f%%   Total P&L: $%+.2f   Avg P&L: %+.2f%% (std %.2f%%)\n",
		overall.WinRate*100, overall.TotalPnLUSD, overall.AvgPnLPercent, overall.PnLStdPercent)

	printTable(w, "BY SYMBOL", tracker.StatsByDimension(outcome.DimensionSymbol, window), nil)
	printTable(w, "BY DIRECTION", tracker.StatsByDimension(outcome.DimensionDirection, window), nil)
	printTable(w, "BY CONFIDENCE", tracker.StatsByDimension(outcome.DimensionConfidenceBracket, window), outcome.ConfidenceBrackets)
	printTable(w, "BY SYMBOL + DIRECTION", tracker.ComboStats(window), nil)

	report := performance.NewAnalyzer(performance.DefaultThresholds(), logger).Analyze(tracker, window)

	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintln(w, report.Summary)
	fmt.Fprintln(w, rule)

	if !report.SufficientData {
		return nil
	}

	specs := performance.FiltersFromReport(report)
	if len(specs) == 0 {
		fmt.Fprintln(w, "\nNo filters would be created.")
		return nil
	}

	fmt.Fprintf(w, "\nA review would create %d filter(s):\n", len(specs))
	for _, spec := range specs {
		fmt.Fprintf(w, "  %-20s %s=%s (value %.2f): %s\n",
			spec.FilterType, spec.Dimension, spec.Key, spec.ActionValue, spec.Reason)
	}
	return nil
}

// printTable renders stats in order; keys not in order follow alphabetically
func printTable(w io.Writer, title string, stats map[string]outcome.DimensionStats, order []string) {
	fmt.Fprintf(w, "\n%s\n", title)
	if len(stats) == 0 {
		fmt.Fprintln(w, "  (no closed trades)")
		return
	}

	keys := make([]string, 0, len(stats))
	seen := make(map[string]bool)
	for _, k := range order {
		if _, ok := stats[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range stats {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	fmt.Fprintf(w, "  %-16s %7s %6s %9s %12s %12s\n", "Key", "Trades", "Wins", "Win Rate", "Avg P&L %", "Total P&L $")
	for _, k := range keys {
		s := stats[k]
		fmt.Fprintf(w, "  %-16s %7d %6d %8.1f%% %+12.2f %+12.2f\n",
			k, s.Count, s.Wins, s.WinRate*100, s.AvgPnLPercent, s.TotalPnLUSD)
	}
}
