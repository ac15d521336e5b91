// Package performance classifies rolling trade statistics into graduated
// interventions (monitor, reduce, block) ranked by severity.
package performance

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dex-perp-bot/internal/logging"
	"dex-perp-bot/internal/outcome"
)

// Action is the intervention chosen for one dimension value
type Action string

const (
	ActionNone    Action = "NONE"
	ActionMonitor Action = "MONITOR"
	ActionReduce  Action = "REDUCE"
	ActionBlock   Action = "BLOCK"
	// ActionIncreaseThreshold maps to a confidence_threshold filter but no
	// classification rule produces it yet.
	ActionIncreaseThreshold Action = "INCREASE_THRESHOLD"
)

// Thresholds drive the classification rules
type Thresholds struct {
	MinTradesBlock   int     `json:"min_trades_block"`
	BlockWinRate     float64 `json:"block_win_rate"`
	SevereLossUSD    float64 `json:"severe_loss_usd"`
	MinTradesReduce  int     `json:"min_trades_reduce"`
	ReduceWinRate    float64 `json:"reduce_win_rate"`
	ModerateLossUSD  float64 `json:"moderate_loss_usd"`
	MinTradesMonitor int     `json:"min_trades_monitor"`
	MonitorWinRate   float64 `json:"monitor_win_rate"`
}

// DefaultThresholds returns the production thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTradesBlock:   10,
		BlockWinRate:     0.30,
		SevereLossUSD:    -20,
		MinTradesReduce:  5,
		ReduceWinRate:    0.40,
		ModerateLossUSD:  -10,
		MinTradesMonitor: 3,
		MonitorWinRate:   0.45,
	}
}

// Health bands for the summary line
const (
	HealthHealthy   = "HEALTHY"
	HealthNeedsWork = "NEEDS WORK"
	HealthCritical  = "CRITICAL"
)

const (
	maxTopIssues     = 5
	maxSummaryIssues = 3
)

// Issue is one non-NONE classification
type Issue struct {
	Dimension outcome.Dimension      `json:"dimension"`
	Key       string                 `json:"key"`
	Action    Action                 `json:"action"`
	Severity  float64                `json:"severity"`
	Reason    string                 `json:"reason"`
	Stats     outcome.DimensionStats `json:"stats"`
}

// Report is the result of one analysis pass
type Report struct {
	GeneratedAt     time.Time            `json:"generated_at"`
	Window          int                  `json:"window"`
	SufficientData  bool                 `json:"sufficient_data"`
	Overall         outcome.OverallStats `json:"overall"`
	SymbolIssues    []Issue              `json:"symbol_issues"`
	DirectionIssues []Issue              `json:"direction_issues"`
	ComboIssues     []Issue              `json:"combo_issues"`
	TopIssues       []Issue              `json:"top_issues"`
	Summary         string               `json:"summary"`
	// ConfidenceBreakdown is informational; brackets are never classified
	ConfidenceBreakdown map[string]outcome.DimensionStats `json:"confidence_breakdown,omitempty"`
}

// AllIssues returns every issue across the three classified views
func (r *Report) AllIssues() []Issue {
	all := make([]Issue, 0, len(r.SymbolIssues)+len(r.DirectionIssues)+len(r.ComboIssues))
	all = append(all, r.SymbolIssues...)
	all = append(all, r.DirectionIssues...)
	all = append(all, r.ComboIssues...)
	return all
}

// HasIssues reports whether any dimension value was flagged
func (r *Report) HasIssues() bool {
	return len(r.SymbolIssues)+len(r.DirectionIssues)+len(r.ComboIssues) > 0
}

// StatsSource is the read side of the outcome tracker
type StatsSource interface {
	OverallStats(n int) outcome.OverallStats
	StatsByDimension(dimension outcome.Dimension, n int) map[string]outcome.DimensionStats
	ComboStats(n int) map[string]outcome.DimensionStats
}

// Analyzer holds only its thresholds; Analyze is a pure function of the source
type Analyzer struct {
	thresholds Thresholds
	logger     zerolog.Logger
	now        func() time.Time
}

// NewAnalyzer creates an analyzer with the given thresholds
func NewAnalyzer(thresholds Thresholds, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		thresholds: thresholds,
		logger:     logging.WithComponent(logger, "PerformanceAnalyzer"),
		now:        time.Now,
	}
}

// Thresholds returns the configured thresholds
func (a *Analyzer) Thresholds() Thresholds {
	return a.thresholds
}

// Analyze classifies the last n closed trades. Below the sufficient-data floor
// no dimension is examined and the report carries no issues.
func (a *Analyzer) Analyze(src StatsSource, n int) *Report {
	overall := src.OverallStats(n)
	report := &Report{
		GeneratedAt:    a.now().UTC(),
		Window:         n,
		SufficientData: overall.SufficientData,
		Overall:        overall,
		TopIssues:      []Issue{},
	}

	if !overall.SufficientData {
		report.Summary = fmt.Sprintf("Insufficient data: %d closed trades (need %d)", overall.Total, outcome.MinTradesForStats)
		a.logger.Debug().Int("closed_trades", overall.Total).Msg("Skipping analysis: insufficient data")
		return report
	}

	report.SymbolIssues = a.classifyAll(outcome.DimensionSymbol, src.StatsByDimension(outcome.DimensionSymbol, n))
	report.DirectionIssues = a.classifyAll(outcome.DimensionDirection, src.StatsByDimension(outcome.DimensionDirection, n))
	report.ComboIssues = a.classifyAll(outcome.DimensionCombo, src.ComboStats(n))
	report.ConfidenceBreakdown = src.StatsByDimension(outcome.DimensionConfidenceBracket, n)

	all := report.AllIssues()
	sort.SliceStable(all, func(i, j int) bool { return all[i].Severity > all[j].Severity })
	if len(all) > maxTopIssues {
		all = all[:maxTopIssues]
	}
	report.TopIssues = all
	report.Summary = buildSummary(overall, report.TopIssues)

	a.logger.Info().
		Int("closed_trades", overall.Total).
		Float64("win_rate", overall.WinRate).
		Int("issues", len(report.AllIssues())).
		Msg("Performance analysis complete")

	return report
}

// classifyAll walks keys in sorted order so reports are deterministic
func (a *Analyzer) classifyAll(dimension outcome.Dimension, stats map[string]outcome.DimensionStats) []Issue {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var issues []Issue
	for _, k := range keys {
		s := stats[k]
		action, severity, reason := a.Classify(s)
		if action == ActionNone {
			continue
		}
		issues = append(issues, Issue{
			Dimension: dimension,
			Key:       k,
			Action:    action,
			Severity:  severity,
			Reason:    reason,
			Stats:     s,
		})
	}
	return issues
}

// Classify applies the rules in precedence order; the first match wins.
// Severity is clamped to [0,1].
func (a *Analyzer) Classify(s outcome.DimensionStats) (Action, float64, string) {
	th := a.thresholds
	pnl := s.TotalPnLUSD

	switch {
	case s.Count >= th.MinTradesBlock && s.WinRate < th.BlockWinRate:
		return ActionBlock, clamp(1 - s.WinRate),
			fmt.Sprintf("win rate %.1f%% over %d trades is below %.0f%%", s.WinRate*100, s.Count, th.BlockWinRate*100)
	case pnl < th.SevereLossUSD && s.Count >= th.MinTradesReduce:
		return ActionBlock, clamp(math.Min(1, math.Abs(pnl)/50)),
			fmt.Sprintf("lost $%.2f over %d trades (severe loss limit $%.2f)", -pnl, s.Count, -th.SevereLossUSD)
	case s.Count >= th.MinTradesReduce && s.WinRate < th.ReduceWinRate:
		return ActionReduce, clamp(0.6 - s.WinRate),
			fmt.Sprintf("win rate %.1f%% over %d trades is below %.0f%%", s.WinRate*100, s.Count, th.ReduceWinRate*100)
	case pnl < th.ModerateLossUSD && s.Count >= th.MinTradesReduce:
		return ActionReduce, clamp(math.Min(0.7, math.Abs(pnl)/30)),
			fmt.Sprintf("lost $%.2f over %d trades (moderate loss limit $%.2f)", -pnl, s.Count, -th.ModerateLossUSD)
	case s.Count >= th.MinTradesMonitor && s.WinRate < th.MonitorWinRate:
		return ActionMonitor, 0.3,
			fmt.Sprintf("win rate %.1f%% over %d trades is below %.0f%%", s.WinRate*100, s.Count, th.MonitorWinRate*100)
	default:
		return ActionNone, 0, ""
	}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// HealthBand maps an overall win rate to a health label
func HealthBand(winRate float64) string {
	switch {
	case winRate >= 0.50:
		return HealthHealthy
	case winRate >= 0.40:
		return HealthNeedsWork
	default:
		return HealthCritical
	}
}

func buildSummary(overall outcome.OverallStats, top []Issue) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Overall: %s (win rate %.1f%% over %d trades, P&L $%.2f)",
		HealthBand(overall.WinRate), overall.WinRate*100, overall.Total, overall.TotalPnLUSD)

	if len(top) == 0 {
		sb.WriteString("\nNo issues detected")
		return sb.String()
	}

	sb.WriteString("\nTop issues:")
	for i, issue := range top {
		if i >= maxSummaryIssues {
			break
		}
		fmt.Fprintf(&sb, "\n- %s %s=%s: %s", issue.Action, issue.Dimension, issue.Key, issue.Reason)
	}
	return sb.String()
}
