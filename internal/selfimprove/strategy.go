// Package selfimprove wires the outcome tracker, performance analyzer and
// strategy adjuster into one learning loop for a bot instance.
//
// The loop is synchronous: every call completes its ledger writes before it
// returns. The two ledgers are not updated atomically together, so a reader
// may briefly see new filters before the review baseline moves. One bot
// process owns a log directory.
package selfimprove

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dex-perp-bot/internal/adjuster"
	"dex-perp-bot/internal/decision"
	"dex-perp-bot/internal/events"
	"dex-perp-bot/internal/logging"
	"dex-perp-bot/internal/outcome"
	"dex-perp-bot/internal/performance"
	"dex-perp-bot/internal/storage"
)

// SnapshotPublisher mirrors the active filter set somewhere readable by
// other processes (Redis)
type SnapshotPublisher interface {
	PublishFilters(ctx context.Context, promptContext string, filters []adjuster.Filter) error
}

// Archiver keeps closed trades beyond the rolling ledger (Postgres)
type Archiver interface {
	ArchiveOutcome(ctx context.Context, botID string, trade *outcome.TradeOutcome) error
}

// Strategy is the orchestrator a bot's decision loop talks to
type Strategy struct {
	cfg      Config
	tracker  *outcome.Tracker
	analyzer *performance.Analyzer
	adjuster *adjuster.Adjuster
	logger   zerolog.Logger

	// reviewMu serializes review cycles
	reviewMu sync.Mutex

	mu         sync.RWMutex
	bus        *events.EventBus
	snapshots  SnapshotPublisher
	archiver   Archiver
	lastReport *performance.Report
}

// New builds the tracker, analyzer and adjuster from cfg
func New(cfg Config, logger zerolog.Logger) *Strategy {
	cfg = cfg.withDefaults()
	tracker := outcome.New(cfg.OutcomePath(), logger)
	analyzer := performance.NewAnalyzer(cfg.Thresholds, logger)
	adj := adjuster.New(cfg.FilterPath(), cfg.FilterExpiryTrades, logger)
	return NewWithComponents(cfg, tracker, analyzer, adj, logger)
}

// NewWithComponents wires already constructed components
func NewWithComponents(cfg Config, tracker *outcome.Tracker, analyzer *performance.Analyzer, adj *adjuster.Adjuster, logger zerolog.Logger) *Strategy {
	cfg = cfg.withDefaults()
	s := &Strategy{
		cfg:      cfg,
		tracker:  tracker,
		analyzer: analyzer,
		adjuster: adj,
		logger:   logger.With().Str("component", "SelfImprovingStrategy").Str("bot_id", cfg.BotID).Logger(),
	}

	s.logger.Info().
		Str("outcome_ledger", string(tracker.LoadStatus().Status)).
		Str("filter_ledger", string(adj.LoadStatus().Status)).
		Int("review_interval", cfg.ReviewInterval).
		Int("rolling_window", cfg.RollingWindow).
		Bool("auto_apply", cfg.AutoApplyFilters).
		Msg("Self-improving strategy ready")
	return s
}

// SetEventBus attaches the event bus and announces any ledger that was reset
// at construction
func (s *Strategy) SetEventBus(bus *events.EventBus) {
	s.mu.Lock()
	s.bus = bus
	s.mu.Unlock()

	if bus == nil {
		return
	}
	if res := s.tracker.LoadStatus(); res.Status == storage.LoadReset {
		bus.PublishLedgerReset("outcomes", s.tracker.Path(), res.QuarantinePath, res.Err)
	}
	if res := s.adjuster.LoadStatus(); res.Status == storage.LoadReset {
		bus.PublishLedgerReset("filters", s.cfg.FilterPath(), res.QuarantinePath, res.Err)
	}
}

// SetSnapshotPublisher sets the filter snapshot mirror
func (s *Strategy) SetSnapshotPublisher(p SnapshotPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = p
}

// SetArchiver sets the closed-trade archive
func (s *Strategy) SetArchiver(a Archiver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archiver = a
}

// Config returns the effective configuration
func (s *Strategy) Config() Config {
	return s.cfg
}

// Tracker exposes the outcome tracker for read-only callers
func (s *Strategy) Tracker() *outcome.Tracker {
	return s.tracker
}

// Adjuster exposes the strategy adjuster for read-only callers
func (s *Strategy) Adjuster() *adjuster.Adjuster {
	return s.adjuster
}

func (s *Strategy) eventBus() *events.EventBus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bus
}

// ====== Trade lifecycle ======

// RecordTradeEntry records a filled entry and returns the trade id
func (s *Strategy) RecordTradeEntry(symbol, direction string, confidence, entryPrice float64, reasoning string, tags map[string]interface{}) int64 {
	id := s.tracker.RecordEntry(symbol, direction, confidence, entryPrice, reasoning, tags)
	if bus := s.eventBus(); bus != nil {
		// publish what was stored, not the raw inputs
		if tr := s.tracker.Trade(id); tr != nil {
			bus.PublishTradeOpened(id, tr.Symbol, string(tr.Direction), tr.Confidence, tr.EntryPrice)
		}
	}
	return id
}

// RecordTradeExit closes the trade, ages every active filter by one trade and
// runs a review once enough trades closed since the last one. It returns nil
// when the id is unknown or already closed.
func (s *Strategy) RecordTradeExit(tradeID int64, exitPrice float64, pnlUSD *float64) *outcome.TradeOutcome {
	closed := s.tracker.RecordExit(tradeID, exitPrice, pnlUSD)
	bus := s.eventBus()
	if closed == nil {
		if bus != nil {
			bus.PublishExitRejected(tradeID, exitPrice)
		}
		return nil
	}

	expired := s.adjuster.IncrementTradeCount(nil)
	s.archive(closed)
	if bus != nil {
		bus.PublishTradeClosed(closed.ID, closed.Symbol, string(closed.Direction), exitPrice, *closed.PnLPercent, closed.PnLUSD, closed.Won())
	}
	if len(expired) > 0 {
		s.logger.Info().Strs("filter_ids", expired).Msg("Learned filters expired")
		s.publishSnapshot()
	}

	if since := s.tracker.TradesSinceLastReview(); since >= s.cfg.ReviewInterval {
		s.logger.Info().Int("trades_since_review", since).Msg("Review interval reached")
		s.runReviewCycle()
	}
	return closed
}

// ====== Review ======

// ForceReview runs a review cycle now. It returns nil when there are not
// enough closed trades to analyze.
func (s *Strategy) ForceReview() *performance.Report {
	s.logger.Info().Msg("Forced review requested")
	return s.runReviewCycle()
}

func (s *Strategy) runReviewCycle() *performance.Report {
	s.reviewMu.Lock()
	defer s.reviewMu.Unlock()

	bus := s.eventBus()
	closed := s.tracker.TradeCount()
	if closed < s.cfg.MinTradesForAnalysis {
		s.logger.Info().
			Int("closed_trades", closed).
			Int("required", s.cfg.MinTradesForAnalysis).
			Msg("Review skipped: not enough closed trades")
		if bus != nil {
			bus.PublishReviewSkipped(closed, "insufficient closed trades")
		}
		return nil
	}

	report := s.analyzer.Analyze(s.tracker, s.cfg.RollingWindow)

	applied := 0
	if s.cfg.AutoApplyFilters && report.HasIssues() {
		applied = s.adjuster.ApplyAnalysisResults(performance.FiltersFromReport(report))
	}
	s.tracker.MarkReviewComplete()

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	s.logger.Info().
		Int("closed_trades", closed).
		Int("issues", len(report.AllIssues())).
		Int("filters_applied", applied).
		Msg("Review cycle complete")

	if bus != nil {
		bus.PublishReviewCompleted(closed, len(report.AllIssues()), applied, report.Summary)
		if applied > 0 {
			bus.PublishFiltersApplied(applied, len(s.adjuster.ActiveFilters()))
		}
	}
	if applied > 0 {
		s.publishSnapshot()
	}
	return report
}

// LastReport is the report of the most recent completed review, or nil
func (s *Strategy) LastReport() *performance.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// ====== Decisions ======

// FilterDecision applies the learned filters to a decision. A missing
// position size is filled with the configured default before filtering. A
// non-empty reason means the caller must skip the trade.
func (s *Strategy) FilterDecision(d decision.Decision) (decision.Decision, string) {
	d = d.Normalize()
	if d.PositionSizeUSD == nil {
		d = d.WithSize(s.cfg.DefaultPositionSizeUSD)
	}

	out, reason := s.adjuster.ApplyFilters(d)
	if reason != "" {
		log := logging.DecisionContext(s.logger, out.Symbol, string(out.Action), out.Confidence)
		log.Info().
			Str("reason", reason).
			Msg("Decision rejected by learned filter")
		if bus := s.eventBus(); bus != nil {
			bus.PublishDecisionRejected(out.Symbol, string(out.Action), out.Confidence, reason)
		}
	}
	return out, reason
}

// PromptEnhancement is the text block to splice into the next LLM prompt
func (s *Strategy) PromptEnhancement() string {
	return s.adjuster.PromptContext()
}

// ====== Reporting ======

// LedgerStatus reports how each ledger was loaded
type LedgerStatus struct {
	Outcomes storage.LoadStatus `json:"outcomes"`
	Filters  storage.LoadStatus `json:"filters"`
}

// Stats is the strategy's status summary
type Stats struct {
	BotID                 string               `json:"bot_id"`
	Overall               outcome.OverallStats `json:"overall"`
	TradeCount            int                  `json:"trade_count"`
	TradesSinceLastReview int                  `json:"trades_since_last_review"`
	ReviewInterval        int                  `json:"review_interval"`
	ActiveFilters         int                  `json:"active_filters"`
	LastReview            *time.Time           `json:"last_review,omitempty"`
	Ledgers               LedgerStatus         `json:"ledgers"`
}

// Stats summarizes the rolling window and review cadence
func (s *Strategy) Stats() Stats {
	return Stats{
		BotID:                 s.cfg.BotID,
		Overall:               s.tracker.OverallStats(s.cfg.RollingWindow),
		TradeCount:            s.tracker.TradeCount(),
		TradesSinceLastReview: s.tracker.TradesSinceLastReview(),
		ReviewInterval:        s.cfg.ReviewInterval,
		ActiveFilters:         len(s.adjuster.ActiveFilters()),
		LastReview:            s.tracker.LastReviewTime(),
		Ledgers: LedgerStatus{
			Outcomes: s.tracker.LoadStatus().Status,
			Filters:  s.adjuster.LoadStatus().Status,
		},
	}
}

// DimensionBreakdown returns the window's stats for every dimension view
func (s *Strategy) DimensionBreakdown() map[outcome.Dimension]map[string]outcome.DimensionStats {
	n := s.cfg.RollingWindow
	return map[outcome.Dimension]map[string]outcome.DimensionStats{
		outcome.DimensionSymbol:            s.tracker.StatsByDimension(outcome.DimensionSymbol, n),
		outcome.DimensionDirection:         s.tracker.StatsByDimension(outcome.DimensionDirection, n),
		outcome.DimensionConfidenceBracket: s.tracker.StatsByDimension(outcome.DimensionConfidenceBracket, n),
		outcome.DimensionCombo:             s.tracker.ComboStats(n),
	}
}

// FilterSummary is the display form of an active filter
type FilterSummary struct {
	ID                 string              `json:"id"`
	Type               adjuster.FilterType `json:"type"`
	Dimension          adjuster.Dimension  `json:"dimension"`
	Key                string              `json:"key"`
	ActionValue        float64             `json:"action_value"`
	Reason             string              `json:"reason"`
	TradesSinceCreated int                 `json:"trades_since_created"`
	ExpiresAfterTrades int                 `json:"expires_after_trades"`
}

// ActiveFiltersSummary lists the active filters in storage order
func (s *Strategy) ActiveFiltersSummary() []FilterSummary {
	active := s.adjuster.ActiveFilters()
	out := make([]FilterSummary, 0, len(active))
	for _, f := range active {
		out = append(out, FilterSummary{
			ID:                 f.ID,
			Type:               f.FilterType,
			Dimension:          f.Dimension,
			Key:                f.Key,
			ActionValue:        f.ActionValue,
			Reason:             f.Reason,
			TradesSinceCreated: f.TradesSinceCreated,
			ExpiresAfterTrades: f.ExpiresAfterTrades,
		})
	}
	return out
}

// OpenTrades passes through to the tracker
func (s *Strategy) OpenTrades() []*outcome.TradeOutcome {
	return s.tracker.OpenTrades()
}

// ====== Administration ======

// ClearFilters deactivates every learned filter
func (s *Strategy) ClearFilters() int {
	count := s.adjuster.ClearAllFilters()
	if bus := s.eventBus(); bus != nil {
		bus.PublishFiltersCleared(count)
	}
	s.publishSnapshot()
	return count
}

// DeactivateFilter turns off one filter by id
func (s *Strategy) DeactivateFilter(id string) bool {
	if !s.adjuster.DeactivateFilter(id) {
		return false
	}
	if bus := s.eventBus(); bus != nil {
		bus.PublishFilterDeactivated(id)
	}
	s.publishSnapshot()
	return true
}

// ====== Best-effort hooks ======

func (s *Strategy) publishSnapshot() {
	s.mu.RLock()
	p := s.snapshots
	s.mu.RUnlock()
	if p == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HookTimeout)
	defer cancel()
	if err := p.PublishFilters(ctx, s.adjuster.PromptContext(), s.adjuster.ActiveFilters()); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish filter snapshot")
	}
}

func (s *Strategy) archive(trade *outcome.TradeOutcome) {
	s.mu.RLock()
	a := s.archiver
	s.mu.RUnlock()
	if a == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HookTimeout)
	defer cancel()
	if err := a.ArchiveOutcome(ctx, s.cfg.BotID, trade); err != nil {
		s.logger.Warn().Err(err).Int64("trade_id", trade.ID).Msg("Failed to archive closed trade")
	}
}
