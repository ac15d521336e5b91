// Package adjuster stores the learned trade filters and applies them to
// incoming decisions.
package adjuster

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dex-perp-bot/internal/decision"
	"dex-perp-bot/internal/logging"
	"dex-perp-bot/internal/outcome"
	"dex-perp-bot/internal/performance"
	"dex-perp-bot/internal/storage"
)

const ledgerVersion = "1.0"

var requiredKeys = []string{"metadata", "filters", "adjustment_history"}

// Metadata describes the filter ledger document
type Metadata struct {
	Created time.Time `json:"created"`
	Version string    `json:"version"`
}

type ledger struct {
	Metadata          Metadata       `json:"metadata"`
	Filters           []*Filter      `json:"filters"`
	AdjustmentHistory []HistoryEntry `json:"adjustment_history"`
	LastReview        *time.Time     `json:"last_review,omitempty"`
}

// addResult tells what AddFilter did
type addResult int

const (
	addRejected addResult = iota
	addCreated
	addUpgraded
	addNoop
)

// Adjuster owns the filter ledger. Filters are kept in insertion order and
// evaluated in that order.
type Adjuster struct {
	mu           sync.Mutex
	path         string
	expiryTrades int
	logger       zerolog.Logger
	now          func() time.Time

	ledger ledger
	load   storage.LoadResult
}

// New loads (or creates) the filter ledger at path. expiryTrades <= 0 uses
// DefaultExpiryTrades.
func New(path string, expiryTrades int, logger zerolog.Logger) *Adjuster {
	if expiryTrades <= 0 {
		expiryTrades = DefaultExpiryTrades
	}
	a := &Adjuster{
		path:         path,
		expiryTrades: expiryTrades,
		logger:       logging.WithComponent(logger, "StrategyAdjuster"),
		now:          time.Now,
	}

	a.load = storage.LoadJSON(path, &a.ledger, requiredKeys...)
	switch a.load.Status {
	case storage.LoadOK:
		if a.ledger.Filters == nil {
			a.ledger.Filters = []*Filter{}
		}
		if a.ledger.AdjustmentHistory == nil {
			a.ledger.AdjustmentHistory = []HistoryEntry{}
		}
		a.logger.Info().
			Str("path", path).
			Int("active_filters", a.activeCountLocked()).
			Msg("Loaded strategy filter ledger")
	case storage.LoadReset:
		a.ledger = a.emptyLedger()
		a.logger.Error().
			Err(a.load.Err).
			Str("path", path).
			Str("quarantined_to", a.load.QuarantinePath).
			Msg("Strategy filter ledger was corrupt; starting with no filters, previous filters are lost")
		a.saveLocked()
	default:
		a.ledger = a.emptyLedger()
		a.logger.Info().Str("path", path).Msg("Created new strategy filter ledger")
		a.saveLocked()
	}
	return a
}

func (a *Adjuster) emptyLedger() ledger {
	return ledger{
		Metadata:          Metadata{Created: a.now().UTC(), Version: ledgerVersion},
		Filters:           []*Filter{},
		AdjustmentHistory: []HistoryEntry{},
	}
}

// SetClock replaces the wall clock (tests)
func (a *Adjuster) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// LoadStatus reports how the ledger was obtained at construction
func (a *Adjuster) LoadStatus() storage.LoadResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.load
}

// ExpiryTrades is the trade count after which new filters expire
func (a *Adjuster) ExpiryTrades() int {
	return a.expiryTrades
}

func (a *Adjuster) saveLocked() {
	if err := storage.SaveJSON(a.path, &a.ledger); err != nil {
		a.logger.Error().Err(err).Str("path", a.path).Msg("Failed to save strategy filter ledger; in-memory state kept")
	}
}

func (a *Adjuster) historyLocked(action, filterID string, details map[string]interface{}) {
	a.ledger.AdjustmentHistory = append(a.ledger.AdjustmentHistory, HistoryEntry{
		Time:     a.now().UTC(),
		Action:   action,
		FilterID: filterID,
		Details:  details,
	})
}

// ====== Adding filters ======

// AddFilter installs a filter on (dimension, key). If an active filter already
// covers the pair, a stricter type upgrades it in place (same id, counter
// reset) and an equal or weaker type is a no-op; both return the existing id.
// Unknown types or dimensions are logged and return "".
func (a *Adjuster) AddFilter(filterType FilterType, dimension Dimension, key string, actionValue float64, reason string, sourceStats *outcome.DimensionStats) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	id, res := a.addFilterLocked(filterType, dimension, key, actionValue, reason, sourceStats)
	if res == addCreated || res == addUpgraded {
		a.saveLocked()
	}
	return id
}

func (a *Adjuster) addFilterLocked(filterType FilterType, dimension Dimension, key string, actionValue float64, reason string, sourceStats *outcome.DimensionStats) (string, addResult) {
	if !filterType.Valid() || !dimension.Valid() {
		a.logger.Warn().
			Str("filter_type", string(filterType)).
			Str("dimension", string(dimension)).
			Msg("Ignoring filter with unknown type or dimension")
		return "", addRejected
	}
	key = normalizeKey(dimension, key)
	if key == "" {
		a.logger.Warn().Str("dimension", string(dimension)).Msg("Ignoring filter with empty key")
		return "", addRejected
	}
	var stats *outcome.DimensionStats
	if sourceStats != nil {
		s := *sourceStats
		stats = &s
	}

	if existing := a.activeFilterLocked(dimension, key); existing != nil {
		log := logging.FilterContext(a.logger, existing.ID, string(filterType), string(dimension), key)
		if filterType.strictness() <= existing.FilterType.strictness() {
			log.Debug().Str("existing_type", string(existing.FilterType)).Msg("Filter already covered; no change")
			return existing.ID, addNoop
		}

		previous := existing.FilterType
		existing.FilterType = filterType
		existing.ActionValue = actionValue
		existing.Reason = reason
		existing.SourceStats = stats
		existing.TradesSinceCreated = 0
		a.historyLocked(HistoryFilterUpgraded, existing.ID, map[string]interface{}{
			"from":   string(previous),
			"to":     string(filterType),
			"reason": reason,
		})
		log.Info().Str("from", string(previous)).Str("reason", reason).Msg("Upgraded learned filter")
		return existing.ID, addUpgraded
	}

	now := a.now().UTC()
	f := &Filter{
		ID:                 a.uniqueIDLocked(fmt.Sprintf("%s_%s_%d", dimension, key, now.Unix())),
		FilterType:         filterType,
		Dimension:          dimension,
		Key:                key,
		ActionValue:        actionValue,
		Reason:             reason,
		SourceStats:        stats,
		CreatedAt:          now,
		Active:             true,
		ExpiresAfterTrades: a.expiryTrades,
	}
	a.ledger.Filters = append(a.ledger.Filters, f)
	a.historyLocked(HistoryFilterAdded, f.ID, map[string]interface{}{
		"filter_type":  string(filterType),
		"dimension":    string(dimension),
		"key":          key,
		"action_value": actionValue,
		"reason":       reason,
	})

	log := logging.FilterContext(a.logger, f.ID, string(filterType), string(dimension), key)
	log.Info().
		Float64("action_value", actionValue).
		Str("reason", reason).
		Msg("Added learned filter")
	return f.ID, addCreated
}

func (a *Adjuster) activeFilterLocked(dimension Dimension, key string) *Filter {
	for _, f := range a.ledger.Filters {
		if f.Active && f.Dimension == dimension && f.Key == key {
			return f
		}
	}
	return nil
}

func (a *Adjuster) uniqueIDLocked(base string) string {
	id := base
	for n := 2; a.filterLocked(id) != nil; n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	return id
}

func (a *Adjuster) filterLocked(id string) *Filter {
	for _, f := range a.ledger.Filters {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// ApplyAnalysisResults installs the analyzer's filter specs and returns how
// many filters were created or upgraded. Specs without a filter type are
// translated from their action; actions without a filter are skipped.
func (a *Adjuster) ApplyAnalysisResults(specs []performance.FilterSpec) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	applied := 0
	for _, spec := range specs {
		filterType, value := spec.FilterType, spec.ActionValue
		if filterType == "" {
			ft, v, ok := performance.FilterFor(spec.Action)
			if !ok {
				continue
			}
			filterType, value = ft, v
		}

		_, res := a.addFilterLocked(FilterType(filterType), Dimension(spec.Dimension), spec.Key, value, spec.Reason, spec.SourceStats)
		if res == addCreated || res == addUpgraded {
			applied++
		}
	}

	now := a.now().UTC()
	a.ledger.LastReview = &now
	a.saveLocked()

	a.logger.Info().Int("specs", len(specs)).Int("applied", applied).Msg("Applied analysis results")
	return applied
}

// ====== Applying filters ======

// ApplyFilters runs the normalized decision through every active filter in
// storage order. A matching block, or a confidence threshold the decision
// misses, stops evaluation and returns a rejection reason. Matching reduce
// filters multiply the position size and compound. Closing and no-op actions
// pass through untouched. The empty string means not rejected.
func (a *Adjuster) ApplyFilters(d decision.Decision) (decision.Decision, string) {
	out := d.Normalize()
	if out.Action == decision.ActionClose || out.Action == decision.ActionNothing {
		return out, ""
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	log := logging.DecisionContext(a.logger, out.Symbol, string(out.Action), out.Confidence)
	for _, f := range a.ledger.Filters {
		if !f.Active || !f.Matches(out) {
			continue
		}

		switch f.FilterType {
		case FilterBlock:
			reason := fmt.Sprintf("Blocked by learned filter [%s]: %s", f.Label(), f.Reason)
			log.Info().Str("filter_id", f.ID).Msg(reason)
			return out, reason
		case FilterReduce:
			if out.PositionSizeUSD == nil {
				log.Debug().Str("filter_id", f.ID).Msg("Reduce filter matched a decision without a size")
				continue
			}
			reduced := *out.PositionSizeUSD * f.ActionValue
			log.Info().
				Str("filter_id", f.ID).
				Float64("from_usd", *out.PositionSizeUSD).
				Float64("to_usd", reduced).
				Msg("Position size reduced by learned filter")
			out.PositionSizeUSD = &reduced
		case FilterConfidenceThreshold:
			if out.Confidence < f.ActionValue {
				reason := fmt.Sprintf("Confidence %.2f below learned minimum %.2f for %s", out.Confidence, f.ActionValue, f.Label())
				log.Info().Str("filter_id", f.ID).Msg(reason)
				return out, reason
			}
		}
	}
	return out, ""
}

// PromptContext renders the active filters for an LLM prompt, grouped by
// type. It is empty when no filter is active.
func (a *Adjuster) PromptContext() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var blocked, reduced, thresholds []*Filter
	for _, f := range a.ledger.Filters {
		if !f.Active {
			continue
		}
		switch f.FilterType {
		case FilterBlock:
			blocked = append(blocked, f)
		case FilterReduce:
			reduced = append(reduced, f)
		case FilterConfidenceThreshold:
			thresholds = append(thresholds, f)
		}
	}
	if len(blocked)+len(reduced)+len(thresholds) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("LEARNED TRADING RESTRICTIONS (from recent performance):\n")
	if len(blocked) > 0 {
		sb.WriteString("\nBLOCKED (do not open these trades):\n")
		for _, f := range blocked {
			fmt.Fprintf(&sb, "- %s %s: %s\n", f.Dimension, f.Key, f.Reason)
		}
	}
	if len(reduced) > 0 {
		sb.WriteString("\nHIGH RISK (position size reduced):\n")
		for _, f := range reduced {
			fmt.Fprintf(&sb, "- %s %s: size x%.2f, %s\n", f.Dimension, f.Key, f.ActionValue, f.Reason)
		}
	}
	if len(thresholds) > 0 {
		sb.WriteString("\nCONFIDENCE REQUIREMENTS:\n")
		for _, f := range thresholds {
			fmt.Fprintf(&sb, "- %s %s: minimum confidence %.2f, %s\n", f.Dimension, f.Key, f.ActionValue, f.Reason)
		}
	}
	return sb.String()
}

// ====== Expiry and overrides ======

// IncrementTradeCount advances the trade counter of the named filters, or of
// every active filter when ids is nil, and deactivates those reaching their
// expiry. It returns the ids that expired.
func (a *Adjuster) IncrementTradeCount(ids []string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var targets []*Filter
	if ids == nil {
		for _, f := range a.ledger.Filters {
			if f.Active {
				targets = append(targets, f)
			}
		}
	} else {
		for _, id := range ids {
			if f := a.filterLocked(id); f != nil && f.Active {
				targets = append(targets, f)
			}
		}
	}
	if len(targets) == 0 {
		return nil
	}

	var expired []string
	for _, f := range targets {
		f.TradesSinceCreated++
		if f.TradesSinceCreated >= f.ExpiresAfterTrades {
			a.deactivateLocked(f, "expired")
			a.historyLocked(HistoryFilterExpired, f.ID, map[string]interface{}{
				"trades": f.TradesSinceCreated,
			})
			log := logging.FilterContext(a.logger, f.ID, string(f.FilterType), string(f.Dimension), f.Key)
			log.Info().
				Int("trades", f.TradesSinceCreated).
				Msg("Learned filter expired")
			expired = append(expired, f.ID)
		}
	}
	a.saveLocked()
	return expired
}

func (a *Adjuster) deactivateLocked(f *Filter, reason string) {
	now := a.now().UTC()
	f.Active = false
	f.DeactivatedAt = &now
	f.DeactivatedReason = reason
}

// DeactivateFilter turns off one active filter. It reports false when the id
// is unknown or already inactive.
func (a *Adjuster) DeactivateFilter(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	f := a.filterLocked(id)
	if f == nil || !f.Active {
		a.logger.Warn().Str("filter_id", id).Msg("Cannot deactivate: no active filter with this id")
		return false
	}

	a.deactivateLocked(f, "manual")
	a.historyLocked(HistoryFilterDeactivated, f.ID, nil)
	a.saveLocked()

	a.logger.Info().Str("filter_id", id).Msg("Learned filter deactivated")
	return true
}

// ClearAllFilters deactivates every active filter and returns how many
func (a *Adjuster) ClearAllFilters() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := 0
	for _, f := range a.ledger.Filters {
		if f.Active {
			a.deactivateLocked(f, "cleared")
			count++
		}
	}
	a.historyLocked(HistoryFiltersCleared, "", map[string]interface{}{"count": count})
	a.saveLocked()

	a.logger.Info().Int("count", count).Msg("All learned filters cleared")
	return count
}

// ====== Queries ======

// ActiveFilters returns copies of the active filters in storage order
func (a *Adjuster) ActiveFilters() []Filter {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := []Filter{}
	for _, f := range a.ledger.Filters {
		if f.Active {
			out = append(out, f.clone())
		}
	}
	return out
}

// AllFilters returns copies of every filter, active or not
func (a *Adjuster) AllFilters() []Filter {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Filter, len(a.ledger.Filters))
	for i, f := range a.ledger.Filters {
		out[i] = f.clone()
	}
	return out
}

// Filter returns a copy of one filter
func (a *Adjuster) Filter(id string) (Filter, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if f := a.filterLocked(id); f != nil {
		return f.clone(), true
	}
	return Filter{}, false
}

// History returns a copy of the adjustment history
func (a *Adjuster) History() []HistoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]HistoryEntry, len(a.ledger.AdjustmentHistory))
	copy(out, a.ledger.AdjustmentHistory)
	return out
}

// LastReview is when analysis results were last applied
func (a *Adjuster) LastReview() *time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ledger.LastReview == nil {
		return nil
	}
	ts := *a.ledger.LastReview
	return &ts
}

func (a *Adjuster) activeCountLocked() int {
	n := 0
	for _, f := range a.ledger.Filters {
		if f.Active {
			n++
		}
	}
	return n
}
