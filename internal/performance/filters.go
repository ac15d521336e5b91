package performance

import (
	"dex-perp-bot/internal/outcome"
)

// Filter type names as stored by the strategy adjuster
const (
	FilterTypeBlock               = "block"
	FilterTypeReduce              = "reduce"
	FilterTypeConfidenceThreshold = "confidence_threshold"
)

// FilterSpec is a filter the adjuster should install for one issue
type FilterSpec struct {
	Action      Action                  `json:"action"`
	FilterType  string                  `json:"filter_type"`
	Dimension   outcome.Dimension       `json:"dimension"`
	Key         string                  `json:"key"`
	ActionValue float64                 `json:"action_value"`
	Reason      string                  `json:"reason"`
	SourceStats *outcome.DimensionStats `json:"source_stats,omitempty"`
}

// FilterFor maps an analyzer action onto a filter type and value.
// MONITOR and NONE have no filter.
func FilterFor(action Action) (filterType string, actionValue float64, ok bool) {
	switch action {
	case ActionBlock:
		return FilterTypeBlock, 1.0, true
	case ActionReduce:
		return FilterTypeReduce, 0.5, true
	case ActionIncreaseThreshold:
		return FilterTypeConfidenceThreshold, 0.85, true
	default:
		return "", 0, false
	}
}

// FiltersFromReport turns every filterable issue of the report (all dimensions,
// not only the top issues) into a filter spec
func FiltersFromReport(report *Report) []FilterSpec {
	if report == nil {
		return nil
	}

	var specs []FilterSpec
	for _, issue := range report.AllIssues() {
		spec, ok := SpecForIssue(issue)
		if !ok {
			continue
		}
		specs = append(specs, spec)
	}
	return specs
}

// SpecForIssue builds the filter spec for a single issue
func SpecForIssue(issue Issue) (FilterSpec, bool) {
	filterType, value, ok := FilterFor(issue.Action)
	if !ok {
		return FilterSpec{}, false
	}
	stats := issue.Stats
	return FilterSpec{
		Action:      issue.Action,
		FilterType:  filterType,
		Dimension:   issue.Dimension,
		Key:         issue.Key,
		ActionValue: value,
		Reason:      issue.Reason,
		SourceStats: &stats,
	}, true
}
