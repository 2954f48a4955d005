package status

import (
	"github.com/Sternrassler/travel-map/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for filtering.
var (
	statusesFilteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travelmap_statuses_filtered_total",
		Help: "Total filter verdicts by reason",
	}, []string{"reason"})

	filterUnexpectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travelmap_filter_unexpected_total",
		Help: "Total unexpected field values seen while filtering",
	}, []string{"field"})
)

// Reason explains a filter verdict.
type Reason string

const (
	ReasonKept              Reason = "kept"
	ReasonPrivate           Reason = "private"
	ReasonUnknownVisibility Reason = "unknown_visibility"
	ReasonCategory          Reason = "category"
	ReasonIgnoredID         Reason = "ignored_id"
	ReasonIgnoredRoute      Reason = "ignored_route"
)

// See https://github.com/Traewelling/traewelling/blob/6193e1cec5347a16e90a56338abac4a9f977c28c/app/Enum/HafasTravelType.php#L18-L28
var (
	allowedCategories = map[string]bool{
		"nationalExpress": true,
		"national":        true,
		"regionalExp":     true,
		"regional":        true,
		"suburban":        true,
		"subway":          true,
		"tram":            true,
	}

	deniedCategories = map[string]bool{
		"bus":   true,
		"ferry": true,
		"taxi":  true,
		"plane": true,
	}
)

// Verdict is the outcome of evaluating one status.
type Verdict struct {
	Keep   bool
	Reason Reason
}

// Filter decides which statuses are drawn on the map.
//
// Unknown visibility values are rejected while unknown categories are
// accepted; both are logged as unexpected.
type Filter struct {
	rules  []IgnoreRule
	logger zerolog.Logger
}

// NewFilter creates a filter applying rules after the visibility and
// category checks.
func NewFilter(rules []IgnoreRule) *Filter {
	return &Filter{
		rules:  rules,
		logger: logging.NewLogger("filter"),
	}
}

// WithLogger returns the filter using logger as its parent.
func (f *Filter) WithLogger(logger zerolog.Logger) *Filter {
	f.logger = logger.With().Str("component", "filter").Logger()
	return f
}

// Keep reports whether s passes the filter.
func (f *Filter) Keep(s Status) bool {
	return f.Evaluate(s).Keep
}

// Evaluate runs the visibility, category and ignore checks in that order.
func (f *Filter) Evaluate(s Status) Verdict {
	verdict := f.evaluate(s)
	statusesFilteredTotal.WithLabelValues(string(verdict.Reason)).Inc()
	return verdict
}

func (f *Filter) evaluate(s Status) Verdict {
	switch s.Visibility {
	case VisibilityPublic, VisibilityUnlisted, VisibilityFollowers, VisibilityAuthenticated:
	case VisibilityPrivate:
		return Verdict{Keep: false, Reason: ReasonPrivate}
	default:
		filterUnexpectedTotal.WithLabelValues("visibility").Inc()
		f.logger.Warn().
			Int64("status_id", s.ID).
			Int("visibility", s.Visibility).
			Msg("Got unexpected visibility in status")
		return Verdict{Keep: false, Reason: ReasonUnknownVisibility}
	}

	category := s.Train.Category
	switch {
	case allowedCategories[category]:
	case deniedCategories[category]:
		return Verdict{Keep: false, Reason: ReasonCategory}
	default:
		filterUnexpectedTotal.WithLabelValues("category").Inc()
		f.logger.Warn().
			Int64("status_id", s.ID).
			Str("category", category).
			Msg("Got unexpected category in status")
	}

	for _, rule := range f.rules {
		if !rule.Matches(s) {
			continue
		}
		if rule.IsPair() {
			return Verdict{Keep: false, Reason: ReasonIgnoredRoute}
		}
		return Verdict{Keep: false, Reason: ReasonIgnoredID}
	}

	f.logger.Debug().Int64("status_id", s.ID).Msgf("Accepting %s", s.Route())
	return Verdict{Keep: true, Reason: ReasonKept}
}

// Apply returns the statuses that pass the filter, in input order.
func (f *Filter) Apply(statuses []Status) []Status {
	kept := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		if f.Keep(s) {
			kept = append(kept, s)
		}
	}

	f.logger.Info().
		Int("total", len(statuses)).
		Int("kept", len(kept)).
		Msg("Filtered statuses")

	return kept
}
