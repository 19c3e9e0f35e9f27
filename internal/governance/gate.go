// Package governance decides, per run, how much of an extracted report may be
// surfaced. Evaluate is a pure function of its inputs: it performs no I/O and
// returns the same state for the same inputs, so it is safe to call on every
// render.
package governance

import (
	"fmt"
	"math"
	"strconv"

	"github.com/kiranshivaraju/insightgate/internal/config"
	"github.com/kiranshivaraju/insightgate/pkg/models"
)

// Fixed reasons. Reasons that cite values are built in Evaluate.
const (
	ReasonNoTemporal    = "No temporal field was detected in the dataset; time-series and forecasting insights are suppressed"
	ReasonNoEvidence    = "No evidence records were supplied for this run; no claim can be grounded"
	ReasonNoDataQuality = "Data quality score could not be determined from the run artifacts"
	ReasonInvalidScore  = "Data confidence score is missing or not a number; treated as 0"
)

// Input is everything the gate looks at for one run.
type Input struct {
	Metrics          []models.Metric
	ConfidenceScore  float64
	Validation       models.ValidationDiagnostics
	Constraints      []models.ScopeConstraint
	TemporalDetected bool
	EvidenceCount    int
}

// Evaluate derives the governance state. Every applicable rule records its
// reason; the mode only ever moves towards more restrictive.
func Evaluate(in Input, th config.Thresholds) models.GovernanceState {
	st := state{mode: models.ModeNormal, seen: make(map[string]bool)}

	score := in.ConfidenceScore
	if math.IsNaN(score) || math.IsInf(score, 0) {
		st.reason(ReasonInvalidScore, models.ModeLimitations)
		score = 0
	}

	for _, r := range in.Validation.Reasons {
		if r != "" {
			st.reason(r, models.ModeLimitations)
		}
	}

	if score < th.MinConfidence {
		st.reason(fmt.Sprintf("Data confidence %s is below the required threshold %s", pct(score), pct(th.MinConfidence)),
			models.ModeLimitations)
	}

	if !in.TemporalDetected {
		st.reason(ReasonNoTemporal, models.ModeNormal)
		st.suppress(models.CapTimeSeries, models.CapForecasting)
	}

	if in.EvidenceCount == 0 {
		st.reason(ReasonNoEvidence, models.ModeLimitations)
	}

	if dq, ok := findMetric(in.Metrics, models.MetricDataQuality); !ok {
		st.reason(ReasonNoDataQuality, models.ModeLimitations)
	} else if dq.Value < th.MinDataQuality {
		st.reason(fmt.Sprintf("Data quality score %s%% is below the minimum of %s%%", num(dq.Value), num(th.MinDataQuality)),
			models.ModeLimitations)
	}

	for _, c := range in.Constraints {
		st.reason("Out of scope: "+constraintTitle(c), models.ModeLimitations)
	}

	if score < th.FailSafeConfidence {
		st.reason(fmt.Sprintf("Data confidence %s is below the fail-safe threshold %s; only descriptive sections are shown",
			pct(score), pct(th.FailSafeConfidence)), models.ModeSafe)
		st.suppress(models.AllCapabilities...)
	}

	out := models.GovernanceState{
		Mode:                   st.mode,
		Reasons:                st.reasons,
		SuppressedCapabilities: st.suppressed,
	}
	if out.Reasons == nil {
		out.Reasons = []string{}
	}
	if out.SuppressedCapabilities == nil {
		out.SuppressedCapabilities = []models.Capability{}
	}
	if st.mode == models.ModeSafe {
		out.AllowedSections = append([]string{}, th.SafeModeSections...)
	}
	return out
}

type state struct {
	mode       models.Mode
	reasons    []string
	seen       map[string]bool
	suppressed []models.Capability
}

func (s *state) reason(r string, atLeast models.Mode) {
	if !s.seen[r] {
		s.seen[r] = true
		s.reasons = append(s.reasons, r)
	}
	if atLeast.Rank() > s.mode.Rank() {
		s.mode = atLeast
	}
}

func (s *state) suppress(caps ...models.Capability) {
	for _, c := range caps {
		already := false
		for _, have := range s.suppressed {
			if have == c {
				already = true
				break
			}
		}
		if !already {
			s.suppressed = append(s.suppressed, c)
		}
	}
}

func findMetric(metrics []models.Metric, name string) (models.Metric, bool) {
	for _, m := range metrics {
		if m.Name == name {
			return m, true
		}
	}
	return models.Metric{}, false
}

func constraintTitle(c models.ScopeConstraint) string {
	if c.Title != "" {
		return c.Title
	}
	return c.Dimension
}

func pct(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Band is a coarse label for a data-confidence score.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// ConfidenceBand buckets score using the configured band edges. Edges are inclusive.
func ConfidenceBand(score float64, th config.Thresholds) Band {
	switch {
	case score >= th.HighConfidenceBand:
		return BandHigh
	case score >= th.MediumConfidenceBand:
		return BandMedium
	default:
		return BandLow
	}
}
