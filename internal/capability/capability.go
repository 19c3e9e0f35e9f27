// Package capability maps free text onto the analysis capabilities that
// governance can suppress.
package capability

import (
	"strings"

	"github.com/kiranshivaraju/insightgate/pkg/models"
)

type rule struct {
	capability models.Capability
	keywords   []string
}

// rules are checked in order; Classify returns the first hit.
var rules = []rule{
	{models.CapForecasting, []string{"forecast", "projected", "projection", "predict", "next quarter", "next year", "will be", "going to"}},
	{models.CapTimeSeries, []string{"trend", "time series", "time-series", "seasonal", "over time", "month over month", "year over year", "temporal", "monthly", "weekly", "daily"}},
	{models.CapSimulation, []string{"what-if", "what if", "simulat", "scenario"}},
	{models.CapChurn, []string{"churn", "retention", "at-risk", "at risk", "attrition", "inactive"}},
	{models.CapAnomalies, []string{"anomal", "outlier", "unusual"}},
	{models.CapCorrelation, []string{"correlat", "relationship between", "associated with"}},
	{models.CapDrivers, []string{"driver", "feature importance", "drives", "outcome model", "key factor"}},
	{models.CapSegmentation, []string{"segment", "cluster", "persona", "cohort"}},
	{models.CapValue, []string{"customer value", "lifetime value", "value concentration", "gini", "top decile", "high-value", "high value"}},
}

// Classify returns the primary capability a heading or sentence is about,
// or the empty capability for descriptive text.
func Classify(text string) models.Capability {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.capability
			}
		}
	}
	return ""
}

// Required returns every capability the text touches, in rule order.
// Returns an empty slice (never nil) when none match.
func Required(text string) []models.Capability {
	lower := strings.ToLower(text)
	out := []models.Capability{}
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, r.capability)
				break
			}
		}
	}
	return out
}
