package governance

import (
	"fmt"
	"math"
	"strconv"

	"github.com/kiranshivaraju/insightgate/internal/config"
	"github.com/kiranshivaraju/insightgate/internal/evidence"
	"github.com/kiranshivaraju/insightgate/internal/extract"
	"github.com/kiranshivaraju/insightgate/pkg/models"
)

// Govern extracts the artifact, indexes its evidence and gates the result.
// Callers that want extraction and indexing to run concurrently can do so
// themselves and call Assemble.
func Govern(a models.RunArtifact, th config.Thresholds) models.GovernedReport {
	ex := extract.Extract(a, th)
	reg, regDiags := evidence.Parse(a.Evidence)
	return Assemble(a, ex, reg, regDiags, th)
}

// Assemble gates an extraction that has already been produced for a.
func Assemble(a models.RunArtifact, ex models.Extraction, reg models.EvidenceLookup, regDiags []models.Diagnostic, th config.Thresholds) models.GovernedReport {
	constraints := a.Contract.ScopeConstraints()

	evidenceCount := 0
	if reg != nil {
		evidenceCount = reg.Len()
	}

	st := Evaluate(Input{
		Metrics:          ex.Metrics,
		ConfidenceScore:  a.Confidence.Score,
		Validation:       a.Confidence.Validation,
		Constraints:      constraints,
		TemporalDetected: ex.TemporalDetected,
		EvidenceCount:    evidenceCount,
	}, th)

	diags := make([]models.Diagnostic, 0, len(ex.Diagnostics)+len(regDiags))
	diags = append(diags, ex.Diagnostics...)
	diags = append(diags, regDiags...)

	return models.GovernedReport{
		RunID:           a.RunID,
		Extraction:      ex,
		Governance:      st,
		ConfidenceScore: a.Confidence.Score,
		ConfidenceBand:  string(ConfidenceBand(a.Confidence.Score, th)),
		Constraints:     constraints,
		Sections:        AnnotateSections(FilterSections(ex.Sections, st), constraints),
		Headline:        HeadlineClaim(ex),
		Evidence:        reg,
		Diagnostics:     diags,
	}
}

// headlineOrder is the preference order for the metric a report leads with.
var headlineOrder = []string{
	models.MetricAtRiskPercentage,
	models.MetricValueConcentration,
	models.MetricAnomalyCount,
	models.MetricSilhouetteScore,
	models.MetricDataQuality,
	models.MetricConfidenceLevel,
}

// HeadlineClaim derives the report's leading claim from the first available
// metric in preference order. It returns an empty claim when no metric exists.
func HeadlineClaim(ex models.Extraction) models.Claim {
	for _, name := range headlineOrder {
		m, ok := ex.Metric(name)
		if !ok {
			continue
		}
		return models.Claim{Text: claimText(ex, m), MetricNames: []string{m.Name}}
	}
	return models.Claim{MetricNames: []string{}}
}

func claimText(ex models.Extraction, m models.Metric) string {
	v := strconv.FormatFloat(math.Round(m.Value*100)/100, 'f', -1, 64)
	switch m.Name {
	case models.MetricAtRiskPercentage:
		if ex.BusinessIntelligence != nil && ex.BusinessIntelligence.ChurnRisk != nil {
			cr := ex.BusinessIntelligence.ChurnRisk
			if cr.ActivityColumn != "" {
				return fmt.Sprintf("%s%% of customers (%d) are at risk of churn based on %s", v, cr.AtRiskCount, cr.ActivityColumn)
			}
			return fmt.Sprintf("%s%% of customers (%d) are at risk of churn", v, cr.AtRiskCount)
		}
		return fmt.Sprintf("%s%% of customers are at risk of churn", v)
	case models.MetricValueConcentration:
		return fmt.Sprintf("Customer value concentration (Gini) is %s", v)
	case models.MetricAnomalyCount:
		return fmt.Sprintf("%s anomalous records were detected", v)
	case models.MetricSilhouetteScore:
		return fmt.Sprintf("The segmentation has a silhouette score of %s", v)
	case models.MetricDataQuality:
		return fmt.Sprintf("Data quality score is %s%%", v)
	default:
		return fmt.Sprintf("%s is %s", m.Name, v)
	}
}
