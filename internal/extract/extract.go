// Package extract turns a run's narrative and JSON bundles into typed entities.
//
// Extraction is best-effort and lossy: anything that cannot be parsed with
// confidence is left out of the result rather than defaulted, and conflicts
// are reported as diagnostics instead of being resolved. Extract never fails.
package extract

import (
	"fmt"
	"math"

	"github.com/kiranshivaraju/insightgate/internal/config"
	"github.com/kiranshivaraju/insightgate/pkg/models"
)

// Extract produces every typed entity the artifact supports.
// Slices in the result are never nil.
func Extract(a models.RunArtifact, th config.Thresholds) models.Extraction {
	diags := []models.Diagnostic{}

	metrics, d := extractNarrativeMetrics(a.Narrative)
	diags = append(diags, d...)

	sections, d := extractSections(a.Narrative)
	diags = append(diags, d...)

	// Silhouette outside [-1,1] from the narrative is an upstream bug, not a value.
	kept := metrics[:0]
	for _, m := range metrics {
		if m.Name == models.MetricSilhouetteScore && !inRange(m.Value, -1, 1) {
			diags = append(diags, outOfRange("narrative."+m.Name, m.Value, -1, 1))
			continue
		}
		kept = append(kept, m)
	}
	metrics = kept

	identity := parseDatasetIdentity(a, &diags)
	bi := parseBusinessIntelligence(a, identity.rowCount, th.MECETolerance, &diags)
	cluster, clusterEvidence := parseClusterMetrics(a, &diags)
	anomaly, dists := parseDistribution(a, &diags)

	ex := models.Extraction{
		Sections:             sections,
		Personas:             extractPersonas(sections),
		Cluster:              cluster,
		Outcome:              parseOutcome(a, &diags),
		Anomaly:              anomaly,
		Correlations:         parseCorrelations(a, &diags),
		BusinessIntelligence: bi,
		Distributions:        dists,
		TemporalDetected:     identity.temporal,
	}

	mb := metricSet{metrics: metrics, diags: &diags}
	if cluster != nil {
		if cluster.DataQuality != nil {
			mb.add(models.Metric{
				Name:       models.MetricDataQuality,
				Value:      *cluster.DataQuality * 100,
				Unit:       models.UnitPercentage,
				EvidenceID: clusterEvidence,
				Source:     models.BundleClusterMetrics,
			})
		}
		if cluster.SilhouetteScore != nil {
			mb.add(models.Metric{
				Name:       models.MetricSilhouetteScore,
				Value:      *cluster.SilhouetteScore,
				Unit:       models.UnitScore,
				EvidenceID: clusterEvidence,
				Source:     models.BundleClusterMetrics,
			})
		}
		mb.add(models.Metric{
			Name:       models.MetricSegmentCount,
			Value:      float64(cluster.K),
			Unit:       models.UnitCount,
			EvidenceID: clusterEvidence,
			Source:     models.BundleClusterMetrics,
		})
	}
	if bi != nil && bi.ChurnRisk != nil {
		cr := bi.ChurnRisk
		mb.add(models.Metric{
			Name:       models.MetricAtRiskPercentage,
			Value:      cr.AtRiskPercentage,
			Unit:       models.UnitPercentage,
			EvidenceID: cr.EvidenceID,
			Source:     models.BundleBusinessIntelligence,
		})
		mb.add(models.Metric{
			Name:       models.MetricAtRiskCount,
			Value:      float64(cr.AtRiskCount),
			Unit:       models.UnitCount,
			EvidenceID: cr.EvidenceID,
			Source:     models.BundleBusinessIntelligence,
		})
	}
	if bi != nil && bi.Value != nil && bi.Value.Concentration != nil {
		mb.add(models.Metric{
			Name:   models.MetricValueConcentration,
			Value:  *bi.Value.Concentration,
			Unit:   models.UnitRatio,
			Source: models.BundleBusinessIntelligence,
		})
	}
	if anomaly != nil {
		mb.add(models.Metric{
			Name:   models.MetricAnomalyCount,
			Value:  float64(anomaly.Count),
			Unit:   models.UnitCount,
			Source: models.BundleDistribution,
		})
	}
	if identity.rowCount > 0 {
		mb.add(models.Metric{
			Name:   models.MetricRecordsAnalyzed,
			Value:  float64(identity.rowCount),
			Unit:   models.UnitCount,
			Source: models.BundleDatasetIdentity,
		})
	}

	ex.Metrics = mb.metrics
	ex.Diagnostics = diags
	return ex
}

// metricSet keeps the first metric per name. A later metric that agrees within
// tolerance lends its evidence id to the kept one; one that disagrees is a conflict.
type metricSet struct {
	metrics []models.Metric
	diags   *[]models.Diagnostic
}

func (s *metricSet) add(m models.Metric) {
	for i := range s.metrics {
		existing := &s.metrics[i]
		if existing.Name != m.Name {
			continue
		}
		if math.Abs(existing.Value-m.Value) > conflictTolerance(m.Unit) {
			*s.diags = append(*s.diags, models.Diagnostic{
				Code:  models.DiagLabelConflict,
				Field: m.Name,
				Message: fmt.Sprintf("%s reports %s = %s but %s reported %s; keeping %s",
					m.Source, m.Name, formatFloat(m.Value), existing.Source, formatFloat(existing.Value), existing.Source),
			})
			return
		}
		if existing.EvidenceID == "" {
			existing.EvidenceID = m.EvidenceID
		}
		return
	}
	s.metrics = append(s.metrics, m)
}

// conflictTolerance absorbs display rounding between narrative and bundle values.
func conflictTolerance(u models.Unit) float64 {
	switch u {
	case models.UnitPercentage, models.UnitCount:
		return 0.5
	default:
		return 0.005
	}
}
