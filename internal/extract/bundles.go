package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kiranshivaraju/insightgate/pkg/models"
)

// object is a decoded JSON object of uncertain shape. Every accessor treats
// missing or mistyped fields as absent.
type object map[string]any

// decodeBundle returns the named bundle, or false when it is absent,
// malformed, or marked unavailable. Unavailable and absent are indistinguishable.
func decodeBundle(a models.RunArtifact, name string, diags *[]models.Diagnostic) (object, bool) {
	raw := bytes.TrimSpace(a.Bundle(name))
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		*diags = append(*diags, models.Diagnostic{
			Code:    models.DiagBundleMalformed,
			Field:   name,
			Message: fmt.Sprintf("bundle %s is not a JSON object: %v", name, err),
		})
		return nil, false
	}
	if obj == nil || !available(obj) {
		return nil, false
	}
	return obj, true
}

var availableStatuses = map[string]bool{
	"ok":        true,
	"success":   true,
	"complete":  true,
	"completed": true,
	"available": true,
	"valid":     true,
}

// available applies the available/valid/status gate when any of them is present.
func available(o object) bool {
	if v, ok := o["available"].(bool); ok && !v {
		return false
	}
	if v, ok := o["valid"].(bool); ok && !v {
		return false
	}
	if s, ok := o["status"].(string); ok && !availableStatuses[strings.ToLower(strings.TrimSpace(s))] {
		return false
	}
	return true
}

func (o object) sub(keys ...string) (object, bool) {
	for _, k := range keys {
		if m, ok := o[k].(map[string]any); ok {
			if !available(m) {
				return nil, false
			}
			return object(m), true
		}
	}
	return nil, false
}

func (o object) list(keys ...string) []object {
	for _, k := range keys {
		items, ok := o[k].([]any)
		if !ok {
			continue
		}
		out := make([]object, 0, len(items))
		for _, it := range items {
			if m, ok := it.(map[string]any); ok && available(m) {
				out = append(out, object(m))
			}
		}
		return out
	}
	return nil
}

func (o object) num(keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := o[k].(type) {
		case float64:
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				return v, true
			}
		case string:
			if f, ok := parseNumber(strings.TrimSuffix(strings.TrimSpace(v), "%")); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func (o object) numPtr(keys ...string) *float64 {
	if v, ok := o.num(keys...); ok {
		return &v
	}
	return nil
}

func (o object) integer(keys ...string) (int, bool) {
	v, ok := o.num(keys...)
	if !ok || v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

func (o object) str(keys ...string) string {
	for _, k := range keys {
		if s, ok := o[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func (o object) strs(keys ...string) []string {
	for _, k := range keys {
		items, ok := o[k].([]any)
		if !ok {
			continue
		}
		out := []string{}
		for _, it := range items {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

func outOfRange(field string, v float64, lo, hi float64) models.Diagnostic {
	return models.Diagnostic{
		Code:    models.DiagOutOfRange,
		Field:   field,
		Message: fmt.Sprintf("%s = %s is outside [%s, %s]; treated as unknown", field, formatFloat(v), formatFloat(lo), formatFloat(hi)),
	}
}

func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// --- business intelligence ---

func parseBusinessIntelligence(a models.RunArtifact, totalRecords int, mecetol float64, diags *[]models.Diagnostic) *models.BusinessIntelligenceSnapshot {
	obj, ok := decodeBundle(a, models.BundleBusinessIntelligence, diags)
	if !ok {
		return nil
	}

	snap := &models.BusinessIntelligenceSnapshot{
		Segments: []models.SegmentValue{},
	}
	if v, ok := obj["segmentation_mece"].(bool); ok {
		snap.MECE = v
	}
	if n, ok := obj.integer("total_records", "record_count"); ok {
		totalRecords = n
	}

	if vm, ok := obj.sub("value_metrics"); ok {
		snap.Value = &models.ValueMetrics{
			ValueColumn: vm.str("value_column", "column"),
			Total:       vm.numPtr("total_value", "total"),
			Avg:         vm.numPtr("avg_value", "average_value", "mean_value"),
			Median:      vm.numPtr("median_value", "median"),
			TopDecile:   vm.numPtr("top_decile_value", "top_10_pct_value"),
		}
		if c, ok := vm.num("concentration", "gini_coefficient", "gini"); ok {
			if inRange(c, 0, 1) {
				snap.Value.Concentration = &c
			} else {
				*diags = append(*diags, outOfRange("value_metrics.concentration", c, 0, 1))
			}
		}
	}

	for _, s := range obj.list("segment_value", "segments") {
		name := s.str("segment", "name")
		if name == "" {
			continue
		}
		pct, ok := s.num("value_contribution_pct", "contribution_pct")
		if !ok {
			continue
		}
		total, _ := s.num("total_value")
		avg, _ := s.num("avg_value")
		size, _ := s.integer("size", "count")
		snap.Segments = append(snap.Segments, models.SegmentValue{
			Segment:              name,
			TotalValue:           total,
			AvgValue:             avg,
			Size:                 size,
			ValueContributionPct: pct,
		})
	}

	if snap.MECE {
		if sum, ok := CheckMECE(snap.Segments, mecetol); !ok {
			*diags = append(*diags, models.Diagnostic{
				Code:  models.DiagMECEViolation,
				Field: "segment_value.value_contribution_pct",
				Message: fmt.Sprintf("segmentation is claimed MECE but contributions sum to %s (tolerance ±%s)",
					formatFloat(math.Round(sum*100)/100), formatFloat(mecetol)),
			})
		}
	}

	if cr, ok := obj.sub("churn_risk"); ok {
		snap.ChurnRisk = parseChurnRisk(cr, totalRecords, obj.str("evidence_id"), diags)
	}

	return snap
}

func parseChurnRisk(cr object, totalRecords int, fallbackEvidence string, diags *[]models.Diagnostic) *models.ChurnRisk {
	count, hasCount := cr.integer("at_risk_count")
	pct, hasPct := cr.num("at_risk_percentage", "at_risk_pct")
	if n, ok := cr.integer("total_records", "record_count"); ok {
		totalRecords = n
	}

	if !hasPct && hasCount && totalRecords > 0 {
		pct = float64(count) / float64(totalRecords) * 100
		hasPct = true
	}
	if !hasCount && hasPct && totalRecords > 0 {
		count = int(math.Round(pct / 100 * float64(totalRecords)))
		hasCount = true
	}
	if !hasCount || !hasPct {
		return nil
	}
	if !inRange(pct, 0, 100) {
		*diags = append(*diags, outOfRange("churn_risk.at_risk_percentage", pct, 0, 100))
	}

	evidenceID := cr.str("evidence_id")
	if evidenceID == "" {
		evidenceID = fallbackEvidence
	}

	return &models.ChurnRisk{
		AtRiskCount:          count,
		AtRiskPercentage:     pct,
		AvgActivity:          cr.numPtr("avg_activity", "average_activity"),
		LowActivityThreshold: cr.numPtr("low_activity_threshold", "threshold"),
		ActivityColumn:       cr.str("activity_column", "column"),
		TotalRecords:         totalRecords,
		EvidenceID:           evidenceID,
	}
}

// CheckMECE sums segment contributions and reports whether the sum is within
// tolerance percentage points of 100. An empty segmentation never passes.
func CheckMECE(segments []models.SegmentValue, tolerance float64) (float64, bool) {
	if len(segments) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range segments {
		sum += s.ValueContributionPct
	}
	return sum, math.Abs(sum-100) <= tolerance+1e-9
}

// --- cluster metrics ---

func parseClusterMetrics(a models.RunArtifact, diags *[]models.Diagnostic) (*models.ClusterMetric, string) {
	obj, ok := decodeBundle(a, models.BundleClusterMetrics, diags)
	if !ok {
		return nil, ""
	}
	k, ok := obj.integer("k", "n_clusters", "segment_count")
	if !ok {
		return nil, ""
	}

	cm := &models.ClusterMetric{K: k}
	if s, ok := obj.num("silhouette_score", "silhouette"); ok {
		if inRange(s, -1, 1) {
			cm.SilhouetteScore = &s
		} else {
			*diags = append(*diags, outOfRange("cluster_metrics.silhouette_score", s, -1, 1))
		}
	}
	if q, ok := obj.num("data_quality", "data_quality_score"); ok {
		if inRange(q, 0, 1) {
			cm.DataQuality = &q
		} else {
			*diags = append(*diags, outOfRange("cluster_metrics.data_quality", q, 0, 1))
		}
	}
	return cm, obj.str("evidence_id")
}

// --- outcome model ---

func parseOutcome(a models.RunArtifact, diags *[]models.Diagnostic) *models.OutcomeModel {
	fit, ok := decodeBundle(a, models.BundleModelFit, diags)
	if !ok {
		return nil
	}

	candidate := fit
	if fits := fit.list("models"); len(fits) > 0 {
		candidate = nil
		for _, m := range fits {
			if m.str("target") != "" {
				if _, ok := m.num("r2", "r2_score"); ok {
					candidate = m
					break
				}
			}
		}
		if candidate == nil {
			return nil
		}
	}

	target := candidate.str("target", "target_column")
	r2, ok := candidate.num("r2", "r2_score")
	if target == "" || !ok {
		return nil
	}

	om := &models.OutcomeModel{
		Target:  target,
		R2:      r2,
		RMSE:    candidate.numPtr("rmse"),
		MAE:     candidate.numPtr("mae"),
		Drivers: parseDrivers(candidate),
	}
	if len(om.Drivers) == 0 {
		if fi, ok := decodeBundle(a, models.BundleFeatureImportance, diags); ok {
			if t := fi.str("target"); t == "" || t == target {
				om.Drivers = parseDrivers(fi)
			}
		}
	}
	return om
}

// parseDrivers reads either a list of {feature, importance} or a feature→importance map.
// List order is preserved; map entries are ordered by importance descending.
func parseDrivers(o object) []models.Driver {
	drivers := []models.Driver{}
	for _, d := range o.list("drivers", "features", "feature_importance") {
		name := d.str("feature", "name", "column")
		imp, ok := d.num("importance", "score", "value")
		if name == "" || !ok {
			continue
		}
		drivers = append(drivers, models.Driver{Feature: name, Importance: imp})
	}
	if len(drivers) > 0 {
		return drivers
	}

	for _, key := range []string{"importances", "drivers", "feature_importance"} {
		m, ok := o[key].(map[string]any)
		if !ok {
			continue
		}
		for name, v := range m {
			if f, ok := v.(float64); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
				drivers = append(drivers, models.Driver{Feature: name, Importance: f})
			}
		}
		sort.Slice(drivers, func(i, j int) bool {
			if drivers[i].Importance != drivers[j].Importance {
				return drivers[i].Importance > drivers[j].Importance
			}
			return drivers[i].Feature < drivers[j].Feature
		})
		break
	}
	return drivers
}

// --- distribution analysis ---

func parseDistribution(a models.RunArtifact, diags *[]models.Diagnostic) (*models.Anomaly, []models.ColumnDistribution) {
	dists := []models.ColumnDistribution{}
	obj, ok := decodeBundle(a, models.BundleDistribution, diags)
	if !ok {
		return nil, dists
	}

	var anomaly *models.Anomaly
	if an, ok := obj.sub("anomalies", "anomaly_detection"); ok {
		if count, ok := an.integer("count", "anomaly_count"); ok {
			anomaly = &models.Anomaly{Count: count, Drivers: []models.AnomalyDriver{}}
			for _, d := range an.list("drivers", "top_fields") {
				field := d.str("field", "feature", "column")
				score, ok := d.num("score", "contribution")
				if field == "" || !ok {
					continue
				}
				if !inRange(score, 0, 1) {
					*diags = append(*diags, outOfRange("anomalies.drivers."+field, score, 0, 1))
					continue
				}
				anomaly.Drivers = append(anomaly.Drivers, models.AnomalyDriver{Field: field, Score: score})
			}
		}
	}

	if cols, ok := obj["columns"].(map[string]any); ok {
		names := make([]string, 0, len(cols))
		for name := range cols {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if m, ok := cols[name].(map[string]any); ok && available(m) {
				dists = append(dists, parseColumnDistribution(name, object(m)))
			}
		}
	} else {
		for _, c := range obj.list("columns") {
			if name := c.str("column", "name"); name != "" {
				dists = append(dists, parseColumnDistribution(name, c))
			}
		}
	}

	return anomaly, dists
}

func parseColumnDistribution(name string, o object) models.ColumnDistribution {
	cd := models.ColumnDistribution{
		Column: name,
		Mean:   o.numPtr("mean"),
		Std:    o.numPtr("std", "stddev"),
	}
	if cd.Std != nil && *cd.Std < 0 {
		cd.Std = nil
	}
	for _, b := range o.list("histogram", "bins") {
		lo, okLo := b.num("lower", "min")
		hi, okHi := b.num("upper", "max")
		n, okN := b.num("count")
		if !okLo || !okHi || !okN || hi <= lo || n < 0 {
			continue
		}
		cd.Histogram = append(cd.Histogram, models.HistogramBin{Lower: lo, Upper: hi, Count: n})
	}
	sort.Slice(cd.Histogram, func(i, j int) bool { return cd.Histogram[i].Lower < cd.Histogram[j].Lower })
	return cd
}

// --- correlation analysis ---

func parseCorrelations(a models.RunArtifact, diags *[]models.Diagnostic) []models.Correlation {
	out := []models.Correlation{}
	obj, ok := decodeBundle(a, models.BundleCorrelation, diags)
	if !ok {
		return out
	}
	for _, p := range obj.list("pairs", "correlations", "top_correlations") {
		x := p.str("a", "feature_1", "x")
		y := p.str("b", "feature_2", "y")
		r, ok := p.num("coefficient", "correlation", "r")
		if x == "" || y == "" || !ok {
			continue
		}
		if !inRange(r, -1, 1) {
			*diags = append(*diags, outOfRange(fmt.Sprintf("correlation.%s~%s", x, y), r, -1, 1))
			continue
		}
		out = append(out, models.Correlation{A: x, B: y, Coefficient: r})
	}
	return out
}

// --- dataset identity ---

type datasetIdentity struct {
	temporal bool
	rowCount int
}

func parseDatasetIdentity(a models.RunArtifact, diags *[]models.Diagnostic) datasetIdentity {
	var id datasetIdentity
	obj, ok := decodeBundle(a, models.BundleDatasetIdentity, diags)
	if !ok {
		return id
	}
	if len(obj.strs("temporal_fields", "datetime_columns")) > 0 || obj.str("temporal_field", "time_column") != "" {
		id.temporal = true
	}
	if v, ok := obj["has_temporal"].(bool); ok && v {
		id.temporal = true
	}
	if n, ok := obj.integer("row_count", "rows", "record_count"); ok {
		id.rowCount = n
	}
	return id
}
