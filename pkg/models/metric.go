package models

// Unit is the semantic unit of a Metric value.
type Unit string

const (
	UnitPercentage Unit = "percentage"
	UnitCount      Unit = "count"
	UnitRatio      Unit = "ratio"
	UnitScore      Unit = "score"
)

// Well-known metric names produced by the extractor.
const (
	MetricDataQuality        = "data_quality_score"
	MetricConfidenceLevel    = "confidence_level"
	MetricAnomalyCount       = "anomaly_count"
	MetricRecordsAnalyzed    = "records_analyzed"
	MetricSegmentCount       = "segment_count"
	MetricAtRiskPercentage   = "at_risk_percentage"
	MetricAtRiskCount        = "at_risk_count"
	MetricSilhouetteScore    = "silhouette_score"
	MetricValueConcentration = "value_concentration"
	MetricTotalValue         = "total_value"
	MetricAvgValue           = "avg_value"
	MetricMedianValue        = "median_value"
	MetricTopDecileValue     = "top_decile_value"
)

// Metric is a named numeric fact extracted from a run.
type Metric struct {
	Name       string  `json:"name"`
	Value      float64 `json:"value"`
	Unit       Unit    `json:"unit"`
	EvidenceID string  `json:"evidence_id,omitempty"`
	Source     string  `json:"source"`
}

// Diagnostic codes.
const (
	DiagLabelConflict       = "label_conflict"
	DiagBundleMalformed     = "bundle_malformed"
	DiagOutOfRange          = "out_of_range"
	DiagMECEViolation       = "mece_violation"
	DiagDuplicateEvidenceID = "duplicate_evidence_id"
	DiagMissingEvidenceID   = "missing_evidence_id"
	DiagDuplicateSectionID  = "duplicate_section_id"
)

// Diagnostic records a parse conflict or an invariant violation.
// Diagnostics are data: they are logged and returned, never raised.
type Diagnostic struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}
