package models

// BusinessIntelligenceSnapshot holds value, segment and churn analytics.
type BusinessIntelligenceSnapshot struct {
	Value     *ValueMetrics  `json:"value_metrics,omitempty"`
	Segments  []SegmentValue `json:"segment_value"`
	ChurnRisk *ChurnRisk     `json:"churn_risk,omitempty"`
	// MECE is true when the pipeline claims the segmentation is mutually
	// exclusive and collectively exhaustive.
	MECE bool `json:"segmentation_mece"`
}

// ValueMetrics describes the distribution of customer value.
type ValueMetrics struct {
	ValueColumn   string   `json:"value_column,omitempty"`
	Total         *float64 `json:"total_value,omitempty"`
	Avg           *float64 `json:"avg_value,omitempty"`
	Median        *float64 `json:"median_value,omitempty"`
	TopDecile     *float64 `json:"top_decile_value,omitempty"`
	Concentration *float64 `json:"concentration,omitempty"`
}

// SegmentValue is one segment's share of total value.
type SegmentValue struct {
	Segment              string  `json:"segment"`
	TotalValue           float64 `json:"total_value"`
	AvgValue             float64 `json:"avg_value"`
	Size                 int     `json:"size"`
	ValueContributionPct float64 `json:"value_contribution_pct"`
}

// ChurnRisk counts customers whose activity falls below a threshold.
type ChurnRisk struct {
	AtRiskCount          int      `json:"at_risk_count"`
	AtRiskPercentage     float64  `json:"at_risk_percentage"`
	AvgActivity          *float64 `json:"avg_activity,omitempty"`
	LowActivityThreshold *float64 `json:"low_activity_threshold,omitempty"`
	ActivityColumn       string   `json:"activity_column"`
	TotalRecords         int      `json:"total_records,omitempty"`
	EvidenceID           string   `json:"evidence_id,omitempty"`
}
