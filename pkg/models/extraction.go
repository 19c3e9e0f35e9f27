package models

// Extraction is the typed, best-effort view of a RunArtifact.
// Optional entities are nil when they could not be parsed.
type Extraction struct {
	Metrics              []Metric                      `json:"metrics"`
	Sections             []Section                     `json:"sections"`
	Personas             []Persona                     `json:"personas"`
	Cluster              *ClusterMetric                `json:"cluster,omitempty"`
	Outcome              *OutcomeModel                 `json:"outcome,omitempty"`
	Anomaly              *Anomaly                      `json:"anomaly,omitempty"`
	Correlations         []Correlation                 `json:"correlations"`
	BusinessIntelligence *BusinessIntelligenceSnapshot `json:"business_intelligence,omitempty"`
	Distributions        []ColumnDistribution          `json:"distributions"`
	TemporalDetected     bool                          `json:"temporal_detected"`
	Diagnostics          []Diagnostic                  `json:"diagnostics"`
}

// Metric returns the named metric, distinguishing absence from a zero value.
func (e Extraction) Metric(name string) (Metric, bool) {
	for _, m := range e.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// Distribution returns the reported distribution for a column.
func (e Extraction) Distribution(column string) (ColumnDistribution, bool) {
	for _, d := range e.Distributions {
		if d.Column == column {
			return d, true
		}
	}
	return ColumnDistribution{}, false
}
