package models

// SectionLevel distinguishes top-level headings from nested ones.
type SectionLevel string

const (
	SectionTop SectionLevel = "top"
	SectionSub SectionLevel = "sub"
)

// Section is a titled span of narrative text, in document order.
type Section struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Level       SectionLevel `json:"level"`
	Body        string       `json:"body"`
	Capability  Capability   `json:"capability,omitempty"`
	Limitations []string     `json:"limitations,omitempty"`
}

// Persona is a named customer archetype described in the narrative.
type Persona struct {
	Name        string   `json:"name"`
	Size        *int     `json:"size,omitempty"`
	SharePct    *float64 `json:"share_pct,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ClusterMetric summarises the segmentation fit.
// A nil SilhouetteScore means the reported value was outside [-1,1].
type ClusterMetric struct {
	K               int      `json:"k"`
	SilhouetteScore *float64 `json:"silhouette_score,omitempty"`
	DataQuality     *float64 `json:"data_quality,omitempty"`
}

// Driver is one independently reported feature importance.
type Driver struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// OutcomeModel describes a fitted model for one target column.
// Driver importances are not a partition and need not sum to 1.
type OutcomeModel struct {
	Target  string   `json:"target"`
	R2      float64  `json:"r2"`
	RMSE    *float64 `json:"rmse,omitempty"`
	MAE     *float64 `json:"mae,omitempty"`
	Drivers []Driver `json:"drivers"`
}

// AnomalyDriver attributes anomalies to a field with a score in [0,1].
type AnomalyDriver struct {
	Field string  `json:"field"`
	Score float64 `json:"score"`
}

// Anomaly summarises anomaly detection output.
type Anomaly struct {
	Count   int             `json:"count"`
	Drivers []AnomalyDriver `json:"drivers"`
}

// Correlation is a pairwise coefficient in [-1,1].
type Correlation struct {
	A           string  `json:"a"`
	B           string  `json:"b"`
	Coefficient float64 `json:"coefficient"`
}

// ColumnDistribution describes a numeric column's shape as reported by the pipeline.
type ColumnDistribution struct {
	Column    string         `json:"column"`
	Mean      *float64       `json:"mean,omitempty"`
	Std       *float64       `json:"std,omitempty"`
	Histogram []HistogramBin `json:"histogram,omitempty"`
}

// HistogramBin counts records with values in [Lower, Upper).
type HistogramBin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count float64 `json:"count"`
}
