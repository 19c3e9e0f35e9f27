// Package models contains shared data models used across the InsightGate codebase.
package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Named analytics bundles carried by a RunArtifact.
const (
	BundleBusinessIntelligence = "business_intelligence"
	BundleCorrelation          = "correlation_analysis"
	BundleDistribution         = "distribution_analysis"
	BundleClusterMetrics       = "cluster_metrics"
	BundleFeatureImportance    = "feature_importance"
	BundleModelFit             = "model_fit_report"
	BundleDatasetIdentity      = "dataset_identity"
)

// RunArtifact is the immutable input for one analysis run: the narrative report
// plus the loosely-typed JSON bundles the pipeline produced alongside it.
// All other entities are derived views over it.
type RunArtifact struct {
	RunID      uuid.UUID                  `db:"id"          json:"run_id"`
	TenantID   uuid.UUID                  `db:"tenant_id"   json:"tenant_id"`
	Narrative  string                     `db:"narrative"   json:"narrative"`
	Bundles    map[string]json.RawMessage `db:"bundles"     json:"bundles"`
	Contract   TaskContract               `db:"contract"    json:"task_contract"`
	Confidence ConfidenceReport           `db:"confidence"  json:"confidence"`
	Evidence   json.RawMessage            `db:"evidence"    json:"evidence,omitempty"`
	CreatedAt  time.Time                  `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time                  `db:"updated_at"  json:"updated_at"`
}

// Bundle returns the raw bundle by name, or nil when it was not supplied.
func (a *RunArtifact) Bundle(name string) json.RawMessage {
	if a.Bundles == nil {
		return nil
	}
	return a.Bundles[name]
}

// TaskContract declares what the run was asked to answer and which
// dimensions it must not speak to.
type TaskContract struct {
	PrimaryQuestion      string            `json:"primary_question"`
	OutOfScopeDimensions []string          `json:"out_of_scope_dimensions"`
	Constraints          []ScopeConstraint `json:"constraints,omitempty"`
}

// ScopeConstraint is a declared exclusion from the task contract.
type ScopeConstraint struct {
	Dimension string `json:"dimension"`
	Title     string `json:"title"`
	Detail    string `json:"detail"`
}

// ScopeConstraints merges the detailed constraints with bare dimension names,
// so every excluded dimension appears exactly once regardless of case.
func (c TaskContract) ScopeConstraints() []ScopeConstraint {
	out := make([]ScopeConstraint, 0, len(c.Constraints)+len(c.OutOfScopeDimensions))
	seen := make(map[string]bool)
	for _, sc := range c.Constraints {
		key := strings.ToLower(strings.TrimSpace(sc.Dimension))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if sc.Title == "" {
			sc.Title = sc.Dimension
		}
		out = append(out, sc)
	}
	for _, d := range c.OutOfScopeDimensions {
		key := strings.ToLower(strings.TrimSpace(d))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ScopeConstraint{
			Dimension: d,
			Title:     d,
			Detail:    "Excluded by the task contract",
		})
	}
	return out
}

// ConfidenceReport is the pipeline's own assessment of the input data.
type ConfidenceReport struct {
	Score      float64               `json:"score"      validate:"gte=0,lte=1"`
	Validation ValidationDiagnostics `json:"validation"`
}

// ValidationDiagnostics lists why the pipeline's validation step objected to the data.
type ValidationDiagnostics struct {
	Reasons      []string `json:"reasons"`
	FailedFields []string `json:"failed_fields"`
}

// RunSummary is the list view of a stored run.
type RunSummary struct {
	ID              uuid.UUID `db:"id"         json:"id"`
	TenantID        uuid.UUID `db:"tenant_id"  json:"tenant_id"`
	PrimaryQuestion string    `json:"primary_question"`
	ConfidenceScore float64   `json:"confidence_score"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
