package models

import "github.com/google/uuid"

// Mode is the governance mode of a run.
type Mode string

const (
	ModeNormal      Mode = "normal"
	ModeLimitations Mode = "limitations"
	ModeSafe        Mode = "safe-mode"
)

// Rank orders modes from least to most restrictive.
func (m Mode) Rank() int {
	switch m {
	case ModeLimitations:
		return 1
	case ModeSafe:
		return 2
	default:
		return 0
	}
}

// Capability tags an analysis capability that governance may suppress.
type Capability string

const (
	CapTimeSeries   Capability = "time-series"
	CapForecasting  Capability = "forecasting"
	CapSegmentation Capability = "segmentation"
	CapChurn        Capability = "churn"
	CapDrivers      Capability = "drivers"
	CapAnomalies    Capability = "anomalies"
	CapCorrelation  Capability = "correlation"
	CapValue        Capability = "value"
	CapSimulation   Capability = "simulation"
)

// AllCapabilities lists every capability tag in a stable order.
var AllCapabilities = []Capability{
	CapTimeSeries,
	CapForecasting,
	CapSegmentation,
	CapChurn,
	CapDrivers,
	CapAnomalies,
	CapCorrelation,
	CapValue,
	CapSimulation,
}

// GovernanceState is derived fresh on every evaluation and never stored.
type GovernanceState struct {
	Mode                   Mode         `json:"mode"`
	Reasons                []string     `json:"reasons"`
	SuppressedCapabilities []Capability `json:"suppressed_capabilities"`
	// AllowedSections is nil unless the mode restricts output to a fixed allow-list.
	AllowedSections []string `json:"allowed_sections,omitempty"`
}

// Suppresses reports whether the capability is suppressed.
func (s GovernanceState) Suppresses(c Capability) bool {
	for _, sc := range s.SuppressedCapabilities {
		if sc == c {
			return true
		}
	}
	return false
}

// Claim is a natural-language statement backed by named metrics.
type Claim struct {
	Text        string   `json:"text"`
	MetricNames []string `json:"metric_names"`
}

// GovernedReport is the gate's view of one run, handed to the auditor.
type GovernedReport struct {
	RunID           uuid.UUID         `json:"run_id"`
	Extraction      Extraction        `json:"extraction"`
	Governance      GovernanceState   `json:"governance"`
	ConfidenceScore float64           `json:"confidence_score"`
	ConfidenceBand  string            `json:"confidence_band"`
	Constraints     []ScopeConstraint `json:"scope_constraints"`
	Sections        []Section         `json:"sections"`
	Headline        Claim             `json:"headline"`
	Evidence        EvidenceLookup    `json:"-"`
	Diagnostics     []Diagnostic      `json:"diagnostics"`
}

// UnsupportedAnswer is returned for any claim that fails the grounding audit.
const UnsupportedAnswer = "Unsupported"

// AuditResult is the outcome of a grounding audit.
type AuditResult struct {
	Grounded      bool             `json:"grounded"`
	Answer        string           `json:"answer"`
	CitedEvidence []string         `json:"cited_evidence,omitempty"`
	Trail         []ReasoningEvent `json:"trail"`
}

// Refusal is the decision on whether a question may be answered.
type Refusal struct {
	Refuse bool   `json:"refuse"`
	Reason string `json:"reason,omitempty"`
}

// ReasoningEventType is the kind of a reasoning stream event.
type ReasoningEventType string

const (
	EventProgress ReasoningEventType = "progress"
	EventComplete ReasoningEventType = "complete"
)

// ReasoningEvent is one step of an audit's reasoning stream.
type ReasoningEvent struct {
	Type  ReasoningEventType `json:"type"`
	Index int                `json:"index"`
	Step  string             `json:"step,omitempty"`
}
