// Package grounding decides whether a governed report's claims trace to
// evidence and whether a question may be answered at all.
package grounding

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/insightgate/internal/capability"
	"github.com/kiranshivaraju/insightgate/internal/governance"
	"github.com/kiranshivaraju/insightgate/pkg/models"
)

// RunGroundingAudit audits the report's headline claim.
func RunGroundingAudit(r models.GovernedReport) models.AuditResult {
	return AuditClaim(r.Headline, r)
}

// AuditClaim audits an arbitrary claim against the report. The claim is
// grounded only if the report is not in safe-mode and at least one of the
// claim's metrics has a resolvable evidence record with source columns and a
// value inside its unit's bounds. Anything else answers UnsupportedAnswer.
func AuditClaim(c models.Claim, r models.GovernedReport) models.AuditResult {
	rec := &Recorder{}
	s := NewStream(rec)
	step := func(format string, args ...any) { _ = s.Progress(fmt.Sprintf(format, args...)) }

	res := models.AuditResult{Answer: models.UnsupportedAnswer, CitedEvidence: []string{}}

	step("Governance mode is %s", r.Governance.Mode)
	if r.Governance.Mode == models.ModeSafe {
		step("Safe-mode: no claim may be treated as grounded")
		_ = s.Complete()
		res.Trail = rec.Events()
		return res
	}

	if len(c.MetricNames) == 0 {
		step("Claim references no metrics")
	}

	for _, name := range c.MetricNames {
		m, ok := r.Extraction.Metric(name)
		if !ok {
			step("Metric %s was not extracted", name)
			continue
		}
		if m.EvidenceID == "" {
			step("Metric %s carries no evidence id", name)
			continue
		}
		if r.Evidence == nil {
			step("Metric %s cites %s but no evidence registry is available", name, m.EvidenceID)
			continue
		}
		ev, ok := r.Evidence.Lookup(m.EvidenceID)
		if !ok {
			step("Evidence %s for %s was not found", m.EvidenceID, name)
			continue
		}
		if len(ev.ColumnsUsed) == 0 {
			step("Evidence %s lists no source columns", m.EvidenceID)
			continue
		}
		if reason, ok := WithinBounds(m); !ok {
			step("Metric %s failed sanity bounds: %s", name, reason)
			continue
		}
		step("Metric %s = %s is backed by %s (%s) over %s",
			name, strconv.FormatFloat(m.Value, 'f', -1, 64), ev.EvidenceID, methodOrUnknown(ev.ComputationMethod), strings.Join(ev.ColumnsUsed, ", "))
		if !contains(res.CitedEvidence, ev.EvidenceID) {
			res.CitedEvidence = append(res.CitedEvidence, ev.EvidenceID)
		}
	}

	if len(res.CitedEvidence) > 0 {
		res.Grounded = true
		res.Answer = c.Text
		if res.Answer == "" {
			res.Answer = "Grounded"
		}
		step("Claim is grounded in %d evidence record(s)", len(res.CitedEvidence))
	} else {
		step("No metric in the claim is grounded")
	}
	_ = s.Complete()
	res.Trail = rec.Events()
	return res
}

// WithinBounds checks a metric against the bounds implied by its unit.
// It returns a short description of the violated bound when the check fails.
func WithinBounds(m models.Metric) (string, bool) {
	v := m.Value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "value is not finite", false
	}
	switch m.Unit {
	case models.UnitPercentage:
		if v < 0 || v > 100 {
			return "percentage outside [0,100]", false
		}
	case models.UnitRatio:
		if v < 0 || v > 1 {
			return "ratio outside [0,1]", false
		}
	case models.UnitScore:
		lo := 0.0
		if m.Name == models.MetricSilhouetteScore {
			lo = -1
		}
		if v < lo || v > 1 {
			return fmt.Sprintf("score outside [%s,1]", strconv.FormatFloat(lo, 'f', -1, 64)), false
		}
	case models.UnitCount:
		if v < 0 || v != math.Trunc(v) {
			return "count is negative or fractional", false
		}
	}
	return "", true
}

func methodOrUnknown(m string) string {
	if m == "" {
		return "method not recorded"
	}
	return m
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ShouldRefuseQuestion decides whether a question may be answered for the run.
// Matching is conservative: any mention of an excluded dimension refuses.
func ShouldRefuseQuestion(question string, r models.GovernedReport) models.Refusal {
	q := strings.TrimSpace(question)
	if q == "" {
		return models.Refusal{Refuse: true, Reason: "The question is empty"}
	}

	for _, c := range r.Constraints {
		if governance.MentionsDimension(q, c.Dimension) {
			reason := fmt.Sprintf("The question concerns %q, which is out of scope for this run", c.Dimension)
			if c.Detail != "" {
				reason += ": " + c.Detail
			}
			return models.Refusal{Refuse: true, Reason: reason}
		}
	}

	for _, need := range capability.Required(q) {
		if r.Governance.Suppresses(need) {
			return models.Refusal{
				Refuse: true,
				Reason: fmt.Sprintf("Answering requires %s analysis, which is suppressed for this run (%s mode)", need, r.Governance.Mode),
			}
		}
	}

	if r.Evidence == nil || r.Evidence.Len() == 0 {
		return models.Refusal{Refuse: true, Reason: "No evidence records are available for this run, so no answer can be grounded"}
	}

	return models.Refusal{}
}
