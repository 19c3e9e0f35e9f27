// Package telemetry exposes Prometheus counters for governance outcomes.
package telemetry

import (
	"strconv"
	"time"

	"github.com/kiranshivaraju/insightgate/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// governedRuns counts governed reports by resulting mode.
	governedRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insightgate_governed_runs_total",
		Help: "Governed reports by governance mode",
	}, []string{"mode"})

	// diagnostics counts extraction and registry diagnostics by code.
	diagnostics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insightgate_diagnostics_total",
		Help: "Diagnostics recorded while governing runs, by code",
	}, []string{"code"})

	audits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insightgate_grounding_audits_total",
		Help: "Grounding audits by result",
	}, []string{"result"})

	questions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insightgate_questions_total",
		Help: "Question checks by decision",
	}, []string{"decision"})

	simulations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insightgate_simulations_total",
		Help: "Simulation requests by result",
	}, []string{"result"})

	// artifactLoads counts where run artifacts were loaded from.
	artifactLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insightgate_artifact_loads_total",
		Help: "Run artifact loads by source",
	}, []string{"source"})

	governDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "insightgate_govern_duration_seconds",
		Help:    "Time to extract and govern one run",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	})
)

// Artifact sources.
const (
	SourceCache    = "cache"
	SourceStore    = "store"
	SourcePipeline = "pipeline"
	SourceIngest   = "ingest"
)

// Simulation results.
const (
	SimulationOK       = "ok"
	SimulationRejected = "rejected"
)

// ObserveGovernance records one governed report.
func ObserveGovernance(r models.GovernedReport, took time.Duration) {
	governedRuns.WithLabelValues(string(r.Governance.Mode)).Inc()
	for _, d := range r.Diagnostics {
		diagnostics.WithLabelValues(d.Code).Inc()
	}
	governDuration.Observe(took.Seconds())
}

func ObserveAudit(res models.AuditResult) {
	if res.Grounded {
		audits.WithLabelValues("grounded").Inc()
		return
	}
	audits.WithLabelValues("unsupported").Inc()
}

func ObserveQuestion(ref models.Refusal) {
	if ref.Refuse {
		questions.WithLabelValues("refused").Inc()
		return
	}
	questions.WithLabelValues("allowed").Inc()
}

func ObserveSimulation(result string) {
	simulations.WithLabelValues(result).Inc()
}

func ObserveArtifactLoad(source string) {
	artifactLoads.WithLabelValues(source).Inc()
}

var httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "insightgate_http_requests_total",
	Help: "HTTP requests by method, route pattern and status code",
}, []string{"method", "route", "status"})

// ObserveRequest records one served HTTP request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func ObserveRequest(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
