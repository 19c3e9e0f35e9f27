// Package report loads run artifacts and serves governed views of them.
package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/insightgate/internal/cache"
	"github.com/kiranshivaraju/insightgate/internal/config"
	"github.com/kiranshivaraju/insightgate/internal/evidence"
	"github.com/kiranshivaraju/insightgate/internal/extract"
	"github.com/kiranshivaraju/insightgate/internal/governance"
	"github.com/kiranshivaraju/insightgate/internal/grounding"
	"github.com/kiranshivaraju/insightgate/internal/pipeline"
	"github.com/kiranshivaraju/insightgate/internal/simulation"
	"github.com/kiranshivaraju/insightgate/internal/store"
	"github.com/kiranshivaraju/insightgate/internal/telemetry"
	"github.com/kiranshivaraju/insightgate/pkg/models"
	"golang.org/x/sync/errgroup"
)

var (
	ErrRunNotFound      = errors.New("run not found")
	ErrRunExists        = errors.New("run already exists")
	ErrEvidenceNotFound = errors.New("evidence not found")
)

// Service orchestrates artifact loading, governance, auditing and simulation.
// It holds no per-run state; every call derives its views from the stored inputs.
type Service struct {
	store    store.Store
	cache    cache.Cache
	pipeline pipeline.Client
	th       config.Thresholds
	cacheTTL time.Duration
	now      func() time.Time
}

// NewService creates a new Service. pc may be nil, in which case runs must be ingested.
func NewService(st store.Store, ca cache.Cache, pc pipeline.Client, th config.Thresholds, cacheTTL time.Duration) *Service {
	return &Service{
		store:    st,
		cache:    ca,
		pipeline: pc,
		th:       th,
		cacheTTL: cacheTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AuditOutcome is one persisted grounding audit.
type AuditOutcome struct {
	AuditID uuid.UUID          `json:"audit_id"`
	RunID   uuid.UUID          `json:"run_id"`
	Result  models.AuditResult `json:"result"`
}

// Ingest stores a run pushed by a client.
func (s *Service) Ingest(ctx context.Context, run *models.RunArtifact) error {
	if run.RunID == uuid.Nil {
		run.RunID = uuid.New()
	}
	now := s.now()
	run.CreatedAt = now
	run.UpdatedAt = now

	if err := s.store.CreateRun(ctx, run); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return fmt.Errorf("%w: %s", ErrRunExists, run.RunID)
		}
		return fmt.Errorf("storing run: %w", err)
	}
	telemetry.ObserveArtifactLoad(telemetry.SourceIngest)
	s.cacheRun(ctx, run)
	return nil
}

// Load returns the run's inputs, trying the cache, then the store, then the pipeline.
// A run fetched from the pipeline is persisted so later reads are served locally.
func (s *Service) Load(ctx context.Context, tenantID, runID uuid.UUID) (*models.RunArtifact, error) {
	run, found, err := s.cache.GetRunArtifact(ctx, tenantID, runID)
	if err != nil {
		slog.Warn("artifact cache read failed", "error", err, "run_id", runID)
	}
	if found {
		telemetry.ObserveArtifactLoad(telemetry.SourceCache)
		return run, nil
	}

	run, err = s.store.GetRun(ctx, runID, tenantID)
	if err == nil {
		telemetry.ObserveArtifactLoad(telemetry.SourceStore)
		s.cacheRun(ctx, run)
		return run, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading run: %w", err)
	}

	if s.pipeline == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	run, err = s.pipeline.FetchArtifact(ctx, runID)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("fetching run from pipeline: %w", err)
	}
	telemetry.ObserveArtifactLoad(telemetry.SourcePipeline)

	run.TenantID = tenantID
	now := s.now()
	run.CreatedAt = now
	run.UpdatedAt = now
	if err := s.store.CreateRun(ctx, run); err != nil && !errors.Is(err, store.ErrDuplicateKey) {
		slog.Warn("persisting pipeline run failed", "error", err, "run_id", runID)
	}
	s.cacheRun(ctx, run)
	return run, nil
}

// Report returns the governed view of a run.
func (s *Service) Report(ctx context.Context, tenantID, runID uuid.UUID) (models.GovernedReport, error) {
	run, err := s.Load(ctx, tenantID, runID)
	if err != nil {
		return models.GovernedReport{}, err
	}
	return s.govern(ctx, *run)
}

// Audit runs a grounding audit and persists its reasoning trail. A nil claim
// audits the report's headline.
func (s *Service) Audit(ctx context.Context, tenantID, runID uuid.UUID, claim *models.Claim) (*AuditOutcome, error) {
	r, err := s.Report(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}

	var res models.AuditResult
	if claim == nil {
		res = grounding.RunGroundingAudit(r)
	} else {
		res = grounding.AuditClaim(*claim, r)
	}
	telemetry.ObserveAudit(res)

	out := &AuditOutcome{AuditID: uuid.New(), RunID: runID, Result: res}

	now := s.now()
	events := make([]*models.AuditEvent, 0, len(res.Trail))
	for _, ev := range res.Trail {
		events = append(events, &models.AuditEvent{
			ID:        uuid.New(),
			AuditID:   out.AuditID,
			RunID:     runID,
			TenantID:  tenantID,
			Seq:       ev.Index,
			Type:      ev.Type,
			Step:      ev.Step,
			CreatedAt: now,
		})
	}
	if err := s.store.CreateAuditEvents(ctx, events); err != nil {
		return nil, fmt.Errorf("storing audit trail: %w", err)
	}

	return out, nil
}

// AuditTrail returns every persisted reasoning event for a run.
func (s *Service) AuditTrail(ctx context.Context, tenantID, runID uuid.UUID) ([]*models.AuditEvent, error) {
	if _, err := s.Load(ctx, tenantID, runID); err != nil {
		return nil, err
	}
	events, err := s.store.ListAuditEvents(ctx, runID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing audit trail: %w", err)
	}
	return events, nil
}

// Question decides whether a question may be answered for a run.
func (s *Service) Question(ctx context.Context, tenantID, runID uuid.UUID, question string) (models.Refusal, error) {
	r, err := s.Report(ctx, tenantID, runID)
	if err != nil {
		return models.Refusal{}, err
	}
	ref := grounding.ShouldRefuseQuestion(question, r)
	telemetry.ObserveQuestion(ref)
	if ref.Refuse {
		slog.Info("question refused", "run_id", runID, "reason", ref.Reason)
	}
	return ref, nil
}

// Simulate scores a what-if scenario against the run's baseline. Results are
// cached per normalized scenario.
func (s *Service) Simulate(ctx context.Context, tenantID, runID uuid.UUID, entries []models.ScenarioEntry) (*models.SimulationResult, error) {
	sc := simulation.NewScenario(s.th)
	for _, e := range entries {
		if err := sc.Set(e.TargetColumn, e.ModificationFactor); err != nil {
			telemetry.ObserveSimulation(telemetry.SimulationRejected)
			return nil, err
		}
	}
	if sc.Len() == 0 {
		telemetry.ObserveSimulation(telemetry.SimulationRejected)
		return nil, simulation.ErrNoScenario
	}

	key := cache.SimulationKey(tenantID, runID, scenarioHash(sc.Entries()))
	if data, found, err := s.cache.Get(ctx, key); err == nil && found {
		var cached models.SimulationResult
		if json.Unmarshal(data, &cached) == nil {
			telemetry.ObserveSimulation(telemetry.SimulationOK)
			return &cached, nil
		}
	}

	r, err := s.Report(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}

	res, err := simulation.Simulate(simulation.BaselineFrom(r.Extraction), sc.Entries(), s.th)
	if err != nil {
		telemetry.ObserveSimulation(telemetry.SimulationRejected)
		return nil, err
	}
	telemetry.ObserveSimulation(telemetry.SimulationOK)

	if data, err := json.Marshal(res); err == nil {
		if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
			slog.Warn("simulation cache write failed", "error", err, "run_id", runID)
		}
	}
	return res, nil
}

// Evidence resolves one evidence record of a run.
func (s *Service) Evidence(ctx context.Context, tenantID, runID uuid.UUID, evidenceID string) (models.EvidenceRecord, error) {
	run, err := s.Load(ctx, tenantID, runID)
	if err != nil {
		return models.EvidenceRecord{}, err
	}
	reg, _ := evidence.Parse(run.Evidence)
	rec, ok := reg.Lookup(evidenceID)
	if !ok {
		return models.EvidenceRecord{}, fmt.Errorf("%w: %s", ErrEvidenceNotFound, evidenceID)
	}
	return rec, nil
}

// ListRuns returns stored run summaries for a tenant.
func (s *Service) ListRuns(ctx context.Context, filter store.RunFilter) ([]*models.RunSummary, int, error) {
	runs, total, err := s.store.ListRuns(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("listing runs: %w", err)
	}
	return runs, total, nil
}

// govern runs the extractor and the evidence registry concurrently, each on
// its own copy of the inputs, then applies the gate.
func (s *Service) govern(ctx context.Context, run models.RunArtifact) (models.GovernedReport, error) {
	start := time.Now()

	var (
		ex       models.Extraction
		reg      *evidence.Registry
		regDiags []models.Diagnostic
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		ex = extract.Extract(run, s.th)
		return nil
	})
	raw := append(json.RawMessage(nil), run.Evidence...)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		reg, regDiags = evidence.Parse(raw)
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.GovernedReport{}, fmt.Errorf("governing run %s: %w", run.RunID, err)
	}

	r := governance.Assemble(run, ex, reg, regDiags, s.th)

	for _, d := range r.Diagnostics {
		slog.Warn("run diagnostic", "run_id", run.RunID, "code", d.Code, "field", d.Field, "message", d.Message)
	}
	telemetry.ObserveGovernance(r, time.Since(start))

	return r, nil
}

func (s *Service) cacheRun(ctx context.Context, run *models.RunArtifact) {
	if err := s.cache.SetRunArtifact(ctx, run, s.cacheTTL); err != nil {
		slog.Warn("artifact cache write failed", "error", err, "run_id", run.RunID)
	}
}

func scenarioHash(entries []models.ScenarioEntry) string {
	data, _ := json.Marshal(entries)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
