package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/insightgate/internal/api"
	"github.com/kiranshivaraju/insightgate/internal/api/handler"
	mw "github.com/kiranshivaraju/insightgate/internal/api/middleware"
	"github.com/kiranshivaraju/insightgate/internal/cache"
	"github.com/kiranshivaraju/insightgate/internal/config"
	"github.com/kiranshivaraju/insightgate/internal/report"
	"github.com/kiranshivaraju/insightgate/internal/store"
	"github.com/kiranshivaraju/insightgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ─── test fixtures ───────────────────────────────────────────────────────────

var (
	testTenantID = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	testRawKey   = "ig_test_contract_key_1234567890"
	testPrefix   = testRawKey[:8]
)

const contractNarrative = `# Customer Report

## Data Overview
Records Analyzed: 1,000

## Data Quality
Data Quality Score: 91%

## Churn Risk
Customers with fewer than two visits are at risk.

## Revenue Outlook
Not assessed.
`

func ingestBody(runID uuid.UUID, score float64) map[string]any {
	return map[string]any{
		"run_id":    runID,
		"narrative": contractNarrative,
		"bundles": map[string]any{
			models.BundleBusinessIntelligence: map[string]any{
				"total_records": 1000,
				"value_metrics": map[string]any{"value_column": "price", "total_value": 50000, "avg_value": 50, "median_value": 42, "top_decile_value": 180},
				"churn_risk":    map[string]any{"at_risk_count": 251, "low_activity_threshold": 2, "activity_column": "visits", "evidence_id": "ev_churn"},
			},
			models.BundleDatasetIdentity: map[string]any{"row_count": 1000},
		},
		"task_contract": map[string]any{
			"primary_question":        "Which customers are at risk of churn?",
			"out_of_scope_dimensions": []string{"revenue"},
		},
		"confidence": map[string]any{"score": score},
		"evidence": []map[string]any{
			{"evidence_id": "ev_churn", "computation_method": "count(visits < 2)", "columns_used": []string{"visits"}},
		},
	}
}

// ─── in-memory store ─────────────────────────────────────────────────────────

type memStore struct {
	mu     sync.Mutex
	keys   []*models.APIKey
	runs   map[uuid.UUID]*models.RunArtifact
	events []*models.AuditEvent
}

func newMemStore(t *testing.T) *memStore {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(testRawKey), bcrypt.MinCost)
	require.NoError(t, err)
	return &memStore{
		keys: []*models.APIKey{{
			ID:        uuid.New(),
			TenantID:  testTenantID,
			Name:      "test-key",
			KeyHash:   string(h),
			KeyPrefix: testPrefix,
			Scopes:    []string{models.ScopeReport, models.ScopeSimulate, models.ScopeIngest, models.ScopeAdmin},
		}},
		runs: make(map[uuid.UUID]*models.RunArtifact),
	}
}

func (s *memStore) Ping(_ context.Context) error { return nil }

func (s *memStore) GetDefaultTenant(_ context.Context) (*models.Tenant, error) {
	return &models.Tenant{ID: testTenantID, Name: "default", Slug: "default"}, nil
}

func (s *memStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *memStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

func (s *memStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return nil
}

func (s *memStore) ListAPIKeys(_ context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.APIKey{}
	for _, k := range s.keys {
		if k.TenantID == tenantID && k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *memStore) RevokeAPIKey(_ context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.ID == id && k.TenantID == tenantID && k.DeletedAt == nil {
			now := time.Now()
			k.DeletedAt = &now
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *memStore) CreateRun(_ context.Context, run *models.RunArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.RunID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *run
	s.runs[run.RunID] = &cp
	return nil
}

func (s *memStore) GetRun(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.RunArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok || r.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) ListRuns(_ context.Context, f store.RunFilter) ([]*models.RunSummary, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.RunSummary{}
	for _, r := range s.runs {
		if r.TenantID != f.TenantID {
			continue
		}
		out = append(out, &models.RunSummary{
			ID:              r.RunID,
			TenantID:        r.TenantID,
			PrimaryQuestion: r.Contract.PrimaryQuestion,
			ConfidenceScore: r.Confidence.Score,
			CreatedAt:       r.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, len(out), nil
}

func (s *memStore) CreateAuditEvents(_ context.Context, events []*models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *memStore) ListAuditEvents(_ context.Context, runID uuid.UUID, tenantID uuid.UUID) ([]*models.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.AuditEvent{}
	for _, e := range s.events {
		if e.RunID == runID && e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ store.Store = (*memStore)(nil)

// ─── in-memory cache ─────────────────────────────────────────────────────────

type memCache struct {
	mu       sync.Mutex
	data     map[string][]byte
	counters map[string]int64
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte), counters: make(map[string]int64)}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Ping(_ context.Context) error { return nil }

func (c *memCache) SetRunArtifact(ctx context.Context, run *models.RunArtifact, ttl time.Duration) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return c.Set(ctx, cache.RunArtifactKey(run.TenantID, run.RunID), data, ttl)
}

func (c *memCache) GetRunArtifact(ctx context.Context, tenantID, runID uuid.UUID) (*models.RunArtifact, bool, error) {
	data, ok, _ := c.Get(ctx, cache.RunArtifactKey(tenantID, runID))
	if !ok {
		return nil, false, nil
	}
	var run models.RunArtifact
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, false, nil
	}
	return &run, true, nil
}

func (c *memCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

var _ cache.Cache = (*memCache)(nil)

// ─── test harness ────────────────────────────────────────────────────────────

type testServer struct {
	server *httptest.Server
	store  *memStore
	cache  *memCache
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()

	ms := newMemStore(t)
	mc := newMemCache()
	svc := report.NewService(ms, mc, nil, config.DefaultThresholds(), time.Minute)

	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(ms),
		RateLimit: mw.NewRateLimit(mc, rateLimit),

		IngestRunHandler:  handler.NewIngestRunHandler(svc),
		ListRunsHandler:   handler.NewListRunsHandler(svc),
		ReportHandler:     handler.NewReportHandler(svc),
		AuditHandler:      handler.NewAuditHandler(svc),
		AuditTrailHandler: handler.NewAuditTrailHandler(svc),
		QuestionHandler:   handler.NewQuestionHandler(svc),
		SimulateHandler:   handler.NewSimulateHandler(svc),
		EvidenceHandler:   handler.NewEvidenceHandler(svc),

		CreateKeyHandler: handler.NewCreateKeyHandler(ms),
		ListKeysHandler:  handler.NewListKeysHandler(ms),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(ms),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{server: srv, store: ms, cache: mc}
}

func (ts *testServer) do(t *testing.T, method, path, key string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func parseData(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	env := struct {
		Data any `json:"data"`
	}{Data: dst}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
}

func parseErrCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env.Error.Code
}

// ─── contract tests ──────────────────────────────────────────────────────────

func TestContract_RunLifecycle(t *testing.T) {
	ts := newTestServer(t, 1000)
	runID := uuid.New()
	base := "/api/v1/runs/" + runID.String()

	// Ingest
	resp := ts.do(t, "POST", "/api/v1/runs", testRawKey, ingestBody(runID, 0.8))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, "POST", "/api/v1/runs", testRawKey, ingestBody(runID, 0.8))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Report
	resp = ts.do(t, "GET", base+"/report", testRawKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rep struct {
		RunID          uuid.UUID `json:"run_id"`
		ConfidenceBand string    `json:"confidence_band"`
		EvidenceCount  int       `json:"evidence_count"`
		Governance     struct {
			Mode    string   `json:"mode"`
			Reasons []string `json:"reasons"`
		} `json:"governance"`
		Headline models.Claim `json:"headline"`
	}
	parseData(t, resp, &rep)
	assert.Equal(t, runID, rep.RunID)
	assert.Equal(t, string(models.ModeLimitations), rep.Governance.Mode)
	assert.Contains(t, rep.Governance.Reasons, "Out of scope: revenue")
	assert.Equal(t, "high", rep.ConfidenceBand)
	assert.Equal(t, 1, rep.EvidenceCount)
	assert.Equal(t, []string{models.MetricAtRiskPercentage}, rep.Headline.MetricNames)

	// Audit and trail
	resp = ts.do(t, "POST", base+"/audit", testRawKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var audit report.AuditOutcome
	parseData(t, resp, &audit)
	assert.True(t, audit.Result.Grounded)
	assert.Equal(t, []string{"ev_churn"}, audit.Result.CitedEvidence)

	resp = ts.do(t, "GET", base+"/audit", testRawKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var trail []models.AuditEvent
	parseData(t, resp, &trail)
	require.Len(t, trail, len(audit.Result.Trail))
	assert.Equal(t, models.EventComplete, trail[len(trail)-1].Type)

	// Questions
	resp = ts.do(t, "POST", base+"/questions", testRawKey, map[string]string{"question": "How will revenue change?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ref models.Refusal
	parseData(t, resp, &ref)
	assert.True(t, ref.Refuse)

	// Simulate
	resp = ts.do(t, "POST", base+"/simulate", testRawKey, map[string]any{
		"scenario": []map[string]any{{"target_column": "price", "modification_factor": 1.2}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sim models.SimulationResult
	parseData(t, resp, &sim)
	assert.InDelta(t, 60000, sim.Delta[models.MetricTotalValue].Simulated, 1e-6)

	resp = ts.do(t, "POST", base+"/simulate", testRawKey, map[string]any{"scenario": []any{}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "NO_SCENARIO", parseErrCode(t, resp))

	resp = ts.do(t, "POST", base+"/simulate", testRawKey, map[string]any{
		"scenario": []map[string]any{{"target_column": "price", "modification_factor": 10}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "INVALID_SCENARIO", parseErrCode(t, resp))

	// Evidence
	resp = ts.do(t, "GET", base+"/evidence/ev_churn", testRawKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec models.EvidenceRecord
	parseData(t, resp, &rec)
	assert.Equal(t, []string{"visits"}, rec.ColumnsUsed)

	resp = ts.do(t, "GET", base+"/evidence/ev_nope", testRawKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// List
	resp = ts.do(t, "GET", "/api/v1/runs", testRawKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []models.RunSummary
	parseData(t, resp, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, "Which customers are at risk of churn?", runs[0].PrimaryQuestion)
}

func TestContract_SafeModeReport(t *testing.T) {
	ts := newTestServer(t, 1000)
	runID := uuid.New()

	resp := ts.do(t, "POST", "/api/v1/runs", testRawKey, ingestBody(runID, 0.08))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/v1/runs/"+runID.String()+"/report", testRawKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rep struct {
		Governance models.GovernanceState `json:"governance"`
		Sections   []models.Section       `json:"sections"`
	}
	parseData(t, resp, &rep)
	assert.Equal(t, models.ModeSafe, rep.Governance.Mode)
	assert.Equal(t, []string{"data_overview", "quality"}, rep.Governance.AllowedSections)
	for _, s := range rep.Sections {
		assert.Contains(t, []string{"data_overview", "quality"}, s.ID)
	}
}

func TestContract_UnknownRun(t *testing.T) {
	ts := newTestServer(t, 1000)

	resp := ts.do(t, "GET", "/api/v1/runs/"+uuid.NewString()+"/report", testRawKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "RUN_NOT_FOUND", parseErrCode(t, resp))
}

func TestContract_KeyLifecycle(t *testing.T) {
	ts := newTestServer(t, 1000)

	resp := ts.do(t, "POST", "/api/v1/admin/keys", testRawKey, map[string]any{
		"name":   "reader",
		"scopes": []string{models.ScopeReport},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID  uuid.UUID `json:"id"`
		Key string    `json:"key"`
	}
	parseData(t, resp, &created)
	require.True(t, strings.HasPrefix(created.Key, "ig_"))

	// The new key authenticates but carries only its own scopes.
	resp = ts.do(t, "GET", "/api/v1/runs", created.Key, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = ts.do(t, "GET", "/api/v1/admin/keys", created.Key, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, "DELETE", "/api/v1/admin/keys/"+created.ID.String(), testRawKey, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/v1/runs", created.Key, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestContract_RateLimit(t *testing.T) {
	ts := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		resp := ts.do(t, "GET", "/api/v1/runs", testRawKey, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := ts.do(t, "GET", "/api/v1/runs", testRawKey, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
}

func TestContract_Unauthenticated(t *testing.T) {
	ts := newTestServer(t, 1000)

	resp := ts.do(t, "GET", "/api/v1/runs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/v1/runs", "ig_wrong_key_000000000000", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
