package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/insightgate/internal/api"
	mw "github.com/kiranshivaraju/insightgate/internal/api/middleware"
	"github.com/kiranshivaraju/insightgate/internal/cache"
	"github.com/kiranshivaraju/insightgate/internal/store"
	"github.com/kiranshivaraju/insightgate/pkg/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- stub store: one key per scope set, looked up by prefix ---

type stubStore struct {
	keys []*models.APIKey
}

func (s *stubStore) GetDefaultTenant(_ context.Context) (*models.Tenant, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}
func (s *stubStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *stubStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *stubStore) ListAPIKeys(_ context.Context, _ uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *stubStore) RevokeAPIKey(_ context.Context, _ uuid.UUID, _ uuid.UUID) error { return nil }
func (s *stubStore) Ping(_ context.Context) error                                   { return nil }
func (s *stubStore) CreateRun(_ context.Context, _ *models.RunArtifact) error       { return nil }
func (s *stubStore) GetRun(_ context.Context, _ uuid.UUID, _ uuid.UUID) (*models.RunArtifact, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) ListRuns(_ context.Context, _ store.RunFilter) ([]*models.RunSummary, int, error) {
	return nil, 0, nil
}
func (s *stubStore) CreateAuditEvents(_ context.Context, _ []*models.AuditEvent) error { return nil }
func (s *stubStore) ListAuditEvents(_ context.Context, _ uuid.UUID, _ uuid.UUID) ([]*models.AuditEvent, error) {
	return nil, nil
}

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *stubCache) Ping(_ context.Context) error                                     { return nil }
func (c *stubCache) SetRunArtifact(_ context.Context, _ *models.RunArtifact, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetRunArtifact(_ context.Context, _, _ uuid.UUID) (*models.RunArtifact, bool, error) {
	return nil, false, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// --- router tests ---

const (
	reportKey   = "ig_rprt_0000000000000000"
	simulateKey = "ig_simu_0000000000000000"
	adminKey    = "ig_admn_0000000000000000"
)

func scopedKey(t *testing.T, raw string, scopes ...string) *models.APIKey {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.APIKey{
		ID:        uuid.New(),
		TenantID:  uuid.New(),
		KeyHash:   string(h),
		KeyPrefix: raw[:8],
		Scopes:    scopes,
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	ss := &stubStore{keys: []*models.APIKey{
		scopedKey(t, reportKey, models.ScopeReport),
		scopedKey(t, simulateKey, models.ScopeSimulate),
		scopedKey(t, adminKey, models.ScopeAdmin, models.ScopeIngest),
	}}
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(ss),
		RateLimit: mw.NewRateLimit(&stubCache{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
		MetricsHandler:   promhttp.Handler(),
		ReportHandler:    ok,
		SimulateHandler:  ok,
		IngestRunHandler: ok,
		ListKeysHandler:  ok,
	})
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_MetricsEndpoint_Public(t *testing.T) {
	router := newTestRouter(t)

	// Count one request so the route counter is present in the exposition.
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/health", nil))

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "insightgate_http_requests_total"))
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(t)
	runPath := "/api/v1/runs/" + uuid.NewString()

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/runs"},
		{"GET", "/api/v1/runs"},
		{"GET", runPath + "/report"},
		{"POST", runPath + "/audit"},
		{"GET", runPath + "/audit"},
		{"POST", runPath + "/questions"},
		{"POST", runPath + "/simulate"},
		{"GET", runPath + "/evidence/ev_1"},
		{"POST", "/api/v1/admin/keys"},
		{"GET", "/api/v1/admin/keys"},
		{"DELETE", "/api/v1/admin/keys/" + uuid.NewString()},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_ScopeEnforcement(t *testing.T) {
	router := newTestRouter(t)
	runPath := "/api/v1/runs/" + uuid.NewString()

	tests := []struct {
		name   string
		key    string
		method string
		path   string
		want   int
	}{
		{"report key reads report", reportKey, "GET", runPath + "/report", http.StatusOK},
		{"report key cannot simulate", reportKey, "POST", runPath + "/simulate", http.StatusForbidden},
		{"report key cannot ingest", reportKey, "POST", "/api/v1/runs", http.StatusForbidden},
		{"simulate key simulates", simulateKey, "POST", runPath + "/simulate", http.StatusOK},
		{"simulate key cannot read report", simulateKey, "GET", runPath + "/report", http.StatusForbidden},
		{"admin key ingests", adminKey, "POST", "/api/v1/runs", http.StatusOK},
		{"admin key lists keys", adminKey, "GET", "/api/v1/admin/keys", http.StatusOK},
		{"report key cannot list keys", reportKey, "GET", "/api/v1/admin/keys", http.StatusForbidden},
		{"unwired handler", reportKey, "GET", runPath + "/audit", http.StatusNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+tt.key)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Verify unused interfaces are satisfied
var _ store.Store = (*stubStore)(nil)
var _ cache.Cache = (*stubCache)(nil)
