package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/insightgate/internal/store"
	"github.com/kiranshivaraju/insightgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("insightgate_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))
	// Re-running is a no-op.
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func defaultTenantID(t *testing.T, s store.Store) uuid.UUID {
	t.Helper()
	tenant, err := s.GetDefaultTenant(context.Background())
	require.NoError(t, err)
	return tenant.ID
}

func sampleRun(tenantID uuid.UUID, at time.Time) *models.RunArtifact {
	return &models.RunArtifact{
		RunID:     uuid.New(),
		TenantID:  tenantID,
		Narrative: "# Report\nData Quality Score: 93%\n",
		Bundles: map[string]json.RawMessage{
			models.BundleBusinessIntelligence: json.RawMessage(`{"churn_risk":{"at_risk_count":251,"at_risk_percentage":25.1}}`),
		},
		Contract: models.TaskContract{
			PrimaryQuestion:      "Which customers are at risk of churn?",
			OutOfScopeDimensions: []string{"revenue"},
		},
		Confidence: models.ConfidenceReport{
			Score:      0.82,
			Validation: models.ValidationDiagnostics{Reasons: []string{}, FailedFields: []string{}},
		},
		Evidence:  json.RawMessage(`[{"evidence_id":"ev_churn","computation_method":"threshold","columns_used":["visits"]}]`),
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// --- Tenant Tests ---

func TestGetDefaultTenant(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	tenant, err := s.GetDefaultTenant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default", tenant.Name)
	assert.Equal(t, "default", tenant.Slug)
	assert.NotEqual(t, uuid.Nil, tenant.ID)
}

// --- API Key Tests ---

func TestAPIKey_CreateListRevoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenantID := defaultTenantID(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	key := &models.APIKey{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      "ci",
		KeyHash:   "bcrypt-hash-here",
		KeyPrefix: "ig_abcd",
		Scopes:    []string{"report", "simulate"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "ig_abcd")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, []string{"report", "simulate"}, keys[0].Scopes)
	assert.Nil(t, keys[0].LastUsedAt)

	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))
	keys, err = s.GetAPIKeyByPrefix(ctx, "ig_abcd")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)

	listed, err := s.ListAPIKeys(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID, tenantID))
	listed, err = s.ListAPIKeys(ctx, tenantID)
	require.NoError(t, err)
	assert.Empty(t, listed)

	assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID, tenantID), store.ErrNotFound)
}

func TestAPIKey_DuplicateID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenantID := defaultTenantID(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	id := uuid.New()
	require.NoError(t, s.CreateAPIKey(ctx, &models.APIKey{
		ID: id, TenantID: tenantID, Name: "dup1", KeyHash: "h1", KeyPrefix: "ig_dup1",
		Scopes: []string{"report"}, CreatedAt: now, UpdatedAt: now,
	}))

	err := s.CreateAPIKey(ctx, &models.APIKey{
		ID: id, TenantID: tenantID, Name: "dup2", KeyHash: "h2", KeyPrefix: "ig_dup2",
		Scopes: []string{"report"}, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

// --- Run Tests ---

func TestRun_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenantID := defaultTenantID(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	run := sampleRun(tenantID, now)
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, run.RunID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, run.Narrative, got.Narrative)
	assert.Equal(t, run.Contract, got.Contract)
	assert.Equal(t, run.Confidence, got.Confidence)
	assert.JSONEq(t, string(run.Bundles[models.BundleBusinessIntelligence]), string(got.Bundle(models.BundleBusinessIntelligence)))
	assert.JSONEq(t, string(run.Evidence), string(got.Evidence))
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))
}

func TestRun_WithoutEvidence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenantID := defaultTenantID(t, s)

	run := sampleRun(tenantID, time.Now().UTC().Truncate(time.Microsecond))
	run.Evidence = nil
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, run.RunID, tenantID)
	require.NoError(t, err)
	assert.Nil(t, got.Evidence)
}

func TestRun_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenantID := defaultTenantID(t, s)

	_, err := s.GetRun(ctx, uuid.New(), tenantID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Another tenant cannot read the run.
	run := sampleRun(tenantID, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, s.CreateRun(ctx, run))
	_, err = s.GetRun(ctx, run.RunID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_DuplicateID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenantID := defaultTenantID(t, s)

	run := sampleRun(tenantID, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, s.CreateRun(ctx, run))
	assert.ErrorIs(t, s.CreateRun(ctx, run), store.ErrDuplicateKey)
}

func TestRun_ListPaginatesNewestFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenantID := defaultTenantID(t, s)
	base := time.Now().UTC().Truncate(time.Microsecond)

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		run := sampleRun(tenantID, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.CreateRun(ctx, run))
		ids = append(ids, run.RunID)
	}

	page1, total, err := s.ListRuns(ctx, store.RunFilter{TenantID: tenantID, Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)
	assert.Equal(t, ids[4], page1[0].ID)
	assert.Equal(t, ids[3], page1[1].ID)
	assert.Equal(t, "Which customers are at risk of churn?", page1[0].PrimaryQuestion)
	assert.InDelta(t, 0.82, page1[0].ConfidenceScore, 1e-9)

	page3, _, err := s.ListRuns(ctx, store.RunFilter{TenantID: tenantID, Page: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, ids[0], page3[0].ID)

	recent, total, err := s.ListRuns(ctx, store.RunFilter{TenantID: tenantID, Since: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, recent, 2)

	other, total, err := s.ListRuns(ctx, store.RunFilter{TenantID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NotNil(t, other)
	assert.Empty(t, other)
}

// --- Audit Event Tests ---

func TestAuditEvents_CreateAndList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenantID := defaultTenantID(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	run := sampleRun(tenantID, now)
	require.NoError(t, s.CreateRun(ctx, run))

	auditID := uuid.New()
	steps := []string{"Checking governance mode", "Looking up evidence ev_churn"}
	var events []*models.AuditEvent
	for i, step := range steps {
		events = append(events, &models.AuditEvent{
			ID: uuid.New(), AuditID: auditID, RunID: run.RunID, TenantID: tenantID,
			Seq: i, Type: models.EventProgress, Step: step, CreatedAt: now,
		})
	}
	events = append(events, &models.AuditEvent{
		ID: uuid.New(), AuditID: auditID, RunID: run.RunID, TenantID: tenantID,
		Seq: len(steps), Type: models.EventComplete, CreatedAt: now,
	})
	require.NoError(t, s.CreateAuditEvents(ctx, events))

	got, err := s.ListAuditEvents(ctx, run.RunID, tenantID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, e := range got {
		assert.Equal(t, i, e.Seq)
		assert.Equal(t, auditID, e.AuditID)
	}
	assert.Equal(t, steps[1], got[1].Step)
	assert.Equal(t, models.EventComplete, got[2].Type)

	// Replaying the same sequence numbers is rejected.
	assert.ErrorIs(t, s.CreateAuditEvents(ctx, events[:1]), store.ErrDuplicateKey)

	assert.NoError(t, s.CreateAuditEvents(ctx, nil))
}

func TestAuditEvents_EmptyForUnknownRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	got, err := s.ListAuditEvents(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// --- Ping Test ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	assert.NoError(t, s.Ping(context.Background()))
}
