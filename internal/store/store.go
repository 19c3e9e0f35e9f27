package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/insightgate/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
// Only run inputs and audit trails are persisted; governed views are derived per request.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateRun(ctx context.Context, run *models.RunArtifact) error
	GetRun(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.RunArtifact, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*models.RunSummary, int, error)

	CreateAuditEvents(ctx context.Context, events []*models.AuditEvent) error
	ListAuditEvents(ctx context.Context, runID uuid.UUID, tenantID uuid.UUID) ([]*models.AuditEvent, error)
}

type RunFilter struct {
	TenantID uuid.UUID
	Since    time.Time
	Page     int
	Limit    int
}
