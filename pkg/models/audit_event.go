package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEvent is a persisted reasoning step from a grounding audit.
type AuditEvent struct {
	ID        uuid.UUID          `db:"id"         json:"id"`
	AuditID   uuid.UUID          `db:"audit_id"   json:"audit_id"`
	RunID     uuid.UUID          `db:"run_id"     json:"run_id"`
	TenantID  uuid.UUID          `db:"tenant_id"  json:"tenant_id"`
	Seq       int                `db:"seq"        json:"seq"`
	Type      ReasoningEventType `db:"type"       json:"type"`
	Step      string             `db:"step"       json:"step,omitempty"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
}
