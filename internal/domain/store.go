package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// DeploymentStore persists resolved deployments.
type DeploymentStore interface {
	Create(ctx context.Context, rec DeploymentRecord) error
	GetByID(ctx context.Context, id string) (DeploymentRecord, error)
	GetByAddress(ctx context.Context, address string) (DeploymentRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]DeploymentRecord, error)
	List(ctx context.Context, status DeploymentStatus, opts ListOpts) ([]DeploymentRecord, error)
}

// Audit events written by the services.
const (
	AuditDeploySucceeded = "deploy_succeeded"
	AuditDeployFailed    = "deploy_failed"
	AuditCollateralMoved = "collateral_moved"
	AuditSessionClosed   = "session_closed"
)

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
