package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

const deploymentColumns = `id, session_id, draft, status, address, tx_hash, deployer, error, attempt, created_at, resolved_at`

// DeploymentStore implements domain.DeploymentStore.
type DeploymentStore struct {
	db DBTX
}

// NewDeploymentStore creates a DeploymentStore on db, usually a
// *pgxpool.Pool.
func NewDeploymentStore(db DBTX) *DeploymentStore {
	return &DeploymentStore{db: db}
}

// Create inserts rec. Only resolved deployments are stored.
func (s *DeploymentStore) Create(ctx context.Context, rec domain.DeploymentRecord) error {
	if rec.Status != domain.DeploymentSuccess && rec.Status != domain.DeploymentFailure {
		return fmt.Errorf("postgres: create deployment %s: unresolved status %q", rec.ID, rec.Status)
	}
	draft, err := json.Marshal(rec.Draft)
	if err != nil {
		return fmt.Errorf("postgres: marshal draft %s: %w", rec.ID, err)
	}

	const query = `
		INSERT INTO deployments (` + deploymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = s.db.Exec(ctx, query,
		rec.ID, rec.SessionID, draft, string(rec.Status),
		rec.Address, rec.TxHash, rec.Deployer, rec.Error,
		rec.Attempt, rec.CreatedAt, rec.ResolvedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("deployment %s: %w", rec.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create deployment %s: %w", rec.ID, err)
	}
	return nil
}

// GetByID returns the deployment with id.
func (s *DeploymentStore) GetByID(ctx context.Context, id string) (domain.DeploymentRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+deploymentColumns+` FROM deployments WHERE id = $1`, id)
	rec, err := scanDeployment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DeploymentRecord{}, fmt.Errorf("deployment %s: %w", id, domain.ErrNotFound)
		}
		return domain.DeploymentRecord{}, fmt.Errorf("postgres: get deployment %s: %w", id, err)
	}
	return rec, nil
}

// GetByAddress returns the successful deployment of the contract at
// address. Addresses compare case-insensitively.
func (s *DeploymentStore) GetByAddress(ctx context.Context, address string) (domain.DeploymentRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+deploymentColumns+` FROM deployments WHERE lower(address) = lower($1) AND address <> ''`, address)
	rec, err := scanDeployment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DeploymentRecord{}, fmt.Errorf("deployment at %s: %w", address, domain.ErrNotFound)
		}
		return domain.DeploymentRecord{}, fmt.Errorf("postgres: get deployment at %s: %w", address, err)
	}
	return rec, nil
}

// ListBySession returns every attempt of a wizard session, oldest first.
func (s *DeploymentStore) ListBySession(ctx context.Context, sessionID string) ([]domain.DeploymentRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+deploymentColumns+` FROM deployments WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list deployments of session %s: %w", sessionID, err)
	}
	return collectDeployments(rows)
}

// List returns deployments newest first, optionally filtered by status.
func (s *DeploymentStore) List(ctx context.Context, status domain.DeploymentStatus, opts domain.ListOpts) ([]domain.DeploymentRecord, error) {
	q := newListQuery(`SELECT ` + deploymentColumns + ` FROM deployments`)
	if status != "" {
		q.where("status = %s", string(status))
	}
	q.window(opts, "created_at", "DESC")

	rows, err := s.db.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list deployments: %w", err)
	}
	return collectDeployments(rows)
}

func collectDeployments(rows pgx.Rows) ([]domain.DeploymentRecord, error) {
	defer rows.Close()

	var out []domain.DeploymentRecord
	for rows.Next() {
		rec, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan deployment: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: deployment rows: %w", err)
	}
	return out, nil
}

func scanDeployment(row pgx.Row) (domain.DeploymentRecord, error) {
	var (
		rec        domain.DeploymentRecord
		draft      []byte
		status     string
		createdAt  time.Time
		resolvedAt time.Time
	)
	err := row.Scan(
		&rec.ID, &rec.SessionID, &draft, &status,
		&rec.Address, &rec.TxHash, &rec.Deployer, &rec.Error,
		&rec.Attempt, &createdAt, &resolvedAt,
	)
	if err != nil {
		return domain.DeploymentRecord{}, err
	}
	if err := json.Unmarshal(draft, &rec.Draft); err != nil {
		return domain.DeploymentRecord{}, fmt.Errorf("unmarshal draft: %w", err)
	}
	rec.Status = domain.DeploymentStatus(status)
	rec.CreatedAt = createdAt.UTC()
	rec.ResolvedAt = resolvedAt.UTC()
	return rec, nil
}

var _ domain.DeploymentStore = (*DeploymentStore)(nil)
