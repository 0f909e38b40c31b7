package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/platform/logger"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

const jobColumns = `id, tenant_id, status, progress, correlation_id, request, result,
	error, created_at, started_at, completed_at`

// PostgresJobStore implements store.JobStore using PostgreSQL.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// WithTx returns a JobStore that uses the provided transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{db: tx}
}

// Create persists a new job.
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.Job) error {
	log := logger.FromContext(ctx)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.TenantID, job.Status, job.Progress, job.CorrelationID,
		nullableJSON(job.Request), nullableJSON(job.Result), job.Error,
		job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		log.Error("failed to save job", "job_id", job.ID, "error", err)
		return store.NewStoreError("job", "create", "insert failed", err)
	}

	return nil
}

// GetByID retrieves a job by its unique ID.
func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	var j domain.Job
	var request, result []byte
	var jobErr sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&j.ID, &j.TenantID, &j.Status, &j.Progress, &j.CorrelationID,
		&request, &result, &jobErr,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, store.NewStoreError("job", "get", "scan failed", err)
	}

	if len(request) > 0 {
		j.Request = json.RawMessage(request)
	}
	if len(result) > 0 {
		j.Result = json.RawMessage(result)
	}
	j.Error = jobErr.String

	return &j, nil
}

// Update persists the current state of a job.
func (s *PostgresJobStore) Update(ctx context.Context, job *domain.Job) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE jobs
		SET status = $1, progress = $2, result = $3, error = $4,
			started_at = $5, completed_at = $6
		WHERE id = $7
	`

	result, err := s.db.ExecContext(ctx, query,
		job.Status, job.Progress, nullableJSON(job.Result), job.Error,
		job.StartedAt, job.CompletedAt, job.ID,
	)
	if err != nil {
		log.Error("failed to update job", "job_id", job.ID, "status", job.Status, "error", err)
		return store.NewStoreError("job", "update", "update failed", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("job", "update", "rows affected unavailable", err)
	}
	if affected == 0 {
		return store.ErrJobNotFound
	}

	return nil
}
