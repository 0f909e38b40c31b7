package store

import (
	"context"
	"database/sql"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/google/uuid"
)

// JobStore defines the interface for async job persistence.
type JobStore interface {
	// Create persists a new job.
	Create(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// Update persists the current state of a job.
	Update(ctx context.Context, job *domain.Job) error

	// WithTx returns a JobStore that uses the provided transaction.
	WithTx(tx *sql.Tx) JobStore
}
