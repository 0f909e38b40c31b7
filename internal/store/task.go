package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/google/uuid"
)

// TaskCounts summarizes the child tasks of one email for the completion
// correlator.
type TaskCounts struct {
	Total     int
	Terminal  int
	Completed int
	Failed    int
}

// TaskStore defines the interface for extraction task persistence.
// The claim operations are the load-bearing transaction boundary of the
// queue: they must be atomic so two workers never own the same row.
type TaskStore interface {
	// Create persists a new task.
	Create(ctx context.Context, task *domain.ExtractionTask) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ExtractionTask, error)

	// GetByCorrelationID retrieves a task by its correlation id, used to
	// match inbound webhook callbacks.
	// Returns ErrTaskNotFound if no task carries the id.
	GetByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.ExtractionTask, error)

	// GetForUpdate retrieves a task by ID with a row lock held for the
	// rest of the transaction. Admin mutations read through this so they
	// serialize against ClaimBatch: the claim's SKIP LOCKED passes over a
	// row mid-cancel, and a cancel blocked behind a claim sees the
	// committed PROCESSING status instead of a stale snapshot.
	// Returns ErrTaskNotFound if the task does not exist.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.ExtractionTask, error)

	// Update persists the current state of a task. Only the worker that
	// claimed a task may update it.
	Update(ctx context.Context, task *domain.ExtractionTask) error

	// ClaimBatch atomically claims up to limit runnable tasks (PENDING,
	// or RETRYING with an elapsed retry time), flipping them to
	// PROCESSING and stamping started_at. Tasks are returned in
	// priority DESC, created_at ASC order. Concurrent callers never
	// receive the same task.
	ClaimBatch(ctx context.Context, limit int, now time.Time) ([]*domain.ExtractionTask, error)

	// SweepStuck recovers tasks left PROCESSING since before cutoff
	// (worker crashed mid-task). Tasks with remaining attempt budget
	// become RETRYING with an immediate retry time; tasks whose budget
	// the lost attempt exhausts become FAILED and are returned so the
	// caller can finalize their parent emails. Both moves increment the
	// attempt count.
	SweepStuck(ctx context.Context, cutoff, now time.Time) (recovered int, failed []*domain.ExtractionTask, err error)

	// CountByEmail returns child task counts for the given email.
	CountByEmail(ctx context.Context, emailID uuid.UUID) (TaskCounts, error)

	// WithTx returns a TaskStore that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}
