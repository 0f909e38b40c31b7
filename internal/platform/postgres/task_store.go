package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/platform/logger"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

// taskColumns is the column list shared by every task SELECT/RETURNING.
const taskColumns = `id, email_id, tenant_id, attachment_id, source_tag, dest_tag,
	status, priority, attempt_count, max_attempts, correlation_id,
	created_at, started_at, completed_at, next_retry_at, last_error, result`

// PostgresTaskStore implements store.TaskStore using PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{db: db}
}

// WithTx returns a TaskStore that uses the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx}
}

// Create persists a new task.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.ExtractionTask) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO extraction_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID, task.EmailID, task.TenantID, task.AttachmentID,
		task.SourceTag, task.DestTag, task.Status, task.Priority,
		task.AttemptCount, task.MaxAttempts, task.CorrelationID,
		task.CreatedAt, task.StartedAt, task.CompletedAt,
		task.NextRetryAt, task.LastError, nullableJSON(task.Result),
	)
	if err != nil {
		log.Error("failed to save extraction task",
			"task_id", task.ID,
			"email_id", task.EmailID,
			"error", err)
		return store.NewStoreError("extraction_task", "create", "insert failed", err)
	}

	return nil
}

// GetByID retrieves a task by its unique ID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExtractionTask, error) {
	query := `SELECT ` + taskColumns + ` FROM extraction_tasks WHERE id = $1`
	return s.queryOne(ctx, query, id)
}

// GetByCorrelationID retrieves a task by its correlation id.
func (s *PostgresTaskStore) GetByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.ExtractionTask, error) {
	query := `SELECT ` + taskColumns + ` FROM extraction_tasks WHERE correlation_id = $1`
	return s.queryOne(ctx, query, correlationID)
}

// GetForUpdate retrieves a task by ID, locking the row for the rest of
// the transaction so the read serializes against ClaimBatch.
func (s *PostgresTaskStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.ExtractionTask, error) {
	query := `SELECT ` + taskColumns + ` FROM extraction_tasks WHERE id = $1 FOR UPDATE`
	return s.queryOne(ctx, query, id)
}

// Update persists the current state of a task.
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.ExtractionTask) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE extraction_tasks
		SET status = $1, priority = $2, attempt_count = $3,
			started_at = $4, completed_at = $5, next_retry_at = $6,
			last_error = $7, result = $8
		WHERE id = $9
	`

	result, err := s.db.ExecContext(ctx, query,
		task.Status, task.Priority, task.AttemptCount,
		task.StartedAt, task.CompletedAt, task.NextRetryAt,
		task.LastError, nullableJSON(task.Result), task.ID,
	)
	if err != nil {
		log.Error("failed to update extraction task",
			"task_id", task.ID,
			"status", task.Status,
			"error", err)
		return store.NewStoreError("extraction_task", "update", "update failed", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("extraction_task", "update", "rows affected unavailable", err)
	}
	if affected == 0 {
		return store.ErrTaskNotFound
	}

	return nil
}

// ClaimBatch atomically claims up to limit runnable tasks. The inner
// SELECT uses FOR UPDATE SKIP LOCKED so concurrent workers race for
// disjoint rows; flipping the status in the same statement makes the
// claim durable before any task is handed to a worker.
func (s *PostgresTaskStore) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]*domain.ExtractionTask, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE extraction_tasks
		SET status = $1, started_at = $2, next_retry_at = NULL
		WHERE id IN (
			SELECT id FROM extraction_tasks
			WHERE status = $3 OR (status = $4 AND next_retry_at <= $2)
			ORDER BY priority DESC, created_at ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns

	rows, err := s.db.QueryContext(ctx, query,
		domain.TaskStatusProcessing, now.UTC(),
		domain.TaskStatusPending, domain.TaskStatusRetrying, limit,
	)
	if err != nil {
		log.Error("failed to claim task batch", "error", err)
		return nil, store.NewStoreError("extraction_task", "claim", "claim query failed", err)
	}
	defer func() { _ = rows.Close() }()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING does not preserve the subquery ordering; restore it.
	sortTasksForExecution(tasks)
	return tasks, nil
}

// SweepStuck recovers tasks left PROCESSING since before cutoff.
func (s *PostgresTaskStore) SweepStuck(ctx context.Context, cutoff, now time.Time) (int, []*domain.ExtractionTask, error) {
	log := logger.FromContext(ctx)

	// Tasks with budget left go back to RETRYING for an immediate retry.
	retryQuery := `
		UPDATE extraction_tasks
		SET status = $1, attempt_count = attempt_count + 1,
			next_retry_at = $2, last_error = $3
		WHERE status = $4 AND started_at < $5
			AND attempt_count + 1 < max_attempts
	`

	result, err := s.db.ExecContext(ctx, retryQuery,
		domain.TaskStatusRetrying, now.UTC(),
		"reset after being stuck in processing state",
		domain.TaskStatusProcessing, cutoff.UTC(),
	)
	if err != nil {
		log.Error("failed to sweep stuck tasks", "error", err)
		return 0, nil, store.NewStoreError("extraction_task", "sweep", "recovery update failed", err)
	}

	recovered, err := result.RowsAffected()
	if err != nil {
		return 0, nil, store.NewStoreError("extraction_task", "sweep", "rows affected unavailable", err)
	}

	// Tasks whose lost attempt exhausts the budget fail terminally; the
	// caller finalizes their parent emails.
	failQuery := `
		UPDATE extraction_tasks
		SET status = $1, attempt_count = attempt_count + 1,
			completed_at = $2, next_retry_at = NULL, last_error = $3
		WHERE status = $4 AND started_at < $5
			AND attempt_count + 1 >= max_attempts
		RETURNING ` + taskColumns

	rows, err := s.db.QueryContext(ctx, failQuery,
		domain.TaskStatusFailed, now.UTC(),
		"stuck in processing state with attempt budget exhausted",
		domain.TaskStatusProcessing, cutoff.UTC(),
	)
	if err != nil {
		log.Error("failed to fail exhausted stuck tasks", "error", err)
		return int(recovered), nil, store.NewStoreError("extraction_task", "sweep", "exhaustion update failed", err)
	}
	defer func() { _ = rows.Close() }()

	failed, err := scanTasks(rows)
	if err != nil {
		return int(recovered), nil, err
	}

	return int(recovered), failed, nil
}

// CountByEmail returns child task counts for the given email.
func (s *PostgresTaskStore) CountByEmail(ctx context.Context, emailID uuid.UUID) (store.TaskCounts, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ($2, $3, $4)),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3)
		FROM extraction_tasks
		WHERE email_id = $1
	`

	var counts store.TaskCounts
	err := s.db.QueryRowContext(ctx, query, emailID,
		domain.TaskStatusCompleted, domain.TaskStatusFailed, domain.TaskStatusCancelled,
	).Scan(&counts.Total, &counts.Terminal, &counts.Completed, &counts.Failed)
	if err != nil {
		return store.TaskCounts{}, store.NewStoreError("extraction_task", "count", "count query failed", err)
	}

	return counts, nil
}

func (s *PostgresTaskStore) queryOne(ctx context.Context, query string, arg any) (*domain.ExtractionTask, error) {
	row := s.db.QueryRowContext(ctx, query, arg)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, store.NewStoreError("extraction_task", "get", "scan failed", err)
	}

	return task, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.ExtractionTask, error) {
	var t domain.ExtractionTask
	var sourceTag, destTag, lastError sql.NullString
	var result []byte

	err := row.Scan(
		&t.ID, &t.EmailID, &t.TenantID, &t.AttachmentID,
		&sourceTag, &destTag, &t.Status, &t.Priority,
		&t.AttemptCount, &t.MaxAttempts, &t.CorrelationID,
		&t.CreatedAt, &t.StartedAt, &t.CompletedAt,
		&t.NextRetryAt, &lastError, &result,
	)
	if err != nil {
		return nil, err
	}

	t.SourceTag = sourceTag.String
	t.DestTag = destTag.String
	t.LastError = lastError.String
	if len(result) > 0 {
		t.Result = json.RawMessage(result)
	}

	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*domain.ExtractionTask, error) {
	var tasks []*domain.ExtractionTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, store.NewStoreError("extraction_task", "scan", "row scan failed", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("extraction_task", "scan", "row iteration failed", err)
	}
	return tasks, nil
}

func sortTasksForExecution(tasks []*domain.ExtractionTask) {
	// priority DESC, created_at ASC
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

// nullableJSON maps an empty payload to SQL NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
