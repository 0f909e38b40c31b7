package queue

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

// AdminService exposes the operator-facing task operations: manual retry
// of terminally failed tasks and advisory cancellation.
type AdminService struct {
	transactor store.Transactor
	tasks      store.TaskStore
	finalizer  Finalizer
	logger     *slog.Logger
}

// NewAdminService creates an AdminService.
func NewAdminService(
	transactor store.Transactor,
	tasks store.TaskStore,
	finalizer Finalizer,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		transactor: transactor,
		tasks:      tasks,
		finalizer:  finalizer,
		logger:     logger.With("component", "task_admin"),
	}
}

// RetryTask resets a FAILED task to PENDING with a cleared attempt
// budget so workers pick it up again. Returns store.ErrTaskNotFound for
// an unknown id and domain.ErrInvalidTransition when the task is not in
// a retryable state.
func (s *AdminService) RetryTask(ctx context.Context, id uuid.UUID) (*domain.ExtractionTask, error) {
	var task *domain.ExtractionTask
	err := s.transactor.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		tasks := s.tasks.WithTx(tx)

		var err error
		task, err = tasks.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := task.ResetForRetry(); err != nil {
			return err
		}
		return tasks.Update(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("task reset for manual retry", "task_id", task.ID, "email_id", task.EmailID)
	return task, nil
}

// CancelTask cancels a not-yet-claimed task. Cancellation is advisory:
// a PROCESSING task finishes its in-flight attempt and the call returns
// domain.ErrInvalidTransition. A successful cancel is a terminal
// transition, so the parent email is finalized like any other.
//
// The locking read is load-bearing: a claim committing between a plain
// read and the cancel's update would leave the cancel writing CANCELLED
// over a row a worker owns. GetForUpdate blocks behind the claim and
// sees the committed PROCESSING status instead.
func (s *AdminService) CancelTask(ctx context.Context, id uuid.UUID) (*domain.ExtractionTask, error) {
	var task *domain.ExtractionTask
	err := s.transactor.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		tasks := s.tasks.WithTx(tx)

		var err error
		task, err = tasks.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := task.Cancel(time.Now().UTC()); err != nil {
			return err
		}
		return tasks.Update(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("task cancelled", "task_id", task.ID, "email_id", task.EmailID)

	if err := s.finalizer.TaskFinalized(ctx, task.EmailID); err != nil {
		s.logger.Error("failed to finalize parent email after cancel",
			"email_id", task.EmailID, "error", err)
	}
	return task, nil
}
