package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of an extraction task.
type TaskStatus string

// Possible extraction task status values.
const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusRetrying   TaskStatus = "RETRYING"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

// IsTerminal reports whether the status is a final state that the task
// can never leave on its own (manual retry is the only way out of FAILED).
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Common validation errors for ExtractionTask.
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrEmptyTaskEmailID   = errors.New("task email ID cannot be empty")
	ErrEmptyTaskTenantID  = errors.New("task tenant ID cannot be empty")
	ErrInvalidTaskStatus  = errors.New("invalid task status")
	ErrTaskNotDue         = errors.New("task retry time has not elapsed")
	ErrRetryDanglingState = errors.New("next retry time set on non-retrying task")
)

// ExtractionTask is one unit of extraction work for one attachment.
// A task is owned by exactly one email and, once claimed, is mutated only
// by the worker that holds it. Tasks are never deleted, only archived
// after a retention window.
type ExtractionTask struct {
	ID            uuid.UUID       `json:"id"`
	EmailID       uuid.UUID       `json:"email_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	AttachmentID  uuid.UUID       `json:"attachment_id"`
	SourceTag     string          `json:"source_tag"`
	DestTag       string          `json:"dest_tag"`
	Status        TaskStatus      `json:"status"`
	Priority      int             `json:"priority"`
	AttemptCount  int             `json:"attempt_count"`
	MaxAttempts   int             `json:"max_attempts"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	NextRetryAt   *time.Time      `json:"next_retry_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
}

// NewExtractionTask creates a PENDING task for the given attachment with a
// fresh correlation id. The correlation id stays stable across retries and
// is the key used to match inbound webhook callbacks.
func NewExtractionTask(
	emailID, tenantID, attachmentID uuid.UUID,
	sourceTag, destTag string,
	priority, maxAttempts int,
) (*ExtractionTask, error) {
	task := &ExtractionTask{
		ID:            uuid.New(),
		EmailID:       emailID,
		TenantID:      tenantID,
		AttachmentID:  attachmentID,
		SourceTag:     sourceTag,
		DestTag:       destTag,
		Status:        TaskStatusPending,
		Priority:      priority,
		MaxAttempts:   maxAttempts,
		CorrelationID: uuid.New(),
		CreatedAt:     time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks the task's structural invariants.
func (t *ExtractionTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.EmailID == uuid.Nil {
		return ErrEmptyTaskEmailID
	}
	if t.TenantID == uuid.Nil {
		return ErrEmptyTaskTenantID
	}
	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}
	// next_retry_at is non-nil iff status is RETRYING.
	if (t.NextRetryAt != nil) != (t.Status == TaskStatusRetrying) {
		return ErrRetryDanglingState
	}
	return nil
}

// Claim transitions the task to PROCESSING for the current attempt.
// Only PENDING tasks and RETRYING tasks whose retry time has elapsed may
// be claimed. The durable store enforces the same condition atomically;
// this method keeps in-memory copies honest.
func (t *ExtractionTask) Claim(now time.Time) error {
	switch t.Status {
	case TaskStatusPending:
	case TaskStatusRetrying:
		if t.NextRetryAt != nil && t.NextRetryAt.After(now) {
			return ErrTaskNotDue
		}
	default:
		return transitionError("task", string(t.Status), string(TaskStatusProcessing))
	}

	t.Status = TaskStatusProcessing
	started := now.UTC()
	t.StartedAt = &started
	t.NextRetryAt = nil
	return nil
}

// Complete transitions a PROCESSING task to COMPLETED, recording the
// extraction result payload. The successful attempt counts toward the
// attempt total like failed ones.
func (t *ExtractionTask) Complete(result json.RawMessage, now time.Time) error {
	if t.Status != TaskStatusProcessing {
		return transitionError("task", string(t.Status), string(TaskStatusCompleted))
	}

	t.Status = TaskStatusCompleted
	t.AttemptCount++
	completed := now.UTC()
	t.CompletedAt = &completed
	t.Result = result
	t.LastError = ""
	return nil
}

// ScheduleRetry records a failed attempt and transitions a PROCESSING task
// to RETRYING with the given next retry time. Returns ErrInvalidTransition
// if the attempt budget is exhausted; callers must use Fail instead.
func (t *ExtractionTask) ScheduleRetry(cause string, nextRetryAt time.Time) error {
	if t.Status != TaskStatusProcessing {
		return transitionError("task", string(t.Status), string(TaskStatusRetrying))
	}
	if t.AttemptCount+1 >= t.MaxAttempts {
		return fmt.Errorf("%w: attempt budget exhausted (%d/%d)",
			ErrInvalidTransition, t.AttemptCount+1, t.MaxAttempts)
	}

	t.Status = TaskStatusRetrying
	t.AttemptCount++
	retryAt := nextRetryAt.UTC()
	t.NextRetryAt = &retryAt
	t.LastError = cause
	return nil
}

// Fail records a final failed attempt and transitions a PROCESSING task to
// the terminal FAILED state.
func (t *ExtractionTask) Fail(cause string, now time.Time) error {
	if t.Status != TaskStatusProcessing {
		return transitionError("task", string(t.Status), string(TaskStatusFailed))
	}

	t.Status = TaskStatusFailed
	t.AttemptCount++
	completed := now.UTC()
	t.CompletedAt = &completed
	t.NextRetryAt = nil
	t.LastError = cause
	return nil
}

// Cancel transitions a not-yet-claimed task (PENDING or RETRYING) to
// CANCELLED. Cancellation is advisory: a task already PROCESSING finishes
// its in-flight attempt and Cancel returns ErrInvalidTransition.
func (t *ExtractionTask) Cancel(now time.Time) error {
	switch t.Status {
	case TaskStatusPending, TaskStatusRetrying:
	default:
		return transitionError("task", string(t.Status), string(TaskStatusCancelled))
	}

	t.Status = TaskStatusCancelled
	completed := now.UTC()
	t.CompletedAt = &completed
	t.NextRetryAt = nil
	return nil
}

// ResetForRetry is the operator-triggered recovery path: a FAILED task
// returns to PENDING with its attempt count cleared. This is the only
// externally triggered transition besides Cancel.
func (t *ExtractionTask) ResetForRetry() error {
	if t.Status != TaskStatusFailed {
		return transitionError("task", string(t.Status), string(TaskStatusPending))
	}

	t.Status = TaskStatusPending
	t.AttemptCount = 0
	t.StartedAt = nil
	t.CompletedAt = nil
	t.NextRetryAt = nil
	t.LastError = ""
	return nil
}

// RecoverStuck transitions a PROCESSING task whose worker is presumed dead
// back to RETRYING with an immediate retry time. The lost attempt counts
// toward the budget so a crashing payload is not retried forever.
func (t *ExtractionTask) RecoverStuck(now time.Time) error {
	if t.Status != TaskStatusProcessing {
		return transitionError("task", string(t.Status), string(TaskStatusRetrying))
	}
	if t.AttemptCount+1 >= t.MaxAttempts {
		return t.failStuck(now)
	}

	t.Status = TaskStatusRetrying
	t.AttemptCount++
	retryAt := now.UTC()
	t.NextRetryAt = &retryAt
	t.LastError = "reset after being stuck in processing state"
	return nil
}

func (t *ExtractionTask) failStuck(now time.Time) error {
	t.Status = TaskStatusFailed
	t.AttemptCount++
	completed := now.UTC()
	t.CompletedAt = &completed
	t.NextRetryAt = nil
	t.LastError = "stuck in processing state with attempt budget exhausted"
	return nil
}

func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusRetrying, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// transitionError builds a uniform invalid-transition error.
func transitionError(entity, from, to string) error {
	return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, entity, from, to)
}
