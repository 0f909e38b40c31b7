package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of an async extraction job.
type JobStatus string

// Possible job status values.
const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// IsTerminal reports whether the job has finished.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Common validation errors for Job.
var (
	ErrEmptyJobID       = errors.New("job ID cannot be empty")
	ErrEmptyJobTenantID = errors.New("job tenant ID cannot be empty")
	ErrInvalidJobStatus = errors.New("invalid job status")
)

// Job is the async facade's unit of work: one job maps to one extraction
// call, with no retry and no priority queue. Clients poll by id and
// re-submit on failure. Progress is a best-effort estimate, not
// authoritative.
type Job struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	Status        JobStatus       `json:"status"`
	Progress      int             `json:"progress"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Request       json.RawMessage `json:"request"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// NewJob creates a PENDING job for the given request payload.
func NewJob(tenantID uuid.UUID, request json.RawMessage) (*Job, error) {
	job := &Job{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Status:        JobStatusPending,
		CorrelationID: uuid.New(),
		Request:       request,
		CreatedAt:     time.Now().UTC(),
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks the job's structural invariants.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}
	if j.TenantID == uuid.Nil {
		return ErrEmptyJobTenantID
	}
	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}
	return nil
}

// Start transitions a PENDING job to PROCESSING.
func (j *Job) Start(now time.Time) error {
	if j.Status != JobStatusPending {
		return transitionError("job", string(j.Status), string(JobStatusProcessing))
	}

	j.Status = JobStatusProcessing
	j.Progress = 10
	started := now.UTC()
	j.StartedAt = &started
	return nil
}

// Complete transitions a PROCESSING job to COMPLETED with its result.
func (j *Job) Complete(result json.RawMessage, now time.Time) error {
	if j.Status != JobStatusProcessing {
		return transitionError("job", string(j.Status), string(JobStatusCompleted))
	}

	j.Status = JobStatusCompleted
	j.Progress = 100
	j.Result = result
	completed := now.UTC()
	j.CompletedAt = &completed
	return nil
}

// Fail transitions a PROCESSING job to FAILED with the cause.
func (j *Job) Fail(cause string, now time.Time) error {
	if j.Status != JobStatusProcessing {
		return transitionError("job", string(j.Status), string(JobStatusFailed))
	}

	j.Status = JobStatusFailed
	j.Progress = 100
	j.Error = cause
	completed := now.UTC()
	j.CompletedAt = &completed
	return nil
}

// Cancel transitions a PENDING job to CANCELLED. A job that has already
// started keeps running; cancellation is advisory for queued work only.
func (j *Job) Cancel(now time.Time) error {
	if j.Status != JobStatusPending {
		return transitionError("job", string(j.Status), string(JobStatusCancelled))
	}

	j.Status = JobStatusCancelled
	completed := now.UTC()
	j.CompletedAt = &completed
	return nil
}

func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}
