package api

import (
	"encoding/json"
	"time"

	"github.com/docuflow/docuflow-api/internal/domain"
)

// TaskResponse is the client-facing view of an extraction task.
type TaskResponse struct {
	ID            string          `json:"id"`
	EmailID       string          `json:"email_id"`
	Status        string          `json:"status"`
	Priority      int             `json:"priority"`
	AttemptCount  int             `json:"attempt_count"`
	MaxAttempts   int             `json:"max_attempts"`
	CorrelationID string          `json:"correlation_id"`
	NextRetryAt   *time.Time      `json:"next_retry_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
}

// ToTaskResponse converts a domain task to its API representation.
func ToTaskResponse(task *domain.ExtractionTask) TaskResponse {
	return TaskResponse{
		ID:            task.ID.String(),
		EmailID:       task.EmailID.String(),
		Status:        string(task.Status),
		Priority:      task.Priority,
		AttemptCount:  task.AttemptCount,
		MaxAttempts:   task.MaxAttempts,
		CorrelationID: task.CorrelationID.String(),
		NextRetryAt:   task.NextRetryAt,
		LastError:     task.LastError,
		Result:        task.Result,
	}
}

// AsyncJobRequest is the body of an async extraction submission.
type AsyncJobRequest struct {
	AttachmentRef string `json:"attachment_ref" validate:"required"`
	TenantID      string `json:"tenant_id"      validate:"required,uuid"`
	SourceTag     string `json:"source_tag,omitempty"`
	DestTag       string `json:"dest_tag,omitempty"`
}

// JobResponse is the client-facing view of an async job.
type JobResponse struct {
	JobID       string          `json:"jobId"`
	Status      string          `json:"status"`
	Progress    int             `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ToJobResponse converts a domain job to its API representation.
func ToJobResponse(job *domain.Job) JobResponse {
	return JobResponse{
		JobID:       job.ID.String(),
		Status:      string(job.Status),
		Progress:    job.Progress,
		Result:      job.Result,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
}

// CallbackRequest is the body of an inbound webhook callback.
type CallbackRequest struct {
	CorrelationID string `json:"correlation_id" validate:"required,uuid"`
	Status        string `json:"status"         validate:"required"`
	Reference     string `json:"reference,omitempty"`
	Message       string `json:"message,omitempty"`
}

// CallbackResponse acknowledges a recorded callback.
type CallbackResponse struct {
	CallbackID    string    `json:"callback_id"`
	CorrelationID string    `json:"correlation_id"`
	ReceivedAt    time.Time `json:"received_at"`
}

// EventResponse is the client-facing view of an outbox row.
type EventResponse struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	EventType    string     `json:"event_type"`
	Channel      string     `json:"channel"`
	Target       string     `json:"target"`
	Status       string     `json:"status"`
	AttemptCount int        `json:"attempt_count"`
	MaxAttempts  int        `json:"max_attempts"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}

// ToEventResponse converts a domain event to its API representation.
func ToEventResponse(event *domain.WebhookEvent) EventResponse {
	return EventResponse{
		ID:           event.ID.String(),
		TenantID:     event.TenantID.String(),
		EventType:    event.EventType,
		Channel:      string(event.Channel),
		Target:       event.Target,
		Status:       string(event.Status),
		AttemptCount: event.AttemptCount,
		MaxAttempts:  event.MaxAttempts,
		NextRetryAt:  event.NextRetryAt,
		LastError:    event.LastError,
		CreatedAt:    event.CreatedAt,
		SentAt:       event.SentAt,
	}
}

// EventListResponse is the paginated outbox listing.
type EventListResponse struct {
	Events []EventResponse `json:"events"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// RetryAllResponse reports a bulk redelivery reset.
type RetryAllResponse struct {
	Reset int `json:"reset"`
}
