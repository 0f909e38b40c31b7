package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventStatus represents the delivery state of an outbox row.
type EventStatus string

// Possible outbox event status values.
const (
	EventStatusPending EventStatus = "PENDING"
	EventStatusSent    EventStatus = "SENT"
	EventStatusFailed  EventStatus = "FAILED"
)

// Channel identifies the delivery mechanism for a notification.
type Channel string

// Supported notification channels.
const (
	ChannelWebhook Channel = "webhook"
	ChannelEmail   Channel = "email"
	ChannelChat    Channel = "chat"
)

// Lifecycle event types emitted by the pipeline.
const (
	EventEmailProcessed          = "EMAIL_PROCESSED"
	EventWebhookCallbackReceived = "WEBHOOK_CALLBACK_RECEIVED"
)

// Common validation errors for WebhookEvent.
var (
	ErrEmptyEventID       = errors.New("event ID cannot be empty")
	ErrEmptyEventTenantID = errors.New("event tenant ID cannot be empty")
	ErrEmptyEventTarget   = errors.New("event target cannot be empty")
	ErrInvalidEventStatus = errors.New("invalid event status")
	ErrInvalidChannel     = errors.New("invalid notification channel")
)

// WebhookEvent is one outbox row: a notification that must be delivered
// at least once. It is created in the same transaction as the domain
// state change it reports, and mutated only by the dispatcher that
// claims it.
type WebhookEvent struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	EntityType   string          `json:"entity_type"`
	EntityID     uuid.UUID       `json:"entity_id"`
	EventType    string          `json:"event_type"`
	Channel      Channel         `json:"channel"`
	Target       string          `json:"target"`
	Subject      string          `json:"subject,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	Status       EventStatus     `json:"status"`
	AttemptCount int             `json:"attempt_count"`
	MaxAttempts  int             `json:"max_attempts"`
	NextRetryAt  *time.Time      `json:"next_retry_at,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
	Response     string          `json:"response,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
}

// NewWebhookEvent creates a PENDING outbox row for the given entity and
// channel.
func NewWebhookEvent(
	tenantID uuid.UUID,
	entityType string, entityID uuid.UUID,
	eventType string,
	channel Channel, target, subject string,
	payload json.RawMessage,
	maxAttempts int,
) (*WebhookEvent, error) {
	event := &WebhookEvent{
		ID:          uuid.New(),
		TenantID:    tenantID,
		EntityType:  entityType,
		EntityID:    entityID,
		EventType:   eventType,
		Channel:     channel,
		Target:      target,
		Subject:     subject,
		Payload:     payload,
		Status:      EventStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now().UTC(),
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}

	return event, nil
}

// Validate checks the event's structural invariants.
func (e *WebhookEvent) Validate() error {
	if e.ID == uuid.Nil {
		return ErrEmptyEventID
	}
	if e.TenantID == uuid.Nil {
		return ErrEmptyEventTenantID
	}
	if e.Target == "" {
		return ErrEmptyEventTarget
	}
	if !isValidChannel(e.Channel) {
		return ErrInvalidChannel
	}
	if !isValidEventStatus(e.Status) {
		return ErrInvalidEventStatus
	}
	return nil
}

// MarkSent transitions a PENDING event to SENT, recording the remote
// acknowledgement when available.
func (e *WebhookEvent) MarkSent(response string, now time.Time) error {
	if e.Status != EventStatusPending {
		return transitionError("webhook event", string(e.Status), string(EventStatusSent))
	}

	e.Status = EventStatusSent
	e.AttemptCount++
	e.Response = response
	e.LastError = ""
	e.NextRetryAt = nil
	sent := now.UTC()
	e.SentAt = &sent
	return nil
}

// RecordFailure records a failed delivery attempt. While attempts remain
// the event stays PENDING with a future retry time; once the budget is
// exhausted it becomes FAILED and is surfaced to operators rather than
// silently dropped.
func (e *WebhookEvent) RecordFailure(cause string, nextRetryAt time.Time) error {
	if e.Status != EventStatusPending {
		return transitionError("webhook event", string(e.Status), string(EventStatusFailed))
	}

	e.AttemptCount++
	e.LastError = cause

	if e.AttemptCount >= e.MaxAttempts {
		e.Status = EventStatusFailed
		e.NextRetryAt = nil
		return nil
	}

	retryAt := nextRetryAt.UTC()
	e.NextRetryAt = &retryAt
	return nil
}

// ResetForRetry is the operator-triggered recovery path: a FAILED event
// returns to PENDING with its attempt count cleared.
func (e *WebhookEvent) ResetForRetry() error {
	if e.Status != EventStatusFailed {
		return transitionError("webhook event", string(e.Status), string(EventStatusPending))
	}

	e.Status = EventStatusPending
	e.AttemptCount = 0
	e.NextRetryAt = nil
	e.LastError = ""
	return nil
}

func isValidEventStatus(status EventStatus) bool {
	switch status {
	case EventStatusPending, EventStatusSent, EventStatusFailed:
		return true
	default:
		return false
	}
}

func isValidChannel(channel Channel) bool {
	switch channel {
	case ChannelWebhook, ChannelEmail, ChannelChat:
		return true
	default:
		return false
	}
}
