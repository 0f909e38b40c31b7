package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EmailStatus represents the processing state of an inbound email.
type EmailStatus string

// Possible email status values. The status is derived from child task
// outcomes and is never set directly, except IGNORED (no attachment
// matched a rule) and the initial PENDING.
const (
	EmailStatusPending    EmailStatus = "PENDING"
	EmailStatusProcessing EmailStatus = "PROCESSING"
	EmailStatusCompleted  EmailStatus = "COMPLETED"
	EmailStatusFailed     EmailStatus = "FAILED"
	EmailStatusIgnored    EmailStatus = "IGNORED"
)

// IsFinal reports whether the email has been finalized. Finalized emails
// are never revisited by the completion correlator.
func (s EmailStatus) IsFinal() bool {
	switch s {
	case EmailStatusCompleted, EmailStatusFailed, EmailStatusIgnored:
		return true
	default:
		return false
	}
}

// Common validation errors for ProcessedEmail.
var (
	ErrEmptyEmailID       = errors.New("email ID cannot be empty")
	ErrEmptyEmailTenantID = errors.New("email tenant ID cannot be empty")
	ErrEmptyMessageID     = errors.New("email message ID cannot be empty")
	ErrInvalidEmailStatus = errors.New("invalid email status")
)

// ProcessedEmail is the parent aggregate owning the attachments of one
// inbound email and, through them, 1..N extraction tasks.
type ProcessedEmail struct {
	ID          uuid.UUID   `json:"id"`
	TenantID    uuid.UUID   `json:"tenant_id"`
	MessageID   string      `json:"message_id"`
	Sender      string      `json:"sender"`
	Subject     string      `json:"subject"`
	Status      EmailStatus `json:"status"`
	ReceivedAt  time.Time   `json:"received_at"`
	FinalizedAt *time.Time  `json:"finalized_at,omitempty"`
}

// NewProcessedEmail creates a PENDING email record.
func NewProcessedEmail(tenantID uuid.UUID, messageID, sender, subject string) (*ProcessedEmail, error) {
	email := &ProcessedEmail{
		ID:         uuid.New(),
		TenantID:   tenantID,
		MessageID:  messageID,
		Sender:     sender,
		Subject:    subject,
		Status:     EmailStatusPending,
		ReceivedAt: time.Now().UTC(),
	}

	if err := email.Validate(); err != nil {
		return nil, err
	}

	return email, nil
}

// Validate checks the email's structural invariants.
func (e *ProcessedEmail) Validate() error {
	if e.ID == uuid.Nil {
		return ErrEmptyEmailID
	}
	if e.TenantID == uuid.Nil {
		return ErrEmptyEmailTenantID
	}
	if e.MessageID == "" {
		return ErrEmptyMessageID
	}
	if !isValidEmailStatus(e.Status) {
		return ErrInvalidEmailStatus
	}
	return nil
}

// BeginProcessing marks a PENDING email as PROCESSING once at least one
// of its attachments produced an extraction task.
func (e *ProcessedEmail) BeginProcessing() error {
	if e.Status != EmailStatusPending {
		return transitionError("email", string(e.Status), string(EmailStatusProcessing))
	}
	e.Status = EmailStatusProcessing
	return nil
}

// Ignore marks a PENDING email as IGNORED because none of its attachments
// matched a rule. An email with zero matched attachments is finalized
// immediately rather than left pending forever.
func (e *ProcessedEmail) Ignore(now time.Time) error {
	if e.Status != EmailStatusPending {
		return transitionError("email", string(e.Status), string(EmailStatusIgnored))
	}
	e.Status = EmailStatusIgnored
	finalized := now.UTC()
	e.FinalizedAt = &finalized
	return nil
}

// Finalize records the aggregate outcome once every child task is
// terminal: COMPLETED only if all children completed, FAILED otherwise.
// Partial success counts as FAILED at the email level.
func (e *ProcessedEmail) Finalize(allCompleted bool, now time.Time) error {
	if e.Status != EmailStatusProcessing {
		return transitionError("email", string(e.Status), "terminal")
	}

	if allCompleted {
		e.Status = EmailStatusCompleted
	} else {
		e.Status = EmailStatusFailed
	}
	finalized := now.UTC()
	e.FinalizedAt = &finalized
	return nil
}

func isValidEmailStatus(status EmailStatus) bool {
	switch status {
	case EmailStatusPending, EmailStatusProcessing, EmailStatusCompleted,
		EmailStatusFailed, EmailStatusIgnored:
		return true
	default:
		return false
	}
}

// Attachment is one file carried by an inbound email. Matched records
// whether any attachment rule claimed it; unmatched attachments are kept
// for audit but never produce tasks.
type Attachment struct {
	ID         uuid.UUID `json:"id"`
	EmailID    uuid.UUID `json:"email_id"`
	Filename   string    `json:"filename"`
	ContentRef string    `json:"content_ref"`
	Matched    bool      `json:"matched"`
}

// NewAttachment creates an attachment record for the given email.
func NewAttachment(emailID uuid.UUID, filename, contentRef string) *Attachment {
	return &Attachment{
		ID:         uuid.New(),
		EmailID:    emailID,
		Filename:   filename,
		ContentRef: contentRef,
	}
}
