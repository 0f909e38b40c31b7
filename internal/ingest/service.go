// Package ingest turns normalized inbound emails into extraction work.
// Mailbox polling itself happens elsewhere; this package owns the
// attachment rule matching and the transactional creation of the email
// aggregate and its tasks.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

// InboundAttachment is one attachment of a normalized inbound email.
type InboundAttachment struct {
	Filename   string
	ContentRef string
}

// InboundEmail is a normalized inbound email handed over by the mailbox
// poller. The tenant id is always explicit; there is no ambient tenant
// state anywhere in the pipeline.
type InboundEmail struct {
	TenantID    uuid.UUID
	MessageID   string
	Sender      string
	Subject     string
	Attachments []InboundAttachment
}

// Service ingests inbound emails: dedupe, rule matching, and the
// transactional creation of the ProcessedEmail aggregate with zero or
// more extraction tasks.
type Service struct {
	transactor  store.Transactor
	emailStore  store.EmailStore
	taskStore   store.TaskStore
	ruleStore   store.RuleStore
	deduper     Deduper
	maxAttempts int
	logger      *slog.Logger
}

// NewService creates an ingest Service. maxAttempts is the attempt
// budget stamped on every created task.
func NewService(
	transactor store.Transactor,
	emailStore store.EmailStore,
	taskStore store.TaskStore,
	ruleStore store.RuleStore,
	deduper Deduper,
	maxAttempts int,
	logger *slog.Logger,
) *Service {
	return &Service{
		transactor:  transactor,
		emailStore:  emailStore,
		taskStore:   taskStore,
		ruleStore:   ruleStore,
		deduper:     deduper,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "ingest"),
	}
}

// IngestEmail records one inbound email and creates extraction tasks for
// every attachment whose filename matches a sender rule. An email whose
// attachments match no rule at all is finalized as IGNORED immediately.
// Returns store.ErrMessageIDExists for a duplicate message id.
func (s *Service) IngestEmail(ctx context.Context, inbound InboundEmail) (email *domain.ProcessedEmail, err error) {
	dedupeKey := fmt.Sprintf("%s:%s", inbound.TenantID, inbound.MessageID)
	if !s.deduper.AcquireOnce(ctx, dedupeKey) {
		s.logger.Info("duplicate message id, skipping",
			"tenant_id", inbound.TenantID,
			"message_id", inbound.MessageID)
		return nil, store.ErrMessageIDExists
	}

	// A failed ingestion must not burn the dedupe key for the whole
	// TTL; release it so the poller's next attempt gets through.
	defer func() {
		if err != nil {
			s.deduper.Release(ctx, dedupeKey)
		}
	}()

	rules, err := s.ruleStore.ListAttachmentRules(ctx, inbound.TenantID, inbound.Sender)
	if err != nil {
		return nil, fmt.Errorf("failed to load attachment rules: %w", err)
	}

	email, err = domain.NewProcessedEmail(
		inbound.TenantID, inbound.MessageID, inbound.Sender, inbound.Subject,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	// Match everything up front so the email row is inserted with its
	// final initial status and no follow-up update is needed.
	type plannedTask struct {
		attachment *domain.Attachment
		rule       *domain.AttachmentRule
	}

	var attachments []*domain.Attachment
	var planned []plannedTask

	for _, in := range inbound.Attachments {
		attachment := domain.NewAttachment(email.ID, in.Filename, in.ContentRef)
		if rule := MatchRule(rules, in.Filename); rule != nil {
			attachment.Matched = true
			planned = append(planned, plannedTask{attachment: attachment, rule: rule})
		}
		attachments = append(attachments, attachment)
	}

	now := time.Now().UTC()
	if len(planned) == 0 {
		// No matching sender rule is a configuration no-op, not a
		// failure: finalize as IGNORED rather than leaving the email
		// pending forever.
		if err := email.Ignore(now); err != nil {
			return nil, err
		}
	} else {
		if err := email.BeginProcessing(); err != nil {
			return nil, err
		}
	}

	err = s.transactor.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		emails := s.emailStore.WithTx(tx)
		tasks := s.taskStore.WithTx(tx)

		if err := emails.Create(ctx, email); err != nil {
			return err
		}
		for _, attachment := range attachments {
			if err := emails.CreateAttachment(ctx, attachment); err != nil {
				return err
			}
		}
		for _, p := range planned {
			task, err := domain.NewExtractionTask(
				email.ID, email.TenantID, p.attachment.ID,
				p.rule.SourceTag, p.rule.DestTag,
				p.rule.Priority, s.maxAttempts,
			)
			if err != nil {
				return err
			}
			if err := tasks.Create(ctx, task); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ingested email",
		"email_id", email.ID,
		"tenant_id", email.TenantID,
		"status", email.Status,
		"attachments", len(attachments),
		"tasks", len(planned))

	return email, nil
}
