package ingest_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/ingest"
	"github.com/docuflow/docuflow-api/internal/mocks"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rejectingDeduper reports every key as already seen.
type rejectingDeduper struct{}

func (rejectingDeduper) AcquireOnce(context.Context, string) bool { return false }
func (rejectingDeduper) Release(context.Context, string)          {}

// recordingDeduper admits every key and records releases.
type recordingDeduper struct {
	released []string
}

func (*recordingDeduper) AcquireOnce(context.Context, string) bool { return true }

func (d *recordingDeduper) Release(_ context.Context, key string) {
	d.released = append(d.released, key)
}

type ingestFixture struct {
	service *ingest.Service
	emails  *mocks.FakeEmailStore
	tasks   *mocks.FakeTaskStore
	rules   *mocks.FakeRuleStore
}

func newIngestFixture(t *testing.T, deduper ingest.Deduper, rules []*domain.AttachmentRule) *ingestFixture {
	t.Helper()
	f := &ingestFixture{
		emails: mocks.NewFakeEmailStore(),
		tasks:  mocks.NewFakeTaskStore(),
		rules:  &mocks.FakeRuleStore{AttachmentRules: rules},
	}
	f.service = ingest.NewService(
		mocks.FakeTransactor{}, f.emails, f.tasks, f.rules,
		deduper, 5, slog.Default(),
	)
	return f
}

func TestIngestEmail_CreatesTasksForMatchedAttachments(t *testing.T) {
	tenantID := uuid.New()
	rules := []*domain.AttachmentRule{{
		ID:              uuid.New(),
		TenantID:        tenantID,
		SenderAddress:   "billing@acme.test",
		FilenamePattern: `^Invoice+([0-9])+(.pdf)$`,
		RuleOrder:       1,
		Priority:        3,
		SourceTag:       "invoices",
		DestTag:         "archive",
		Enabled:         true,
	}}
	f := newIngestFixture(t, ingest.NoopDeduper{}, rules)

	email, err := f.service.IngestEmail(context.Background(), ingest.InboundEmail{
		TenantID:  tenantID,
		MessageID: "<msg-1@acme.test>",
		Sender:    "billing@acme.test",
		Subject:   "Invoices for August",
		Attachments: []ingest.InboundAttachment{
			{Filename: "Invoice123.pdf", ContentRef: "blob://1"},
			{Filename: "terms.txt", ContentRef: "blob://2"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.EmailStatusProcessing, email.Status)

	tasks := f.tasks.All()
	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, email.ID, task.EmailID)
	assert.Equal(t, 3, task.Priority)
	assert.Equal(t, 5, task.MaxAttempts)
	assert.Equal(t, "invoices", task.SourceTag)
	assert.NotEqual(t, uuid.Nil, task.CorrelationID)

	// Both attachments stored; only the matched one flagged.
	attachments := f.emails.Attachments(email.ID)
	require.Len(t, attachments, 2)
	matched := 0
	for _, a := range attachments {
		if a.Matched {
			matched++
		}
	}
	assert.Equal(t, 1, matched)
}

func TestIngestEmail_NoMatchIsIgnored(t *testing.T) {
	tenantID := uuid.New()
	f := newIngestFixture(t, ingest.NoopDeduper{}, nil)

	email, err := f.service.IngestEmail(context.Background(), ingest.InboundEmail{
		TenantID:  tenantID,
		MessageID: "<msg-2@acme.test>",
		Sender:    "unknown@elsewhere.test",
		Attachments: []ingest.InboundAttachment{
			{Filename: "cat.jpg", ContentRef: "blob://3"},
		},
	})
	require.NoError(t, err)

	// Zero matched attachments finalize immediately as IGNORED.
	assert.Equal(t, domain.EmailStatusIgnored, email.Status)
	assert.NotNil(t, email.FinalizedAt)
	assert.Empty(t, f.tasks.All())
}

func TestIngestEmail_DuplicateMessageID(t *testing.T) {
	t.Run("deduper rejects re-polled message", func(t *testing.T) {
		f := newIngestFixture(t, rejectingDeduper{}, nil)

		_, err := f.service.IngestEmail(context.Background(), ingest.InboundEmail{
			TenantID:  uuid.New(),
			MessageID: "<dup@acme.test>",
			Sender:    "billing@acme.test",
		})
		assert.ErrorIs(t, err, store.ErrMessageIDExists)
	})

	t.Run("store unique constraint is the backstop", func(t *testing.T) {
		tenantID := uuid.New()
		f := newIngestFixture(t, ingest.NoopDeduper{}, nil)

		inbound := ingest.InboundEmail{
			TenantID:  tenantID,
			MessageID: "<dup-2@acme.test>",
			Sender:    "billing@acme.test",
		}
		_, err := f.service.IngestEmail(context.Background(), inbound)
		require.NoError(t, err)

		_, err = f.service.IngestEmail(context.Background(), inbound)
		assert.ErrorIs(t, err, store.ErrMessageIDExists)
	})
}

func TestIngestEmail_DedupeKeyReleasedOnFailure(t *testing.T) {
	tenantID := uuid.New()
	deduper := &recordingDeduper{}
	f := newIngestFixture(t, deduper, nil)

	inbound := ingest.InboundEmail{
		TenantID:  tenantID,
		MessageID: "<racy@acme.test>",
		Sender:    "billing@acme.test",
	}

	// The row already exists (another ingestion won the constraint),
	// so the transaction fails and the key must come back: otherwise
	// the message is locked out until the TTL lapses.
	_, err := f.service.IngestEmail(context.Background(), inbound)
	require.NoError(t, err)
	require.Empty(t, deduper.released)

	_, err = f.service.IngestEmail(context.Background(), inbound)
	require.ErrorIs(t, err, store.ErrMessageIDExists)
	assert.Equal(t, []string{tenantID.String() + ":<racy@acme.test>"}, deduper.released)
}
