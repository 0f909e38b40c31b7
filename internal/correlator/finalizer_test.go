package correlator_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/docuflow/docuflow-api/internal/correlator"
	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/metrics"
	"github.com/docuflow/docuflow-api/internal/mocks"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDispatcher captures Dispatch calls.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

type dispatchCall struct {
	tenantID  uuid.UUID
	eventType string
	data      map[string]any
}

func (d *recordingDispatcher) Dispatch(
	_ context.Context, _ *sql.Tx,
	tenantID uuid.UUID, _ string, _ uuid.UUID,
	eventType string, data map[string]any,
) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{tenantID: tenantID, eventType: eventType, data: data})
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type correlatorFixture struct {
	finalizer  *correlator.Finalizer
	emails     *mocks.FakeEmailStore
	tasks      *mocks.FakeTaskStore
	dispatcher *recordingDispatcher
}

func newCorrelatorFixture(t *testing.T) *correlatorFixture {
	t.Helper()
	f := &correlatorFixture{
		emails:     mocks.NewFakeEmailStore(),
		tasks:      mocks.NewFakeTaskStore(),
		dispatcher: &recordingDispatcher{},
	}
	f.finalizer = correlator.NewFinalizer(
		mocks.FakeTransactor{}, f.emails, f.tasks, f.dispatcher, slog.Default(),
	)
	return f
}

// seedEmail creates a PROCESSING email with child tasks in the given
// terminal (or not) statuses.
func (f *correlatorFixture) seedEmail(t *testing.T, statuses ...domain.TaskStatus) *domain.ProcessedEmail {
	t.Helper()
	email, err := domain.NewProcessedEmail(uuid.New(), "<msg@acme.test>", "billing@acme.test", "subj")
	require.NoError(t, err)
	require.NoError(t, email.BeginProcessing())
	require.NoError(t, f.emails.Create(context.Background(), email))

	now := time.Now().UTC()
	for _, status := range statuses {
		task, err := domain.NewExtractionTask(
			email.ID, email.TenantID, uuid.New(), "src", "dst", 1, 5,
		)
		require.NoError(t, err)
		switch status {
		case domain.TaskStatusCompleted:
			require.NoError(t, task.Claim(now))
			require.NoError(t, task.Complete(nil, now))
		case domain.TaskStatusFailed:
			require.NoError(t, task.Claim(now))
			require.NoError(t, task.Fail("boom", now))
		case domain.TaskStatusCancelled:
			require.NoError(t, task.Cancel(now))
		case domain.TaskStatusProcessing:
			require.NoError(t, task.Claim(now))
		}
		require.NoError(t, f.tasks.Create(context.Background(), task))
	}
	return email
}

func TestFinalizer_AllCompleted(t *testing.T) {
	f := newCorrelatorFixture(t)
	email := f.seedEmail(t, domain.TaskStatusCompleted, domain.TaskStatusCompleted)

	require.NoError(t, f.finalizer.TaskFinalized(context.Background(), email.ID))

	assert.Equal(t, domain.EmailStatusCompleted, email.Status)
	require.Equal(t, 1, f.dispatcher.count())
	call := f.dispatcher.calls[0]
	assert.Equal(t, domain.EventEmailProcessed, call.eventType)
	assert.Equal(t, email.TenantID, call.tenantID)
	assert.Equal(t, "COMPLETED", call.data["status"])
	assert.Equal(t, 2, call.data["tasks_total"])
}

func TestFinalizer_AnyChildFailedFailsEmail(t *testing.T) {
	f := newCorrelatorFixture(t)
	email := f.seedEmail(t, domain.TaskStatusCompleted, domain.TaskStatusFailed)

	require.NoError(t, f.finalizer.TaskFinalized(context.Background(), email.ID))

	assert.Equal(t, domain.EmailStatusFailed, email.Status)
	require.Equal(t, 1, f.dispatcher.count())
	assert.Equal(t, "FAILED", f.dispatcher.calls[0].data["status"])
	assert.Equal(t, 1, f.dispatcher.calls[0].data["tasks_failed"])
}

func TestFinalizer_CancelledChildCountsTerminalNotCompleted(t *testing.T) {
	f := newCorrelatorFixture(t)
	email := f.seedEmail(t, domain.TaskStatusCompleted, domain.TaskStatusCancelled)

	require.NoError(t, f.finalizer.TaskFinalized(context.Background(), email.ID))
	assert.Equal(t, domain.EmailStatusFailed, email.Status)

	// The cancelled child fails the email but is not itself a failure.
	require.Equal(t, 1, f.dispatcher.count())
	assert.Equal(t, 0, f.dispatcher.calls[0].data["tasks_failed"])
}

func TestFinalizer_WaitsForAllChildren(t *testing.T) {
	f := newCorrelatorFixture(t)
	email := f.seedEmail(t, domain.TaskStatusCompleted, domain.TaskStatusProcessing)

	require.NoError(t, f.finalizer.TaskFinalized(context.Background(), email.ID))

	// One child still in flight: nothing happens.
	assert.Equal(t, domain.EmailStatusProcessing, email.Status)
	assert.Zero(t, f.dispatcher.count())
}

func TestFinalizer_Idempotent(t *testing.T) {
	f := newCorrelatorFixture(t)
	email := f.seedEmail(t, domain.TaskStatusCompleted)

	require.NoError(t, f.finalizer.TaskFinalized(context.Background(), email.ID))
	require.NoError(t, f.finalizer.TaskFinalized(context.Background(), email.ID))

	// The second invocation sees a final email and produces no
	// duplicate notification.
	assert.Equal(t, domain.EmailStatusCompleted, email.Status)
	assert.Equal(t, 1, f.dispatcher.count())
}

// failingDispatcher rejects every Dispatch, rolling the finalizing
// transaction back.
type failingDispatcher struct{}

func (failingDispatcher) Dispatch(
	context.Context, *sql.Tx, uuid.UUID, string, uuid.UUID, string, map[string]any,
) error {
	return errors.New("outbox insert failed")
}

func TestFinalizer_MetricCountsCommitsOnly(t *testing.T) {
	counter := metrics.EmailsFinalized.WithLabelValues("completed")

	t.Run("rolled-back finalization is not counted", func(t *testing.T) {
		f := newCorrelatorFixture(t)
		f.finalizer = correlator.NewFinalizer(
			mocks.FakeTransactor{}, f.emails, f.tasks, failingDispatcher{}, slog.Default(),
		)
		email := f.seedEmail(t, domain.TaskStatusCompleted)

		before := testutil.ToFloat64(counter)
		require.Error(t, f.finalizer.TaskFinalized(context.Background(), email.ID))
		assert.Equal(t, before, testutil.ToFloat64(counter))
	})

	t.Run("committed finalization is counted once", func(t *testing.T) {
		f := newCorrelatorFixture(t)
		email := f.seedEmail(t, domain.TaskStatusCompleted)

		before := testutil.ToFloat64(counter)
		require.NoError(t, f.finalizer.TaskFinalized(context.Background(), email.ID))
		assert.Equal(t, before+1, testutil.ToFloat64(counter))
	})
}

func TestFinalizer_IgnoredEmailIsNeverRevisited(t *testing.T) {
	f := newCorrelatorFixture(t)
	email, err := domain.NewProcessedEmail(uuid.New(), "<msg@acme.test>", "a@b.test", "s")
	require.NoError(t, err)
	require.NoError(t, email.Ignore(time.Now().UTC()))
	require.NoError(t, f.emails.Create(context.Background(), email))

	require.NoError(t, f.finalizer.TaskFinalized(context.Background(), email.ID))

	assert.Equal(t, domain.EmailStatusIgnored, email.Status)
	assert.Zero(t, f.dispatcher.count())
}
