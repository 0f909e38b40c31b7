package domain_test

import (
	"testing"
	"time"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmail(t *testing.T) *domain.ProcessedEmail {
	t.Helper()
	email, err := domain.NewProcessedEmail(uuid.New(), "<msg-1@example.com>", "billing@acme.test", "Invoices")
	require.NoError(t, err)
	return email
}

func TestProcessedEmailFinalize(t *testing.T) {
	now := time.Now().UTC()

	t.Run("all children completed", func(t *testing.T) {
		email := newTestEmail(t)
		require.NoError(t, email.BeginProcessing())

		require.NoError(t, email.Finalize(true, now))
		assert.Equal(t, domain.EmailStatusCompleted, email.Status)
		assert.NotNil(t, email.FinalizedAt)
		assert.True(t, email.Status.IsFinal())
	})

	t.Run("partial success is failure", func(t *testing.T) {
		email := newTestEmail(t)
		require.NoError(t, email.BeginProcessing())

		require.NoError(t, email.Finalize(false, now))
		assert.Equal(t, domain.EmailStatusFailed, email.Status)
	})

	t.Run("finalizing twice is rejected", func(t *testing.T) {
		email := newTestEmail(t)
		require.NoError(t, email.BeginProcessing())
		require.NoError(t, email.Finalize(true, now))

		assert.ErrorIs(t, email.Finalize(true, now), domain.ErrInvalidTransition)
	})

	t.Run("pending email cannot be finalized", func(t *testing.T) {
		email := newTestEmail(t)
		assert.ErrorIs(t, email.Finalize(true, now), domain.ErrInvalidTransition)
	})
}

func TestProcessedEmailIgnore(t *testing.T) {
	now := time.Now().UTC()

	email := newTestEmail(t)
	require.NoError(t, email.Ignore(now))
	assert.Equal(t, domain.EmailStatusIgnored, email.Status)
	assert.True(t, email.Status.IsFinal())
	assert.NotNil(t, email.FinalizedAt)

	// IGNORED is terminal.
	assert.ErrorIs(t, email.BeginProcessing(), domain.ErrInvalidTransition)
}

func TestProcessedEmailValidate(t *testing.T) {
	_, err := domain.NewProcessedEmail(uuid.Nil, "<msg>", "a@b.test", "subj")
	assert.ErrorIs(t, err, domain.ErrEmptyEmailTenantID)

	_, err = domain.NewProcessedEmail(uuid.New(), "", "a@b.test", "subj")
	assert.ErrorIs(t, err, domain.ErrEmptyMessageID)
}
