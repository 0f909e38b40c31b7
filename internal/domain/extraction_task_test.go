package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTask(t *testing.T, maxAttempts int) *domain.ExtractionTask {
	t.Helper()
	task, err := domain.NewExtractionTask(
		uuid.New(), uuid.New(), uuid.New(),
		"invoices", "archive", 1, maxAttempts,
	)
	require.NoError(t, err)
	return task
}

func TestNewExtractionTask(t *testing.T) {
	task := newTestTask(t, 5)

	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, 0, task.AttemptCount)
	assert.NotEqual(t, uuid.Nil, task.CorrelationID)
	assert.Nil(t, task.NextRetryAt)
}

func TestExtractionTaskLifecycle_CompleteOnFirstAttempt(t *testing.T) {
	task := newTestTask(t, 5)
	now := time.Now().UTC()

	require.NoError(t, task.Claim(now))
	assert.Equal(t, domain.TaskStatusProcessing, task.Status)
	require.NotNil(t, task.StartedAt)

	result := json.RawMessage(`{"reference":"doc-1"}`)
	require.NoError(t, task.Complete(result, now))
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, 1, task.AttemptCount)
	assert.True(t, task.Status.IsTerminal())
}

func TestExtractionTaskLifecycle_FailTwiceThenSucceed(t *testing.T) {
	task := newTestTask(t, 5)
	now := time.Now().UTC()

	for i := 0; i < 2; i++ {
		require.NoError(t, task.Claim(now))
		require.NoError(t, task.ScheduleRetry("boom", now))
	}
	assert.Equal(t, domain.TaskStatusRetrying, task.Status)
	assert.Equal(t, 2, task.AttemptCount)

	require.NoError(t, task.Claim(now))
	require.NoError(t, task.Complete(json.RawMessage(`{}`), now))

	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, 3, task.AttemptCount)
}

func TestExtractionTaskScheduleRetry_BudgetExhausted(t *testing.T) {
	task := newTestTask(t, 2)
	now := time.Now().UTC()

	require.NoError(t, task.Claim(now))
	require.NoError(t, task.ScheduleRetry("boom", now))

	// One attempt left: retry must be refused, Fail is the only move.
	require.NoError(t, task.Claim(now))
	err := task.ScheduleRetry("boom again", now)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, task.Fail("boom again", now))
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Equal(t, 2, task.AttemptCount)
}

func TestExtractionTaskClaim(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(time.Minute)

	t.Run("retrying task not yet due", func(t *testing.T) {
		task := newTestTask(t, 5)
		require.NoError(t, task.Claim(now))
		require.NoError(t, task.ScheduleRetry("boom", future))

		assert.ErrorIs(t, task.Claim(now), domain.ErrTaskNotDue)
	})

	t.Run("retrying task due", func(t *testing.T) {
		task := newTestTask(t, 5)
		require.NoError(t, task.Claim(now))
		require.NoError(t, task.ScheduleRetry("boom", now))

		assert.NoError(t, task.Claim(now.Add(time.Second)))
		assert.Nil(t, task.NextRetryAt)
	})

	t.Run("terminal task cannot be claimed", func(t *testing.T) {
		task := newTestTask(t, 5)
		require.NoError(t, task.Claim(now))
		require.NoError(t, task.Complete(nil, now))

		assert.ErrorIs(t, task.Claim(now), domain.ErrInvalidTransition)
	})
}

func TestExtractionTaskCancel(t *testing.T) {
	now := time.Now().UTC()

	t.Run("pending task cancels", func(t *testing.T) {
		task := newTestTask(t, 5)
		require.NoError(t, task.Cancel(now))
		assert.Equal(t, domain.TaskStatusCancelled, task.Status)
	})

	t.Run("retrying task cancels", func(t *testing.T) {
		task := newTestTask(t, 5)
		require.NoError(t, task.Claim(now))
		require.NoError(t, task.ScheduleRetry("boom", now))
		require.NoError(t, task.Cancel(now))
		assert.Equal(t, domain.TaskStatusCancelled, task.Status)
		assert.Nil(t, task.NextRetryAt)
	})

	t.Run("processing task keeps running", func(t *testing.T) {
		task := newTestTask(t, 5)
		require.NoError(t, task.Claim(now))

		assert.ErrorIs(t, task.Cancel(now), domain.ErrInvalidTransition)
		assert.Equal(t, domain.TaskStatusProcessing, task.Status)
	})
}

func TestExtractionTaskResetForRetry(t *testing.T) {
	now := time.Now().UTC()

	t.Run("failed task resets with cleared budget", func(t *testing.T) {
		task := newTestTask(t, 2)
		require.NoError(t, task.Claim(now))
		require.NoError(t, task.ScheduleRetry("boom", now))
		require.NoError(t, task.Claim(now))
		require.NoError(t, task.Fail("boom", now))

		require.NoError(t, task.ResetForRetry())
		assert.Equal(t, domain.TaskStatusPending, task.Status)
		assert.Equal(t, 0, task.AttemptCount)
		assert.Empty(t, task.LastError)
		assert.Nil(t, task.StartedAt)
	})

	t.Run("non-failed task is rejected", func(t *testing.T) {
		task := newTestTask(t, 5)
		assert.ErrorIs(t, task.ResetForRetry(), domain.ErrInvalidTransition)
	})
}

func TestExtractionTaskRecoverStuck(t *testing.T) {
	now := time.Now().UTC()

	t.Run("budget remaining becomes immediately retryable", func(t *testing.T) {
		task := newTestTask(t, 5)
		require.NoError(t, task.Claim(now))

		require.NoError(t, task.RecoverStuck(now))
		assert.Equal(t, domain.TaskStatusRetrying, task.Status)
		assert.Equal(t, 1, task.AttemptCount)
		require.NotNil(t, task.NextRetryAt)
		assert.False(t, task.NextRetryAt.After(now))
	})

	t.Run("budget exhausted becomes failed", func(t *testing.T) {
		task := newTestTask(t, 1)
		require.NoError(t, task.Claim(now))

		require.NoError(t, task.RecoverStuck(now))
		assert.Equal(t, domain.TaskStatusFailed, task.Status)
	})
}

func TestExtractionTaskValidate(t *testing.T) {
	task := newTestTask(t, 5)

	// next_retry_at only makes sense on a RETRYING task.
	retryAt := time.Now().UTC()
	task.NextRetryAt = &retryAt
	assert.ErrorIs(t, task.Validate(), domain.ErrRetryDanglingState)
}
