package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/docuflow/docuflow-api/internal/config"
	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/mocks"
	"github.com/docuflow/docuflow-api/internal/platform/extraction"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingFinalizer captures terminal notifications.
type recordingFinalizer struct {
	mu       sync.Mutex
	emailIDs []uuid.UUID
}

func (f *recordingFinalizer) TaskFinalized(_ context.Context, emailID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emailIDs = append(f.emailIDs, emailID)
	return nil
}

func (f *recordingFinalizer) calls() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.emailIDs...)
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		PollInterval:  time.Minute,
		BatchSize:     10,
		WorkerCount:   2,
		MaxAttempts:   5,
		BackoffBase:   time.Nanosecond,
		BackoffCap:    time.Nanosecond,
		StuckAfter:    5 * time.Minute,
		SweepInterval: time.Minute,
	}
}

func newQueueTask(t *testing.T, maxAttempts int) *domain.ExtractionTask {
	t.Helper()
	task, err := domain.NewExtractionTask(
		uuid.New(), uuid.New(), uuid.New(),
		"invoices", "archive", 1, maxAttempts,
	)
	require.NoError(t, err)
	return task
}

func TestWorker_TaskCompletesOnFirstAttempt(t *testing.T) {
	tasks := mocks.NewFakeTaskStore()
	extractor := &mocks.FakeExtractor{}
	finalizer := &recordingFinalizer{}
	w := NewWorker(tasks, extractor, finalizer, testQueueConfig(), slog.Default())

	task := newQueueTask(t, 5)
	require.NoError(t, tasks.Create(context.Background(), task))

	w.processBatch(context.Background())

	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, 1, task.AttemptCount)
	assert.NotEmpty(t, task.Result)
	assert.Equal(t, []uuid.UUID{task.EmailID}, finalizer.calls())

	// Extraction request carries the stable correlation id.
	require.Len(t, extractor.Requests, 1)
	assert.Equal(t, task.CorrelationID, extractor.Requests[0].CorrelationID)
}

func TestWorker_TaskFailsTwiceThenSucceeds(t *testing.T) {
	tasks := mocks.NewFakeTaskStore()
	extractor := &mocks.FakeExtractor{
		ExtractFn: func(call int, _ extraction.Request) (*extraction.Result, error) {
			if call <= 2 {
				return nil, errors.New("remote unavailable")
			}
			return &extraction.Result{Reference: "doc-ref"}, nil
		},
	}
	finalizer := &recordingFinalizer{}
	w := NewWorker(tasks, extractor, finalizer, testQueueConfig(), slog.Default())

	task := newQueueTask(t, 5)
	require.NoError(t, tasks.Create(context.Background(), task))

	// Two failing rounds, then the succeeding one. The nanosecond
	// backoff makes the retry immediately claimable.
	for i := 0; i < 3; i++ {
		time.Sleep(time.Microsecond)
		w.processBatch(context.Background())
	}

	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, 3, task.AttemptCount)
	assert.Equal(t, 3, extractor.Calls())
	// Only the terminal transition notified the correlator.
	assert.Equal(t, []uuid.UUID{task.EmailID}, finalizer.calls())
}

func TestWorker_TaskExhaustsAttemptBudget(t *testing.T) {
	tasks := mocks.NewFakeTaskStore()
	extractor := &mocks.FakeExtractor{
		ExtractFn: func(int, extraction.Request) (*extraction.Result, error) {
			return nil, errors.New("remote unavailable")
		},
	}
	finalizer := &recordingFinalizer{}
	w := NewWorker(tasks, extractor, finalizer, testQueueConfig(), slog.Default())

	task := newQueueTask(t, 5)
	require.NoError(t, tasks.Create(context.Background(), task))

	for i := 0; i < 5; i++ {
		time.Sleep(time.Microsecond)
		w.processBatch(context.Background())
	}

	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Equal(t, 5, task.AttemptCount)
	assert.Equal(t, 5, extractor.Calls())
	assert.Equal(t, []uuid.UUID{task.EmailID}, finalizer.calls())

	// The failed task is no longer claimable.
	w.processBatch(context.Background())
	assert.Equal(t, 5, extractor.Calls())
}

func TestWorker_RetryAfterFailureIsScheduledForward(t *testing.T) {
	cfg := testQueueConfig()
	cfg.BackoffBase = time.Minute
	cfg.BackoffCap = time.Hour

	tasks := mocks.NewFakeTaskStore()
	extractor := &mocks.FakeExtractor{
		ExtractFn: func(int, extraction.Request) (*extraction.Result, error) {
			return nil, errors.New("remote unavailable")
		},
	}
	w := NewWorker(tasks, extractor, &recordingFinalizer{}, cfg, slog.Default())

	task := newQueueTask(t, 5)
	require.NoError(t, tasks.Create(context.Background(), task))

	before := time.Now().UTC()
	w.processBatch(context.Background())

	assert.Equal(t, domain.TaskStatusRetrying, task.Status)
	require.NotNil(t, task.NextRetryAt)
	assert.True(t, task.NextRetryAt.After(before))

	// Not due yet: the next poll must not claim it.
	w.processBatch(context.Background())
	assert.Equal(t, 1, extractor.Calls())
}

func TestWorker_BatchOrderPrefersPriority(t *testing.T) {
	tasks := mocks.NewFakeTaskStore()
	var order []uuid.UUID
	var mu sync.Mutex
	extractor := &mocks.FakeExtractor{
		ExtractFn: func(_ int, req extraction.Request) (*extraction.Result, error) {
			mu.Lock()
			id, _ := uuid.Parse(req.AttachmentRef)
			order = append(order, id)
			mu.Unlock()
			return &extraction.Result{}, nil
		},
	}
	cfg := testQueueConfig()
	cfg.WorkerCount = 1 // serialize execution to observe hand-off order
	w := NewWorker(tasks, extractor, &recordingFinalizer{}, cfg, slog.Default())

	low := newQueueTask(t, 5)
	low.Priority = 1
	high := newQueueTask(t, 5)
	high.Priority = 9
	high.CreatedAt = low.CreatedAt.Add(time.Second) // newer but higher priority
	require.NoError(t, tasks.Create(context.Background(), low))
	require.NoError(t, tasks.Create(context.Background(), high))

	w.processBatch(context.Background())

	require.Len(t, order, 2)
	assert.Equal(t, high.AttachmentID, order[0])
	assert.Equal(t, low.AttachmentID, order[1])
}

func TestWorker_SweepRecoversStuckTasks(t *testing.T) {
	tasks := mocks.NewFakeTaskStore()
	finalizer := &recordingFinalizer{}
	w := NewWorker(tasks, &mocks.FakeExtractor{}, finalizer, testQueueConfig(), slog.Default())

	// Claimed long ago by a worker that never came back.
	stuck := newQueueTask(t, 5)
	staleStart := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, stuck.Claim(staleStart))
	require.NoError(t, tasks.Create(context.Background(), stuck))

	// Same situation but with no attempt budget left.
	doomed := newQueueTask(t, 1)
	require.NoError(t, doomed.Claim(staleStart))
	require.NoError(t, tasks.Create(context.Background(), doomed))

	// Freshly claimed: must be left alone.
	active := newQueueTask(t, 5)
	require.NoError(t, active.Claim(time.Now().UTC()))
	require.NoError(t, tasks.Create(context.Background(), active))

	w.sweepStuck(context.Background())

	assert.Equal(t, domain.TaskStatusRetrying, stuck.Status)
	require.NotNil(t, stuck.NextRetryAt)
	assert.False(t, stuck.NextRetryAt.After(time.Now().UTC()))

	assert.Equal(t, domain.TaskStatusFailed, doomed.Status)
	assert.Equal(t, domain.TaskStatusProcessing, active.Status)

	// Only the terminally failed task finalizes its email.
	assert.Equal(t, []uuid.UUID{doomed.EmailID}, finalizer.calls())
}

func TestWorker_StartStop(t *testing.T) {
	cfg := testQueueConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.SweepInterval = 5 * time.Millisecond

	tasks := mocks.NewFakeTaskStore()
	w := NewWorker(tasks, &mocks.FakeExtractor{}, &recordingFinalizer{}, cfg, slog.Default())

	task := newQueueTask(t, 5)
	require.NoError(t, tasks.Create(context.Background(), task))

	w.Start()
	assert.Eventually(t, func() bool {
		got, err := tasks.GetByID(context.Background(), task.ID)
		return err == nil && got.Status == domain.TaskStatusCompleted
	}, time.Second, 5*time.Millisecond)
	w.Stop()
}
