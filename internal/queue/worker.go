// Package queue drives extraction tasks to completion: claiming runnable
// rows from the durable store, executing the extraction call, scheduling
// retries with backoff, and recovering tasks lost to crashed workers.
// The store is the only scheduler of record; nothing in memory is
// authoritative.
package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/docuflow/docuflow-api/internal/config"
	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/metrics"
	"github.com/docuflow/docuflow-api/internal/platform/backoff"
	"github.com/docuflow/docuflow-api/internal/platform/extraction"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

// Finalizer is notified after every terminal task transition so the
// parent email can be finalized once all siblings are done.
type Finalizer interface {
	TaskFinalized(ctx context.Context, emailID uuid.UUID) error
}

// Worker polls the task queue and executes claimed tasks.
type Worker struct {
	tasks     store.TaskStore
	extractor extraction.Extractor
	finalizer Finalizer
	cfg       config.QueueConfig
	policy    backoff.Policy
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a task queue worker.
func NewWorker(
	tasks store.TaskStore,
	extractor extraction.Extractor,
	finalizer Finalizer,
	cfg config.QueueConfig,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		tasks:     tasks,
		extractor: extractor,
		finalizer: finalizer,
		cfg:       cfg,
		policy:    backoff.Policy{Base: cfg.BackoffBase, Cap: cfg.BackoffCap},
		logger:    logger.With("component", "task_worker"),
	}
}

// Start launches the poll loop and the stuck-task sweep. Both run until
// Stop is called.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(2)
	go w.pollLoop(ctx)
	go w.sweepLoop(ctx)

	w.logger.Info("task worker started",
		"poll_interval", w.cfg.PollInterval,
		"batch_size", w.cfg.BatchSize,
		"worker_count", w.cfg.WorkerCount,
		"max_attempts", w.cfg.MaxAttempts)
}

// Stop shuts the worker down, waiting for in-flight tasks to finish.
// Tasks claimed before the stop complete their current attempt; cancel
// never preempts in-flight work.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("task worker stopped")
}

func (w *Worker) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

// processBatch claims one batch and fans it out to a bounded set of
// executors. Batch order (priority DESC, created_at ASC) is preserved
// at hand-off; no ordering holds across concurrent worker processes.
func (w *Worker) processBatch(ctx context.Context) {
	claimed, err := w.tasks.ClaimBatch(ctx, w.cfg.BatchSize, time.Now().UTC())
	if err != nil {
		w.logger.Error("failed to claim task batch", "error", err)
		return
	}
	if len(claimed) == 0 {
		return
	}

	metrics.TasksClaimed.Add(float64(len(claimed)))
	w.logger.Debug("claimed task batch", "count", len(claimed))

	sem := make(chan struct{}, w.cfg.WorkerCount)
	var batch sync.WaitGroup
	for _, task := range claimed {
		sem <- struct{}{}
		batch.Add(1)
		go func(t *domain.ExtractionTask) {
			defer batch.Done()
			defer func() { <-sem }()
			w.executeTask(ctx, t)
		}(task)
	}
	batch.Wait()
}

// executeTask runs one claimed task to its next state. The task row is
// owned by this worker until the update commits; failures here only
// affect this row, never siblings.
func (w *Worker) executeTask(ctx context.Context, task *domain.ExtractionTask) {
	log := w.logger.With(
		"task_id", task.ID,
		"email_id", task.EmailID,
		"correlation_id", task.CorrelationID,
		"attempt", task.AttemptCount+1,
	)
	log.Info("processing extraction task")

	start := time.Now()
	result, err := w.extractor.Extract(ctx, extraction.Request{
		AttachmentRef: task.AttachmentID.String(),
		SourceTag:     task.SourceTag,
		DestTag:       task.DestTag,
		CorrelationID: task.CorrelationID,
	})
	metrics.ExtractionDuration.Observe(time.Since(start).Seconds())

	now := time.Now().UTC()
	if err != nil {
		w.handleFailure(ctx, task, err, now, log)
		return
	}

	payload, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		w.handleFailure(ctx, task, marshalErr, now, log)
		return
	}

	if err := task.Complete(payload, now); err != nil {
		log.Error("illegal completion transition", "error", err)
		return
	}
	if err := w.tasks.Update(ctx, task); err != nil {
		log.Error("failed to persist completed task", "error", err)
		return
	}

	metrics.TasksProcessed.WithLabelValues("completed").Inc()
	log.Info("extraction task completed")

	w.notifyFinalizer(ctx, task.EmailID, log)
}

// handleFailure schedules a retry while budget remains, otherwise fails
// the task terminally. Timeouts count like any other failure.
func (w *Worker) handleFailure(ctx context.Context, task *domain.ExtractionTask, cause error, now time.Time, log *slog.Logger) {
	if task.AttemptCount+1 >= task.MaxAttempts {
		if err := task.Fail(cause.Error(), now); err != nil {
			log.Error("illegal failure transition", "error", err)
			return
		}
		if err := w.tasks.Update(ctx, task); err != nil {
			log.Error("failed to persist failed task", "error", err)
			return
		}

		metrics.TasksProcessed.WithLabelValues("failed").Inc()
		log.Warn("extraction task failed terminally",
			"attempts", task.AttemptCount,
			"error", cause)

		w.notifyFinalizer(ctx, task.EmailID, log)
		return
	}

	nextRetryAt := w.policy.NextRetryAt(now, task.AttemptCount)
	if err := task.ScheduleRetry(cause.Error(), nextRetryAt); err != nil {
		log.Error("illegal retry transition", "error", err)
		return
	}
	if err := w.tasks.Update(ctx, task); err != nil {
		log.Error("failed to persist retrying task", "error", err)
		return
	}

	metrics.TasksProcessed.WithLabelValues("retrying").Inc()
	log.Info("extraction task scheduled for retry",
		"attempt", task.AttemptCount,
		"next_retry_at", nextRetryAt,
		"error", cause)
}

// sweepLoop periodically recovers tasks stuck in PROCESSING past the
// timeout threshold (their worker crashed mid-task).
func (w *Worker) sweepLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepStuck(ctx)
		}
	}
}

func (w *Worker) sweepStuck(ctx context.Context) {
	now := time.Now().UTC()
	cutoff := now.Add(-w.cfg.StuckAfter)

	recovered, failed, err := w.tasks.SweepStuck(ctx, cutoff, now)
	if err != nil {
		w.logger.Error("stuck task sweep failed", "error", err)
		return
	}

	if recovered > 0 {
		metrics.TasksRecovered.Add(float64(recovered))
		w.logger.Info("recovered stuck tasks", "count", recovered)
	}

	for _, task := range failed {
		metrics.TasksProcessed.WithLabelValues("failed").Inc()
		w.logger.Warn("stuck task failed terminally",
			"task_id", task.ID,
			"attempts", task.AttemptCount)
		w.notifyFinalizer(ctx, task.EmailID, w.logger)
	}
}

func (w *Worker) notifyFinalizer(ctx context.Context, emailID uuid.UUID, log *slog.Logger) {
	if err := w.finalizer.TaskFinalized(ctx, emailID); err != nil {
		// The next terminal sibling (or a sweep) retries finalization;
		// the email stays PROCESSING until one succeeds.
		log.Error("failed to finalize parent email", "email_id", emailID, "error", err)
	}
}
