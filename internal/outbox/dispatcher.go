// Package outbox delivers queued notification rows to their channels.
// Creation of rows lives in notify; this package only drains the table.
package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/docuflow/docuflow-api/internal/config"
	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/metrics"
	"github.com/docuflow/docuflow-api/internal/notify"
	"github.com/docuflow/docuflow-api/internal/platform/backoff"
	"github.com/docuflow/docuflow-api/internal/store"
)

// Dispatcher polls the outbox and pushes deliverable rows through the
// channel senders. Delivery is at-least-once: a crash between send and
// update re-delivers after the claim lease lapses.
type Dispatcher struct {
	outbox  store.OutboxStore
	senders *notify.Registry
	cfg     config.OutboxConfig
	policy  backoff.Policy
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates an outbox dispatcher.
func NewDispatcher(
	outbox store.OutboxStore,
	senders *notify.Registry,
	cfg config.OutboxConfig,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		outbox:  outbox,
		senders: senders,
		cfg:     cfg,
		policy:  backoff.Policy{Base: cfg.BackoffBase, Cap: cfg.BackoffCap},
		logger:  logger.With("component", "outbox_dispatcher"),
	}
}

// Start launches the poll loop.
func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.wg.Add(1)
	go d.pollLoop(ctx)

	d.logger.Info("outbox dispatcher started",
		"poll_interval", d.cfg.PollInterval,
		"batch_size", d.cfg.BatchSize,
		"max_attempts", d.cfg.MaxAttempts)
}

// Stop shuts the dispatcher down, waiting for the in-flight batch.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.logger.Info("outbox dispatcher stopped")
}

func (d *Dispatcher) pollLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drainBatch(ctx)
		}
	}
}

// drainBatch claims one FIFO batch and delivers it sequentially. The
// claim lease must outlive the worst case of every row in the batch
// using its full send timeout.
func (d *Dispatcher) drainBatch(ctx context.Context) {
	lease := d.cfg.SendTimeout*time.Duration(d.cfg.BatchSize) + d.cfg.PollInterval

	claimed, err := d.outbox.ClaimBatch(ctx, d.cfg.BatchSize, time.Now().UTC(), lease)
	if err != nil {
		d.logger.Error("failed to claim outbox batch", "error", err)
		return
	}

	for _, event := range claimed {
		if ctx.Err() != nil {
			return
		}
		d.deliver(ctx, event)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event *domain.WebhookEvent) {
	log := d.logger.With(
		"event_id", event.ID,
		"event_type", event.EventType,
		"channel", event.Channel,
		"attempt", event.AttemptCount+1,
	)

	response, err := d.send(ctx, event)

	now := time.Now().UTC()
	if err != nil {
		nextRetryAt := d.policy.NextRetryAt(now, event.AttemptCount)
		if ferr := event.RecordFailure(err.Error(), nextRetryAt); ferr != nil {
			log.Error("illegal failure transition", "error", ferr)
			return
		}
		if uerr := d.outbox.Update(ctx, event); uerr != nil {
			log.Error("failed to persist event failure", "error", uerr)
			return
		}

		if event.Status == domain.EventStatusFailed {
			metrics.OutboxDelivered.WithLabelValues(string(event.Channel), "failed").Inc()
			log.Warn("notification failed terminally",
				"attempts", event.AttemptCount, "error", err)
		} else {
			metrics.OutboxDelivered.WithLabelValues(string(event.Channel), "retrying").Inc()
			log.Info("notification delivery failed, will retry",
				"next_retry_at", nextRetryAt, "error", err)
		}
		return
	}

	if merr := event.MarkSent(response, now); merr != nil {
		log.Error("illegal sent transition", "error", merr)
		return
	}
	if uerr := d.outbox.Update(ctx, event); uerr != nil {
		// The row stays claimed until the lease lapses, then redelivers.
		log.Error("failed to persist sent event", "error", uerr)
		return
	}

	metrics.OutboxDelivered.WithLabelValues(string(event.Channel), "sent").Inc()
	log.Info("notification delivered")
}

func (d *Dispatcher) send(ctx context.Context, event *domain.WebhookEvent) (string, error) {
	sender, err := d.senders.Lookup(event.Channel)
	if err != nil {
		return "", err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	response, err := sender.Send(sendCtx, event)
	metrics.OutboxSendDuration.WithLabelValues(string(event.Channel)).Observe(time.Since(start).Seconds())
	return response, err
}
