// Package metrics defines the Prometheus collectors for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksClaimed counts extraction tasks claimed by workers.
	TasksClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "extraction_tasks_claimed_total",
		Help: "Extraction tasks claimed for processing",
	})

	// TasksProcessed counts finished task attempts by outcome
	// (completed, retrying, failed).
	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extraction_tasks_processed_total",
		Help: "Extraction task attempts by outcome",
	}, []string{"outcome"})

	// TasksRecovered counts stuck tasks reset by the sweep.
	TasksRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "extraction_tasks_recovered_total",
		Help: "Stuck extraction tasks recovered by the sweep",
	})

	// ExtractionDuration observes the latency of extraction calls.
	ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "extraction_call_duration_seconds",
		Help:    "Remote extraction call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// OutboxDelivered counts outbox delivery attempts by outcome
	// (sent, retrying, failed).
	OutboxDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_deliveries_total",
		Help: "Outbox delivery attempts by outcome",
	}, []string{"channel", "outcome"})

	// OutboxSendDuration observes the latency of channel sends.
	OutboxSendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_send_duration_seconds",
		Help:    "Notification send duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"channel"})

	// EmailsFinalized counts finalized emails by outcome.
	EmailsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emails_finalized_total",
		Help: "Processed emails finalized by outcome",
	}, []string{"outcome"})
)
