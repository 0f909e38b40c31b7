package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/docuflow/docuflow-api/internal/api"
	"github.com/docuflow/docuflow-api/internal/api/middleware"
	"github.com/docuflow/docuflow-api/internal/config"
	"github.com/docuflow/docuflow-api/internal/correlator"
	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/ingest"
	"github.com/docuflow/docuflow-api/internal/job"
	"github.com/docuflow/docuflow-api/internal/notify"
	"github.com/docuflow/docuflow-api/internal/outbox"
	"github.com/docuflow/docuflow-api/internal/platform/extraction"
	"github.com/docuflow/docuflow-api/internal/platform/postgres"
	"github.com/docuflow/docuflow-api/internal/queue"
	"github.com/docuflow/docuflow-api/internal/store"
)

// application holds the shared application dependencies so wiring and
// shutdown stay in one place.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	rdb    *redis.Client

	// Stores
	taskStore     store.TaskStore
	emailStore    store.EmailStore
	outboxStore   store.OutboxStore
	jobStore      store.JobStore
	ruleStore     store.RuleStore
	callbackStore store.CallbackStore

	// Services
	ingestService    *ingest.Service
	jobService       *job.Service
	taskAdmin        *queue.AdminService
	outboxAdmin      *outbox.AdminService
	callbackService  *outbox.CallbackService
	finalizer        *correlator.Finalizer
	worker           *queue.Worker
	outboxDispatcher *outbox.Dispatcher
}

// newApplication wires all dependencies. Background loops are created
// but not started; Run starts them.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	app.taskStore = postgres.NewPostgresTaskStore(db)
	app.emailStore = postgres.NewPostgresEmailStore(db)
	app.outboxStore = postgres.NewPostgresOutboxStore(db)
	app.jobStore = postgres.NewPostgresJobStore(db)
	app.ruleStore = postgres.NewPostgresRuleStore(db)
	app.callbackStore = postgres.NewPostgresCallbackStore(db)

	transactor := &store.DBTransactor{DB: db}

	var deduper ingest.Deduper = ingest.NoopDeduper{}
	if cfg.Redis.Addr != "" {
		app.rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := app.rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		deduper = ingest.NewRedisDeduper(app.rdb, cfg.Redis.DedupeTTL, logger)
		logger.Info("ingestion deduper enabled", "addr", cfg.Redis.Addr)
	}

	extractor := extraction.NewClient(cfg.Extraction, logger)

	dispatcher := notify.NewDispatcher(app.ruleStore, app.outboxStore, cfg.Outbox.MaxAttempts, logger)

	app.finalizer = correlator.NewFinalizer(transactor, app.emailStore, app.taskStore, dispatcher, logger)

	app.ingestService = ingest.NewService(
		transactor, app.emailStore, app.taskStore, app.ruleStore,
		deduper, cfg.Queue.MaxAttempts, logger,
	)
	app.jobService = job.NewService(app.jobStore, extractor, logger)
	app.taskAdmin = queue.NewAdminService(transactor, app.taskStore, app.finalizer, logger)
	app.outboxAdmin = outbox.NewAdminService(app.outboxStore, logger)
	app.callbackService = outbox.NewCallbackService(
		transactor, app.taskStore, app.callbackStore, dispatcher, logger,
	)

	app.worker = queue.NewWorker(app.taskStore, extractor, app.finalizer, cfg.Queue, logger)

	senders := notify.NewRegistry()
	senders.Register(domain.ChannelWebhook, notify.NewWebhookSender(cfg.Outbox.SendTimeout))
	senders.Register(domain.ChannelEmail, notify.NewSMTPSender(cfg.Notification))
	senders.Register(domain.ChannelChat, notify.NewChatSender(cfg.Outbox.SendTimeout))
	app.outboxDispatcher = outbox.NewDispatcher(app.outboxStore, senders, cfg.Outbox, logger)

	logger.Info("application initialized")
	return app, nil
}

// setupRouter builds the HTTP routing table.
func (app *application) setupRouter() chi.Router {
	validate := validator.New()

	taskHandler := api.NewTaskHandler(app.taskAdmin, app.logger)
	jobHandler := api.NewJobHandler(app.jobService, validate, app.logger)
	callbackHandler := api.NewCallbackHandler(app.callbackService, validate, app.logger)
	eventHandler := api.NewEventHandler(app.outboxAdmin, app.logger)
	ingestHandler := api.NewIngestHandler(app.ingestService, validate, app.logger)

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/emails/ingest", ingestHandler.IngestEmail)

	r.Post("/extraction-tasks/{id}/retry", taskHandler.RetryTask)
	r.Post("/extraction-tasks/{id}/cancel", taskHandler.CancelTask)

	r.Post("/extract/async", jobHandler.SubmitJob)
	r.Get("/extract/async/{jobId}", jobHandler.GetJob)
	r.Post("/extract/async/{jobId}/cancel", jobHandler.CancelJob)

	r.Post("/webhook-callback", callbackHandler.ReceiveCallback)

	r.Get("/webhook-events", eventHandler.ListEvents)
	r.Get("/webhook-events/stats", eventHandler.EventStats)
	r.Post("/webhook-events/{id}/retry", eventHandler.RetryEvent)
	r.Post("/webhook-events/retry-all-failed", eventHandler.RetryAllFailed)

	return r
}

// Run starts the background loops and the HTTP server, blocking until
// ctx is cancelled, then shuts everything down in order.
func (app *application) Run(ctx context.Context) error {
	app.worker.Start()
	app.outboxDispatcher.Start()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	app.logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("HTTP server shutdown failed", "error", err)
	}

	return nil
}

// cleanup stops background loops and closes connections. Safe to call
// after a partial initialization.
func (app *application) cleanup() {
	if app.worker != nil {
		app.worker.Stop()
	}
	if app.outboxDispatcher != nil {
		app.outboxDispatcher.Stop()
	}
	if app.jobService != nil {
		app.jobService.Wait()
	}
	if app.rdb != nil {
		if err := app.rdb.Close(); err != nil {
			app.logger.Error("error closing redis connection", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}
