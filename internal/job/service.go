// Package job is the async facade over the extraction client: submit an
// extraction request, get a job id back immediately, poll for the
// result. One job maps to one extraction call with no retry and no
// priority; clients re-submit on failure.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/platform/extraction"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

// Request is an async extraction submission.
type Request struct {
	AttachmentRef string `json:"attachment_ref" validate:"required"`
	SourceTag     string `json:"source_tag,omitempty"`
	DestTag       string `json:"dest_tag,omitempty"`
}

// Service runs async extraction jobs. Execution happens on a goroutine
// per job; the job row is the only record of progress, so a crash leaves
// the row PROCESSING and the client re-submits.
type Service struct {
	jobs      store.JobStore
	extractor extraction.Extractor
	logger    *slog.Logger

	wg sync.WaitGroup
}

// NewService creates a job Service.
func NewService(jobs store.JobStore, extractor extraction.Extractor, logger *slog.Logger) *Service {
	return &Service{
		jobs:      jobs,
		extractor: extractor,
		logger:    logger.With("component", "job"),
	}
}

// Submit persists a PENDING job and starts executing it in the
// background. The returned job is safe to expose immediately.
func (s *Service) Submit(ctx context.Context, tenantID uuid.UUID, req Request) (*domain.Job, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job request: %w", err)
	}

	job, err := domain.NewJob(tenantID, payload)
	if err != nil {
		return nil, err
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("job submitted", "job_id", job.ID, "tenant_id", tenantID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Detached from the request context: the caller got a 202 and
		// hung up; the job keeps running.
		s.execute(context.Background(), job, req)
	}()

	return job, nil
}

// Get returns the current state of a job.
// Returns store.ErrJobNotFound for an unknown id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.jobs.GetByID(ctx, id)
}

// Cancel cancels a PENDING job. A job already picked up keeps running;
// the caller gets domain.ErrInvalidTransition. The race with the
// executor is benign: whichever update lands first wins and the loser's
// transition is rejected by the state machine.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := job.Cancel(time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("job cancelled", "job_id", job.ID)
	return job, nil
}

// Wait blocks until all in-flight job executions finish. Used during
// shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) execute(ctx context.Context, job *domain.Job, req Request) {
	log := s.logger.With("job_id", job.ID, "correlation_id", job.CorrelationID)

	now := time.Now().UTC()
	if err := job.Start(now); err != nil {
		// Cancelled between submit and pickup.
		log.Info("job not started", "status", job.Status)
		return
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		log.Error("failed to persist started job", "error", err)
		return
	}

	result, err := s.extractor.Extract(ctx, extraction.Request{
		AttachmentRef: req.AttachmentRef,
		SourceTag:     req.SourceTag,
		DestTag:       req.DestTag,
		CorrelationID: job.CorrelationID,
	})

	now = time.Now().UTC()
	if err != nil {
		if ferr := job.Fail(err.Error(), now); ferr != nil {
			log.Error("illegal failure transition", "error", ferr)
			return
		}
		if uerr := s.jobs.Update(ctx, job); uerr != nil {
			log.Error("failed to persist failed job", "error", uerr)
			return
		}
		log.Warn("job failed", "error", err)
		return
	}

	payload, merr := json.Marshal(result)
	if merr != nil {
		if ferr := job.Fail(merr.Error(), now); ferr != nil {
			log.Error("illegal failure transition", "error", ferr)
			return
		}
		if uerr := s.jobs.Update(ctx, job); uerr != nil {
			log.Error("failed to persist failed job", "error", uerr)
		}
		return
	}

	if cerr := job.Complete(payload, now); cerr != nil {
		log.Error("illegal completion transition", "error", cerr)
		return
	}
	if uerr := s.jobs.Update(ctx, job); uerr != nil {
		log.Error("failed to persist completed job", "error", uerr)
		return
	}
	log.Info("job completed")
}
