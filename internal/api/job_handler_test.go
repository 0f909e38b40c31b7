package api_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/docuflow/docuflow-api/internal/api"
	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/job"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubJobService programs the outcome of the async job operations.
type stubJobService struct {
	job       *domain.Job
	err       error
	submitted []job.Request
}

func (s *stubJobService) Submit(_ context.Context, _ uuid.UUID, req job.Request) (*domain.Job, error) {
	s.submitted = append(s.submitted, req)
	return s.job, s.err
}

func (s *stubJobService) Get(context.Context, uuid.UUID) (*domain.Job, error) {
	return s.job, s.err
}

func (s *stubJobService) Cancel(context.Context, uuid.UUID) (*domain.Job, error) {
	return s.job, s.err
}

func jobRouter(jobs api.JobService) http.Handler {
	h := api.NewJobHandler(jobs, validator.New(), slog.Default())
	r := chi.NewRouter()
	r.Post("/extract/async", h.SubmitJob)
	r.Get("/extract/async/{jobId}", h.GetJob)
	r.Post("/extract/async/{jobId}/cancel", h.CancelJob)
	return r
}

func apiTestJob(t *testing.T) *domain.Job {
	t.Helper()
	j, err := domain.NewJob(uuid.New(), []byte(`{"attachment_ref":"blob://1"}`))
	require.NoError(t, err)
	return j
}

func TestJobHandler_SubmitJob(t *testing.T) {
	t.Run("valid submission", func(t *testing.T) {
		created := apiTestJob(t)
		svc := &stubJobService{job: created}
		body := `{"attachment_ref":"blob://1","tenant_id":"` + uuid.NewString() + `","source_tag":"invoices"}`

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/extract/async", strings.NewReader(body))
		jobRouter(svc).ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp api.JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, created.ID.String(), resp.JobID)
		assert.Equal(t, string(domain.JobStatusPending), resp.Status)

		require.Len(t, svc.submitted, 1)
		assert.Equal(t, "blob://1", svc.submitted[0].AttachmentRef)
		assert.Equal(t, "invoices", svc.submitted[0].SourceTag)
	})

	t.Run("missing attachment ref", func(t *testing.T) {
		svc := &stubJobService{}
		body := `{"tenant_id":"` + uuid.NewString() + `"}`

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/extract/async", strings.NewReader(body))
		jobRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, svc.submitted)
	})

	t.Run("non-uuid tenant id", func(t *testing.T) {
		svc := &stubJobService{}
		body := `{"attachment_ref":"blob://1","tenant_id":"tenant-1"}`

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/extract/async", strings.NewReader(body))
		jobRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/extract/async", strings.NewReader("{"))
		jobRouter(&stubJobService{}).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestJobHandler_GetJob(t *testing.T) {
	t.Run("known job", func(t *testing.T) {
		found := apiTestJob(t)
		require.NoError(t, found.Start(found.CreatedAt))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/extract/async/"+found.ID.String(), nil)
		jobRouter(&stubJobService{job: found}).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp api.JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, string(domain.JobStatusProcessing), resp.Status)
	})

	t.Run("unknown job", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/extract/async/"+uuid.NewString(), nil)
		jobRouter(&stubJobService{err: store.ErrJobNotFound}).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestJobHandler_CancelJob(t *testing.T) {
	t.Run("pending job", func(t *testing.T) {
		cancelled := apiTestJob(t)
		require.NoError(t, cancelled.Cancel(cancelled.CreatedAt))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/extract/async/"+cancelled.ID.String()+"/cancel", nil)
		jobRouter(&stubJobService{job: cancelled}).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("started job", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/extract/async/"+uuid.NewString()+"/cancel", nil)
		jobRouter(&stubJobService{err: domain.ErrInvalidTransition}).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
