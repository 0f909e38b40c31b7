package api_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docuflow/docuflow-api/internal/api"
	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEventAdmin records the filter it was listed with.
type stubEventAdmin struct {
	events     []*domain.WebhookEvent
	event      *domain.WebhookEvent
	stats      store.EventStats
	resetCount int
	err        error

	lastFilter store.EventFilter
}

func (s *stubEventAdmin) List(_ context.Context, filter store.EventFilter) ([]*domain.WebhookEvent, error) {
	s.lastFilter = filter
	return s.events, s.err
}

func (s *stubEventAdmin) Stats(context.Context) (store.EventStats, error) {
	return s.stats, s.err
}

func (s *stubEventAdmin) RetryEvent(context.Context, uuid.UUID) (*domain.WebhookEvent, error) {
	return s.event, s.err
}

func (s *stubEventAdmin) RetryAllFailed(context.Context) (int, error) {
	return s.resetCount, s.err
}

func eventRouter(admin api.EventAdmin) http.Handler {
	h := api.NewEventHandler(admin, slog.Default())
	r := chi.NewRouter()
	r.Get("/webhook-events", h.ListEvents)
	r.Get("/webhook-events/stats", h.EventStats)
	r.Post("/webhook-events/{id}/retry", h.RetryEvent)
	r.Post("/webhook-events/retry-all-failed", h.RetryAllFailed)
	return r
}

func apiTestEvent(t *testing.T) *domain.WebhookEvent {
	t.Helper()
	event, err := domain.NewWebhookEvent(
		uuid.New(), "email", uuid.New(),
		domain.EventEmailProcessed,
		domain.ChannelWebhook, "https://hooks.example.test/1", "",
		[]byte(`{}`), 3,
	)
	require.NoError(t, err)
	return event
}

func TestEventHandler_ListEvents(t *testing.T) {
	t.Run("default paging", func(t *testing.T) {
		admin := &stubEventAdmin{events: []*domain.WebhookEvent{apiTestEvent(t)}}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/webhook-events", nil)
		eventRouter(admin).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp api.EventListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Events, 1)
		assert.Equal(t, 50, resp.Limit)
		assert.Zero(t, resp.Offset)
	})

	t.Run("status and tenant filter", func(t *testing.T) {
		admin := &stubEventAdmin{}
		tenantID := uuid.NewString()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet,
			"/webhook-events?status=FAILED&tenant_id="+tenantID+"&limit=10&offset=20", nil)
		eventRouter(admin).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, admin.lastFilter.Status)
		assert.Equal(t, domain.EventStatusFailed, *admin.lastFilter.Status)
		require.NotNil(t, admin.lastFilter.TenantID)
		assert.Equal(t, tenantID, admin.lastFilter.TenantID.String())
		assert.Equal(t, 10, admin.lastFilter.Limit)
		assert.Equal(t, 20, admin.lastFilter.Offset)
	})

	t.Run("invalid filter values", func(t *testing.T) {
		for name, query := range map[string]string{
			"unknown status": "?status=BOGUS",
			"bad tenant id":  "?tenant_id=not-a-uuid",
			"zero limit":     "?limit=0",
			"oversize limit": "?limit=501",
			"bad offset":     "?offset=-1",
		} {
			t.Run(name, func(t *testing.T) {
				rec := httptest.NewRecorder()
				req := httptest.NewRequest(http.MethodGet, "/webhook-events"+query, nil)
				eventRouter(&stubEventAdmin{}).ServeHTTP(rec, req)
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			})
		}
	})
}

func TestEventHandler_EventStats(t *testing.T) {
	admin := &stubEventAdmin{stats: store.EventStats{Pending: 2, Sent: 7, Failed: 1}}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/webhook-events/stats", nil)
	eventRouter(admin).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats store.EventStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, admin.stats, stats)
}

func TestEventHandler_RetryEvent(t *testing.T) {
	t.Run("failed event", func(t *testing.T) {
		event := apiTestEvent(t)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook-events/"+event.ID.String()+"/retry", nil)
		eventRouter(&stubEventAdmin{event: event}).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown event", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook-events/"+uuid.NewString()+"/retry", nil)
		eventRouter(&stubEventAdmin{err: store.ErrEventNotFound}).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non-failed event", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook-events/"+uuid.NewString()+"/retry", nil)
		eventRouter(&stubEventAdmin{err: domain.ErrInvalidTransition}).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestEventHandler_RetryAllFailed(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook-events/retry-all-failed", nil)
	eventRouter(&stubEventAdmin{resetCount: 4}).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.RetryAllResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Reset)
}
