package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

// FakeOutboxStore implements store.OutboxStore in memory with FIFO
// claim semantics.
type FakeOutboxStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*domain.WebhookEvent
}

// NewFakeOutboxStore creates an empty FakeOutboxStore.
func NewFakeOutboxStore() *FakeOutboxStore {
	return &FakeOutboxStore{events: make(map[uuid.UUID]*domain.WebhookEvent)}
}

// Create implements store.OutboxStore.
func (s *FakeOutboxStore) Create(_ context.Context, event *domain.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
	return nil
}

// GetByID implements store.OutboxStore.
func (s *FakeOutboxStore) GetByID(_ context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return nil, store.ErrEventNotFound
	}
	return event, nil
}

// Update implements store.OutboxStore.
func (s *FakeOutboxStore) Update(_ context.Context, event *domain.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; !ok {
		return store.ErrEventNotFound
	}
	s.events[event.ID] = event
	return nil
}

// ClaimBatch implements store.OutboxStore: PENDING rows whose retry time
// elapsed, FIFO, leased by pushing next_retry_at forward.
func (s *FakeOutboxStore) ClaimBatch(_ context.Context, limit int, now time.Time, lease time.Duration) ([]*domain.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []*domain.WebhookEvent
	for _, event := range s.events {
		if event.Status != domain.EventStatusPending {
			continue
		}
		if event.NextRetryAt != nil && event.NextRetryAt.After(now) {
			continue
		}
		eligible = append(eligible, event)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	leaseUntil := now.Add(lease)
	for _, event := range eligible {
		event.NextRetryAt = &leaseUntil
	}
	return eligible, nil
}

// List implements store.OutboxStore.
func (s *FakeOutboxStore) List(_ context.Context, filter store.EventFilter) ([]*domain.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*domain.WebhookEvent
	for _, event := range s.events {
		if filter.Status != nil && event.Status != *filter.Status {
			continue
		}
		if filter.TenantID != nil && event.TenantID != *filter.TenantID {
			continue
		}
		matched = append(matched, event)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Stats implements store.OutboxStore.
func (s *FakeOutboxStore) Stats(_ context.Context) (store.EventStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats store.EventStats
	for _, event := range s.events {
		switch event.Status {
		case domain.EventStatusPending:
			stats.Pending++
		case domain.EventStatusSent:
			stats.Sent++
		case domain.EventStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// ResetAllFailed implements store.OutboxStore.
func (s *FakeOutboxStore) ResetAllFailed(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, event := range s.events {
		if event.Status != domain.EventStatusFailed {
			continue
		}
		if err := event.ResetForRetry(); err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}

// WithTx implements store.OutboxStore.
func (s *FakeOutboxStore) WithTx(*sql.Tx) store.OutboxStore { return s }

// All returns every stored event, for assertions.
func (s *FakeOutboxStore) All() []*domain.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.WebhookEvent, 0, len(s.events))
	for _, event := range s.events {
		out = append(out, event)
	}
	return out
}
