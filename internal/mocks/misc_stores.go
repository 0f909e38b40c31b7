package mocks

import (
	"context"
	"database/sql"
	"sync"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

// FakeJobStore implements store.JobStore in memory.
type FakeJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job
}

// NewFakeJobStore creates an empty FakeJobStore.
func NewFakeJobStore() *FakeJobStore {
	return &FakeJobStore{jobs: make(map[uuid.UUID]*domain.Job)}
}

// Create implements store.JobStore.
func (s *FakeJobStore) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// GetByID implements store.JobStore.
func (s *FakeJobStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return job, nil
}

// Update implements store.JobStore.
func (s *FakeJobStore) Update(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return store.ErrJobNotFound
	}
	s.jobs[job.ID] = job
	return nil
}

// WithTx implements store.JobStore.
func (s *FakeJobStore) WithTx(*sql.Tx) store.JobStore { return s }

// FakeRuleStore implements store.RuleStore over fixed rule slices.
type FakeRuleStore struct {
	AttachmentRules   []*domain.AttachmentRule
	NotificationRules []*domain.NotificationRule
}

// ListAttachmentRules implements store.RuleStore, filtering by tenant
// and sender like the SQL query does.
func (s *FakeRuleStore) ListAttachmentRules(_ context.Context, tenantID uuid.UUID, sender string) ([]*domain.AttachmentRule, error) {
	var out []*domain.AttachmentRule
	for _, rule := range s.AttachmentRules {
		if rule.TenantID == tenantID && rule.SenderAddress == sender {
			out = append(out, rule)
		}
	}
	return out, nil
}

// ListNotificationRules implements store.RuleStore.
func (s *FakeRuleStore) ListNotificationRules(_ context.Context, tenantID uuid.UUID, eventType string) ([]*domain.NotificationRule, error) {
	var out []*domain.NotificationRule
	for _, rule := range s.NotificationRules {
		if rule.TenantID == tenantID && rule.EventType == eventType && rule.Enabled {
			out = append(out, rule)
		}
	}
	return out, nil
}

// WithTx implements store.RuleStore.
func (s *FakeRuleStore) WithTx(*sql.Tx) store.RuleStore { return s }

// FakeCallbackStore implements store.CallbackStore in memory.
type FakeCallbackStore struct {
	mu        sync.Mutex
	Callbacks []*domain.WebhookCallback
}

// Create implements store.CallbackStore.
func (s *FakeCallbackStore) Create(_ context.Context, callback *domain.WebhookCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Callbacks = append(s.Callbacks, callback)
	return nil
}

// WithTx implements store.CallbackStore.
func (s *FakeCallbackStore) WithTx(*sql.Tx) store.CallbackStore { return s }

// FakeTransactor implements store.Transactor by running the function
// with a nil transaction; the fake stores ignore WithTx anyway.
type FakeTransactor struct{}

// RunInTransaction implements store.Transactor.
func (FakeTransactor) RunInTransaction(ctx context.Context, fn store.TxFn) error {
	return fn(ctx, nil)
}
