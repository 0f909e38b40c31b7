package mocks

import (
	"context"
	"database/sql"
	"sync"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

// FakeEmailStore implements store.EmailStore in memory. GetForUpdate
// behaves like GetByID; the fake transactor serializes callers anyway.
type FakeEmailStore struct {
	mu          sync.Mutex
	emails      map[uuid.UUID]*domain.ProcessedEmail
	attachments map[uuid.UUID][]*domain.Attachment
	messageIDs  map[string]bool
}

// NewFakeEmailStore creates an empty FakeEmailStore.
func NewFakeEmailStore() *FakeEmailStore {
	return &FakeEmailStore{
		emails:      make(map[uuid.UUID]*domain.ProcessedEmail),
		attachments: make(map[uuid.UUID][]*domain.Attachment),
		messageIDs:  make(map[string]bool),
	}
}

// Create implements store.EmailStore, enforcing the tenant+message id
// uniqueness the real table carries.
func (s *FakeEmailStore) Create(_ context.Context, email *domain.ProcessedEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := email.TenantID.String() + ":" + email.MessageID
	if s.messageIDs[key] {
		return store.ErrMessageIDExists
	}
	s.messageIDs[key] = true
	s.emails[email.ID] = email
	return nil
}

// GetByID implements store.EmailStore.
func (s *FakeEmailStore) GetByID(_ context.Context, id uuid.UUID) (*domain.ProcessedEmail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.emails[id]
	if !ok {
		return nil, store.ErrEmailNotFound
	}
	return email, nil
}

// GetForUpdate implements store.EmailStore.
func (s *FakeEmailStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.ProcessedEmail, error) {
	return s.GetByID(ctx, id)
}

// Update implements store.EmailStore.
func (s *FakeEmailStore) Update(_ context.Context, email *domain.ProcessedEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[email.ID]; !ok {
		return store.ErrEmailNotFound
	}
	s.emails[email.ID] = email
	return nil
}

// CreateAttachment implements store.EmailStore.
func (s *FakeEmailStore) CreateAttachment(_ context.Context, attachment *domain.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments[attachment.EmailID] = append(s.attachments[attachment.EmailID], attachment)
	return nil
}

// WithTx implements store.EmailStore.
func (s *FakeEmailStore) WithTx(*sql.Tx) store.EmailStore { return s }

// Attachments returns the stored attachments of one email, for
// assertions.
func (s *FakeEmailStore) Attachments(emailID uuid.UUID) []*domain.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachments[emailID]
}
