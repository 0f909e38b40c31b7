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

// FakeTaskStore implements store.TaskStore in memory with the same
// claim eligibility and ordering rules as the Postgres store.
type FakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.ExtractionTask

	// Optional overrides
	ClaimBatchFn   func(ctx context.Context, limit int, now time.Time) ([]*domain.ExtractionTask, error)
	UpdateFn       func(ctx context.Context, task *domain.ExtractionTask) error
	GetForUpdateFn func(ctx context.Context, id uuid.UUID) (*domain.ExtractionTask, error)
}

// NewFakeTaskStore creates an empty FakeTaskStore.
func NewFakeTaskStore() *FakeTaskStore {
	return &FakeTaskStore{tasks: make(map[uuid.UUID]*domain.ExtractionTask)}
}

// Create implements store.TaskStore.
func (s *FakeTaskStore) Create(_ context.Context, task *domain.ExtractionTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

// GetByID implements store.TaskStore.
func (s *FakeTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.ExtractionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task, nil
}

// GetForUpdate implements store.TaskStore. The fake holds no locks;
// GetForUpdateFn lets a test interleave a concurrent writer between the
// admin's read and its update.
func (s *FakeTaskStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.ExtractionTask, error) {
	if s.GetForUpdateFn != nil {
		return s.GetForUpdateFn(ctx, id)
	}
	return s.GetByID(ctx, id)
}

// GetByCorrelationID implements store.TaskStore.
func (s *FakeTaskStore) GetByCorrelationID(_ context.Context, correlationID uuid.UUID) (*domain.ExtractionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range s.tasks {
		if task.CorrelationID == correlationID {
			return task, nil
		}
	}
	return nil, store.ErrTaskNotFound
}

// Update implements store.TaskStore.
func (s *FakeTaskStore) Update(ctx context.Context, task *domain.ExtractionTask) error {
	if s.UpdateFn != nil {
		return s.UpdateFn(ctx, task)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return store.ErrTaskNotFound
	}
	s.tasks[task.ID] = task
	return nil
}

// ClaimBatch implements store.TaskStore with in-memory claim semantics.
func (s *FakeTaskStore) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]*domain.ExtractionTask, error) {
	if s.ClaimBatchFn != nil {
		return s.ClaimBatchFn(ctx, limit, now)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []*domain.ExtractionTask
	for _, task := range s.tasks {
		switch task.Status {
		case domain.TaskStatusPending:
			eligible = append(eligible, task)
		case domain.TaskStatusRetrying:
			if task.NextRetryAt == nil || !task.NextRetryAt.After(now) {
				eligible = append(eligible, task)
			}
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	for _, task := range eligible {
		if err := task.Claim(now); err != nil {
			return nil, err
		}
	}
	return eligible, nil
}

// SweepStuck implements store.TaskStore.
func (s *FakeTaskStore) SweepStuck(_ context.Context, cutoff, now time.Time) (int, []*domain.ExtractionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recovered := 0
	var failed []*domain.ExtractionTask
	for _, task := range s.tasks {
		if task.Status != domain.TaskStatusProcessing {
			continue
		}
		if task.StartedAt == nil || task.StartedAt.After(cutoff) {
			continue
		}
		if err := task.RecoverStuck(now); err != nil {
			return 0, nil, err
		}
		if task.Status == domain.TaskStatusFailed {
			failed = append(failed, task)
		} else {
			recovered++
		}
	}
	return recovered, failed, nil
}

// CountByEmail implements store.TaskStore.
func (s *FakeTaskStore) CountByEmail(_ context.Context, emailID uuid.UUID) (store.TaskCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts store.TaskCounts
	for _, task := range s.tasks {
		if task.EmailID != emailID {
			continue
		}
		counts.Total++
		if task.Status.IsTerminal() {
			counts.Terminal++
		}
		if task.Status == domain.TaskStatusCompleted {
			counts.Completed++
		}
		if task.Status == domain.TaskStatusFailed {
			counts.Failed++
		}
	}
	return counts, nil
}

// WithTx implements store.TaskStore; the fake has no transactions.
func (s *FakeTaskStore) WithTx(*sql.Tx) store.TaskStore { return s }

// All returns every stored task, for assertions.
func (s *FakeTaskStore) All() []*domain.ExtractionTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.ExtractionTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, task)
	}
	return out
}
