package memory

import (
	"context"
	"sync"

	"token-aggregator/internal/domain"
	"token-aggregator/internal/storage"
)

// DefaultRunCapacity bounds the in-memory run log.
const DefaultRunCapacity = 1000

// RefreshRunStore is an in-memory implementation of storage.RefreshRunStore.
// It keeps only the most recent runs.
type RefreshRunStore struct {
	mu       sync.RWMutex
	runs     []*domain.RefreshRun
	nextID   int64
	capacity int
}

// NewRefreshRunStore creates a run log holding at most capacity runs.
func NewRefreshRunStore(capacity int) *RefreshRunStore {
	if capacity <= 0 {
		capacity = DefaultRunCapacity
	}
	return &RefreshRunStore{capacity: capacity, nextID: 1}
}

var _ storage.RefreshRunStore = (*RefreshRunStore)(nil)

// Insert appends a run and sets its ID.
func (s *RefreshRunStore) Insert(_ context.Context, run *domain.RefreshRun) error {
	if run == nil || run.Status == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run.ID = s.nextID
	s.nextID++

	stored := *run
	s.runs = append(s.runs, &stored)
	if len(s.runs) > s.capacity {
		s.runs = s.runs[len(s.runs)-s.capacity:]
	}
	return nil
}

// Latest returns up to limit runs, newest first.
func (s *RefreshRunStore) Latest(_ context.Context, limit int) ([]*domain.RefreshRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.runs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*domain.RefreshRun, 0, n)
	for i := len(s.runs) - 1; i >= 0 && len(out) < n; i-- {
		run := *s.runs[i]
		out = append(out, &run)
	}
	return out, nil
}
