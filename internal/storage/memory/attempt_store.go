package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/storage"
)

// AttemptStore is an in-memory implementation of storage.AttemptStore.
type AttemptStore struct {
	mu    sync.RWMutex
	data  map[string]*domain.AttemptRecord // keyed by attempt_id
	byRun map[string]struct{}              // run_id|number
	order []string                         // insertion order
}

// NewAttemptStore creates a new in-memory attempt store.
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		data:  make(map[string]*domain.AttemptRecord),
		byRun: make(map[string]struct{}),
	}
}

var _ storage.AttemptStore = (*AttemptStore)(nil)

func runKey(runID string, number int) string {
	return runID + "|" + strconv.Itoa(number)
}

// Insert appends an attempt. Returns ErrDuplicateKey if the attempt exists.
func (s *AttemptStore) Insert(_ context.Context, r *domain.AttemptRecord) error {
	if err := storage.ValidateAttempt(r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := runKey(r.RunID, r.Number)
	if _, exists := s.data[r.AttemptID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byRun[key]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	recordCopy := *r
	s.data[r.AttemptID] = &recordCopy
	s.byRun[key] = struct{}{}
	s.order = append(s.order, r.AttemptID)
	return nil
}

// GetByID retrieves an attempt by its ID. Returns ErrNotFound if not exists.
func (s *AttemptStore) GetByID(_ context.Context, attemptID string) (*domain.AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[attemptID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	recordCopy := *r
	return &recordCopy, nil
}

// GetByRun retrieves the attempts of one run, ordered by number ASC.
func (s *AttemptStore) GetByRun(_ context.Context, runID string) ([]*domain.AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AttemptRecord
	for _, r := range s.data {
		if r.RunID == runID {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Number < result[j].Number
	})
	return result, nil
}

// Recent retrieves the latest attempts, newest first.
func (s *AttemptStore) Recent(_ context.Context, limit int) ([]*domain.AttemptRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.AttemptRecord, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(result) < limit; i-- {
		recordCopy := *s.data[s.order[i]]
		result = append(result, &recordCopy)
	}
	return result, nil
}
