package memory

import (
	"context"
	"sort"
	"sync"

	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/storage"
)

// OutcomeStore is an in-memory implementation of storage.OutcomeStore.
type OutcomeStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.OutcomeRecord // keyed by tx_handle
}

// NewOutcomeStore creates a new in-memory outcome store.
func NewOutcomeStore() *OutcomeStore {
	return &OutcomeStore{
		data: make(map[string][]*domain.OutcomeRecord),
	}
}

var _ storage.OutcomeStore = (*OutcomeStore)(nil)

// Insert appends a monitor outcome.
func (s *OutcomeStore) Insert(_ context.Context, r *domain.OutcomeRecord) error {
	if err := storage.ValidateOutcome(r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recordCopy := *r
	s.data[r.TxHandle] = append(s.data[r.TxHandle], &recordCopy)
	return nil
}

// GetByHandle retrieves the outcomes for a handle, ordered by observed_at ASC.
func (s *OutcomeStore) GetByHandle(_ context.Context, txHandle string) ([]*domain.OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.data[txHandle]
	result := make([]*domain.OutcomeRecord, 0, len(records))
	for _, r := range records {
		recordCopy := *r
		result = append(result, &recordCopy)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ObservedAt < result[j].ObservedAt
	})
	return result, nil
}
