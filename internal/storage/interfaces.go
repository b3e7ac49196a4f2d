package storage

import (
	"context"

	"aptos-vault-swap/internal/domain"
)

// AttemptStore provides access to the swap_attempts journal.
// The journal is an audit trail only: it is never read back to rebuild the
// security state.
type AttemptStore interface {
	// Insert appends an attempt. Returns ErrDuplicateKey if attempt_id or
	// (run_id, number) exists.
	Insert(ctx context.Context, r *domain.AttemptRecord) error

	// GetByID retrieves an attempt by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, attemptID string) (*domain.AttemptRecord, error)

	// GetByRun retrieves the attempts of one run, ordered by number ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.AttemptRecord, error)

	// Recent retrieves the latest attempts, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.AttemptRecord, error)
}

// OutcomeStore provides access to monitor_outcomes analytics.
type OutcomeStore interface {
	// Insert appends a monitor outcome.
	Insert(ctx context.Context, r *domain.OutcomeRecord) error

	// GetByHandle retrieves the outcomes observed for a handle, ordered by observed_at ASC.
	GetByHandle(ctx context.Context, txHandle string) ([]*domain.OutcomeRecord, error)
}

// ValidateAttempt checks the fields every backend requires.
func ValidateAttempt(r *domain.AttemptRecord) error {
	if r == nil || r.AttemptID == "" || r.RunID == "" || r.Number < 1 {
		return ErrInvalidInput
	}
	return nil
}

// ValidateOutcome checks the fields every backend requires.
func ValidateOutcome(r *domain.OutcomeRecord) error {
	if r == nil || r.TxHandle == "" || r.Status == "" {
		return ErrInvalidInput
	}
	return nil
}
