package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/storage"
)

// AttemptStore implements storage.AttemptStore using PostgreSQL.
type AttemptStore struct {
	pool *Pool
}

// NewAttemptStore creates a new AttemptStore.
func NewAttemptStore(pool *Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AttemptStore = (*AttemptStore)(nil)

const attemptColumns = `
	attempt_id, run_id, attempt_no, account, amount, success, method, path, tx_handle,
	min_output, expected_output, price_impact, failure_kind, message, started_at, finished_at
`

// Insert appends an attempt. Returns ErrDuplicateKey if attempt_id or (run_id, attempt_no) exists.
func (s *AttemptStore) Insert(ctx context.Context, r *domain.AttemptRecord) (err error) {
	if err := storage.ValidateAttempt(r); err != nil {
		return err
	}
	start := time.Now()
	defer func() { observe("insert_attempt", start, err) }()

	query := `
		INSERT INTO swap_attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = s.pool.Exec(ctx, query,
		r.AttemptID,
		r.RunID,
		r.Number,
		r.Account,
		int64(r.Amount),
		r.Success,
		r.Method,
		r.Path,
		r.TxHandle,
		int64(r.MinOutput),
		int64(r.Expected),
		r.Impact,
		r.FailureKind,
		r.Message,
		r.StartedAt,
		r.FinishedAt,
	)
	return translate("insert attempt", err)
}

// GetByID retrieves an attempt by its ID. Returns ErrNotFound if not exists.
func (s *AttemptStore) GetByID(ctx context.Context, attemptID string) (*domain.AttemptRecord, error) {
	query := `SELECT ` + attemptColumns + ` FROM swap_attempts WHERE attempt_id = $1`

	r, err := scanAttempt(s.pool.QueryRow(ctx, query, attemptID))
	if err != nil {
		return nil, translate("get attempt by id", err)
	}
	return r, nil
}

// GetByRun retrieves the attempts of one run, ordered by number ASC.
func (s *AttemptStore) GetByRun(ctx context.Context, runID string) ([]*domain.AttemptRecord, error) {
	query := `SELECT ` + attemptColumns + ` FROM swap_attempts WHERE run_id = $1 ORDER BY attempt_no ASC`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get attempts by run: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// Recent retrieves the latest attempts, newest first.
func (s *AttemptStore) Recent(ctx context.Context, limit int) ([]*domain.AttemptRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}
	query := `SELECT ` + attemptColumns + ` FROM swap_attempts ORDER BY started_at DESC, attempt_no DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent attempts: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

func scanAttempt(row pgx.Row) (*domain.AttemptRecord, error) {
	var (
		r                           domain.AttemptRecord
		amount, minOutput, expected int64
	)
	err := row.Scan(
		&r.AttemptID,
		&r.RunID,
		&r.Number,
		&r.Account,
		&amount,
		&r.Success,
		&r.Method,
		&r.Path,
		&r.TxHandle,
		&minOutput,
		&expected,
		&r.Impact,
		&r.FailureKind,
		&r.Message,
		&r.StartedAt,
		&r.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Amount = uint64(amount)
	r.MinOutput = uint64(minOutput)
	r.Expected = uint64(expected)
	return &r, nil
}

func scanAttempts(rows pgx.Rows) ([]*domain.AttemptRecord, error) {
	var result []*domain.AttemptRecord
	for rows.Next() {
		r, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return result, nil
}
