package clickhouse

import (
	"context"
	"fmt"
	"time"

	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/storage"
)

// OutcomeStore implements storage.OutcomeStore using ClickHouse.
type OutcomeStore struct {
	conn *Conn
}

// NewOutcomeStore creates a new OutcomeStore.
func NewOutcomeStore(conn *Conn) *OutcomeStore {
	return &OutcomeStore{conn: conn}
}

var _ storage.OutcomeStore = (*OutcomeStore)(nil)

// Insert appends a monitor outcome. MergeTree does not deduplicate, repeated
// observations of one handle are kept as separate rows.
func (s *OutcomeStore) Insert(ctx context.Context, r *domain.OutcomeRecord) (err error) {
	if err := storage.ValidateOutcome(r); err != nil {
		return err
	}
	start := time.Now()
	defer func() { observe("insert_outcome", start, err) }()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO monitor_outcomes (
			tx_handle, account, status, gas_used, detail, polls, latency_ms, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		r.TxHandle,
		r.Account,
		r.Status,
		r.GasUsed,
		r.Detail,
		uint32(r.Polls),
		r.LatencyMs,
		r.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByHandle retrieves the outcomes observed for a handle, ordered by observed_at ASC.
func (s *OutcomeStore) GetByHandle(ctx context.Context, txHandle string) ([]*domain.OutcomeRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT tx_handle, account, status, gas_used, detail, polls, latency_ms, observed_at
		FROM monitor_outcomes
		WHERE tx_handle = ?
		ORDER BY observed_at ASC
	`, txHandle)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var result []*domain.OutcomeRecord
	for rows.Next() {
		var (
			r     domain.OutcomeRecord
			polls uint32
		)
		if err := rows.Scan(
			&r.TxHandle,
			&r.Account,
			&r.Status,
			&r.GasUsed,
			&r.Detail,
			&polls,
			&r.LatencyMs,
			&r.ObservedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		r.Polls = int(polls)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return result, nil
}
