package postgres_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/storage"
	pgstore "aptos-vault-swap/internal/storage/postgres"
)

func testAttempt(id, run string, n int) *domain.AttemptRecord {
	return &domain.AttemptRecord{
		AttemptID:  id,
		RunID:      run,
		Number:     n,
		Account:    "0xoperator",
		Amount:     100_000,
		Success:    n == 3,
		Method:     "secondary",
		Path:       "router",
		TxHandle:   fmt.Sprintf("0xtx%d", n),
		MinOutput:  95_000,
		Expected:   100_000,
		Impact:     0.01,
		Message:    "Direct swap successful",
		StartedAt:  1704067200000 + int64(n)*1000,
		FinishedAt: 1704067200500 + int64(n)*1000,
	}
}

func TestAttemptStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewAttemptStore(pool)
	ctx := context.Background()

	r := testAttempt("a1", "run1", 1)
	require.NoError(t, store.Insert(ctx, r))

	got, err := store.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestAttemptStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewAttemptStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testAttempt("a1", "run1", 1)))
	assert.ErrorIs(t, store.Insert(ctx, testAttempt("a1", "run2", 1)), storage.ErrDuplicateKey)
	assert.ErrorIs(t, store.Insert(ctx, testAttempt("a2", "run1", 1)), storage.ErrDuplicateKey)
}

func TestAttemptStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := pgstore.NewAttemptStore(pool).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAttemptStore_GetByRunAndRecent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewAttemptStore(pool)
	ctx := context.Background()

	for _, n := range []int{2, 3, 1} {
		require.NoError(t, store.Insert(ctx, testAttempt(fmt.Sprintf("a%d", n), "run1", n)))
	}

	byRun, err := store.GetByRun(ctx, "run1")
	require.NoError(t, err)
	require.Len(t, byRun, 3)
	for i, r := range byRun {
		assert.Equal(t, i+1, r.Number)
	}

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "a3", recent[0].AttemptID)
	assert.Equal(t, "a2", recent[1].AttemptID)
}
