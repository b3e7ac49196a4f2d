package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/storage"
)

func attempt(id, run string, n int) *domain.AttemptRecord {
	return &domain.AttemptRecord{
		AttemptID:   id,
		RunID:       run,
		Number:      n,
		Account:     "0xoperator",
		Amount:      100_000,
		FailureKind: "COOLDOWN_ACTIVE",
		Message:     "Cooldown active: 10s remaining",
		StartedAt:   1704067200000 + int64(n),
		FinishedAt:  1704067200100 + int64(n),
	}
}

func TestAttemptStore_InsertAndGet(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	r := attempt("a1", "run1", 1)
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if *got != *r {
		t.Errorf("record mismatch: got %+v, want %+v", got, r)
	}

	// Mutating the returned copy must not change the store
	got.Message = "changed"
	again, _ := store.GetByID(ctx, "a1")
	if again.Message != r.Message {
		t.Errorf("store was mutated through returned record")
	}
}

func TestAttemptStore_DuplicateKey(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	if err := store.Insert(ctx, attempt("a1", "run1", 1)); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := store.Insert(ctx, attempt("a1", "run2", 1)); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for same attempt_id, got %v", err)
	}
	if err := store.Insert(ctx, attempt("a2", "run1", 1)); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for same run/number, got %v", err)
	}
}

func TestAttemptStore_InvalidInput(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	for _, r := range []*domain.AttemptRecord{nil, attempt("", "run", 1), attempt("a", "", 1), attempt("a", "run", 0)} {
		if err := store.Insert(ctx, r); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for %+v, got %v", r, err)
		}
	}
}

func TestAttemptStore_NotFound(t *testing.T) {
	if _, err := NewAttemptStore().GetByID(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAttemptStore_GetByRunOrdered(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	for _, n := range []int{3, 1, 2} {
		if err := store.Insert(ctx, attempt(fmt.Sprintf("a%d", n), "run1", n)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := store.Insert(ctx, attempt("other", "run2", 1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := store.GetByRun(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRun: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(got))
	}
	for i, r := range got {
		if r.Number != i+1 {
			t.Errorf("position %d: expected number %d, got %d", i, i+1, r.Number)
		}
	}
}

func TestAttemptStore_Recent(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	for n := 1; n <= 5; n++ {
		if err := store.Insert(ctx, attempt(fmt.Sprintf("a%d", n), "run1", n)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].AttemptID != "a5" || got[1].AttemptID != "a4" {
		t.Errorf("unexpected recent attempts: %+v", got)
	}

	if _, err := store.Recent(ctx, 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero limit, got %v", err)
	}
}

func TestAttemptStore_ConcurrentInsert(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for n := 1; n <= 50; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := store.Insert(ctx, attempt(fmt.Sprintf("a%d", n), "run1", n)); err != nil {
				t.Errorf("Insert %d: %v", n, err)
			}
		}(n)
	}
	wg.Wait()

	got, _ := store.GetByRun(ctx, "run1")
	if len(got) != 50 {
		t.Errorf("expected 50 attempts, got %d", len(got))
	}
}

func TestOutcomeStore_InsertAndGet(t *testing.T) {
	store := NewOutcomeStore()
	ctx := context.Background()

	later := &domain.OutcomeRecord{TxHandle: "0xtx", Status: "success", GasUsed: 10, Polls: 3, ObservedAt: 200}
	earlier := &domain.OutcomeRecord{TxHandle: "0xtx", Status: "timeout", Polls: 150, ObservedAt: 100}
	for _, r := range []*domain.OutcomeRecord{later, earlier} {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := store.GetByHandle(ctx, "0xtx")
	if err != nil {
		t.Fatalf("GetByHandle: %v", err)
	}
	if len(got) != 2 || got[0].Status != "timeout" || got[1].Status != "success" {
		t.Errorf("unexpected outcomes: %+v", got)
	}

	none, err := store.GetByHandle(ctx, "0xother")
	if err != nil || len(none) != 0 {
		t.Errorf("expected no outcomes, got %v, %v", none, err)
	}

	if err := store.Insert(ctx, &domain.OutcomeRecord{Status: "success"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
