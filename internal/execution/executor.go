package execution

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"aptos-vault-swap/internal/clock"
	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/ledger"
	"aptos-vault-swap/internal/observability"
	"aptos-vault-swap/internal/security"
)

// DefaultDeadline is how long after submission the router accepts a swap.
const DefaultDeadline = time.Hour

// verdict classifies a failed path submission.
type verdict int

const (
	// failed: the transaction did not and cannot commit.
	failed verdict = iota
	// landed: the transaction is pending or committed despite the error.
	landed
	// unknown: the transaction may still commit.
	unknown
	// inflight: no handle and the sequence number has not moved. The
	// transaction may sit in the mempool, so the next path may only reuse the
	// pinned number, and a failure of that path leaves the outcome unknown.
	inflight
)

// Executor runs the primary path and, only after it definitively failed,
// the secondary path. Both paths of one request share the account sequence
// number, so the ledger commits at most one of them.
type Executor struct {
	primary   Path
	secondary Path
	client    ledger.Client
	account   string
	state     *security.State
	clock     clock.Clock
	deadline  time.Duration
	logger    *slog.Logger
}

// Config wires an Executor.
type Config struct {
	Primary   Path
	Secondary Path
	Client    ledger.Client
	Account   string
	State     *security.State
	Clock     clock.Clock
	Deadline  time.Duration
	Logger    *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(cfg Config) *Executor {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		client:    cfg.Client,
		account:   cfg.Account,
		state:     cfg.State,
		clock:     cfg.Clock,
		deadline:  cfg.Deadline,
		logger:    cfg.Logger.With("component", "executor"),
	}
}

// Execute submits amount with the quote's minimum output. The security state
// is recorded exactly once, and only when a path was submitted.
func (e *Executor) Execute(ctx context.Context, amount uint64, q domain.Quote) domain.Outcome {
	pinned, err := e.client.SequenceNumber(ctx, e.account)
	if err != nil {
		return domain.NewFailure(domain.FailureExecutionError, "Swap execution error: sequence number: %v", err)
	}

	order := domain.Order{
		Amount:         amount,
		MinOutput:      q.MinOutput,
		Deadline:       e.clock.Now().Add(e.deadline),
		SequenceNumber: pinned,
	}
	e.logger.Info("executing swap", "amount", amount, "min_output", q.MinOutput, "sequence_number", pinned)

	handle, primaryErr := e.submit(ctx, e.primary, order)
	if primaryErr == nil {
		return e.succeed(domain.MethodPrimary, e.primary, handle, order)
	}

	v, next := e.resolve(ctx, handle, primaryErr, pinned)
	switch v {
	case landed:
		e.logger.Warn("primary path reported an error but its transaction is on the ledger",
			"path", e.primary.Name(), "tx_handle", handle, "error", primaryErr)
		return e.succeed(domain.MethodPrimary, e.primary, handle, order)
	case unknown:
		return domain.NewFailure(domain.FailureAmbiguousSubmission,
			"%s swap outcome unknown, not falling back: %v", e.primary.Name(), primaryErr)
	}

	e.logger.Warn("primary path failed, trying secondary",
		"primary", e.primary.Name(), "secondary", e.secondary.Name(), "error", primaryErr)

	order.SequenceNumber = next
	order.Deadline = e.clock.Now().Add(e.deadline)

	primaryInFlight := v == inflight

	handle, secondaryErr := e.submit(ctx, e.secondary, order)
	if secondaryErr == nil {
		return e.succeed(domain.MethodSecondary, e.secondary, handle, order)
	}

	v, _ = e.resolve(ctx, handle, secondaryErr, next)
	switch {
	case v == landed:
		return e.succeed(domain.MethodSecondary, e.secondary, handle, order)
	case v == unknown || v == inflight:
		return domain.NewFailure(domain.FailureAmbiguousSubmission,
			"%s swap outcome unknown: %v", e.secondary.Name(), secondaryErr)
	case primaryInFlight:
		// The secondary may have been refused because the primary holds the
		// sequence number; that primary can still commit later.
		return domain.NewFailure(domain.FailureAmbiguousSubmission,
			"%s swap may still be pending (%v); %s: %v",
			e.primary.Name(), primaryErr, e.secondary.Name(), secondaryErr)
	}

	return domain.NewFailure(domain.FailureAllPathsExhausted,
		"All swap methods failed: %s: %v; %s: %v", e.primary.Name(), primaryErr, e.secondary.Name(), secondaryErr)
}

func (e *Executor) submit(ctx context.Context, p Path, order domain.Order) (string, error) {
	handle, err := p.Submit(ctx, order)
	observability.RecordPathSubmission(p.Name(), err)
	if handle == "" {
		handle = ledger.HandleOf(err)
	}
	if err != nil {
		e.logger.Error("swap path failed", "path", p.Name(), "tx_handle", handle, "error", err)
	}
	return handle, err
}

// resolve decides whether a failed submission can still commit and returns
// the sequence number the next path must use.
func (e *Executor) resolve(ctx context.Context, handle string, err error, pinned uint64) (verdict, uint64) {
	if handle != "" {
		st, serr := e.client.TransactionStatus(ctx, handle)
		switch {
		case serr == nil && st.Kind == ledger.StatusReverted:
			// An executed abort consumes the sequence number.
			return failed, pinned + 1
		case serr == nil:
			return landed, pinned
		case !errors.Is(serr, ledger.ErrNotFound):
			e.logger.Warn("status lookup failed", "tx_handle", handle, "error", serr)
			return unknown, pinned
		}
	} else if errors.Is(err, ledger.ErrRejected) {
		return failed, pinned
	}

	current, serr := e.client.SequenceNumber(ctx, e.account)
	if serr != nil {
		e.logger.Warn("sequence number lookup failed", "error", serr)
		return unknown, pinned
	}
	if current == pinned {
		// Nothing committed with the pinned number yet. A transaction still
		// in flight conflicts with the next path rather than double-spending.
		return inflight, pinned
	}
	return unknown, pinned
}

func (e *Executor) succeed(method domain.Method, p Path, handle string, order domain.Order) domain.Outcome {
	now := e.clock.Now()
	e.state.Record(order.Amount, now)

	snap := e.state.Snapshot()
	observability.UpdateSecurityState(snap.OperationCount, snap.TotalVolume, snap.LastSwapUnix)

	e.logger.Info("swap submitted", "method", method, "path", p.Name(), "tx_handle", handle, "amount", order.Amount)
	return &domain.Success{
		Method:      method,
		Path:        p.Name(),
		TxHandle:    handle,
		InputAmount: order.Amount,
		MinOutput:   order.MinOutput,
	}
}
