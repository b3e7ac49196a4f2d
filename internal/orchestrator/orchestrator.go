// Package orchestrator runs retried swap attempts.
// Each attempt runs validation → quote → execution, and a successful attempt
// is optionally followed by monitoring of its transaction.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"aptos-vault-swap/internal/clock"
	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/events"
	"aptos-vault-swap/internal/ledger"
	"aptos-vault-swap/internal/monitor"
	"aptos-vault-swap/internal/observability"
	"aptos-vault-swap/internal/security"
	"aptos-vault-swap/internal/storage"
)

// Defaults for the retry loop.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// Validator checks a proposed amount.
type Validator interface {
	Validate(ctx context.Context, amount uint64, now time.Time) *domain.Failure
}

// Quoter prices a proposed amount.
type Quoter interface {
	Quote(ctx context.Context, amount uint64) (domain.Quote, *domain.Failure)
}

// Executor submits a quoted swap.
type Executor interface {
	Execute(ctx context.Context, amount uint64, q domain.Quote) domain.Outcome
}

// Watcher follows a submitted transaction to a terminal status.
type Watcher interface {
	Watch(ctx context.Context, handle string) monitor.Report
}

// Orchestrator owns one security state and serializes nothing itself:
// callers must not run two swaps on the same Orchestrator at once.
type Orchestrator struct {
	validator Validator
	quotes    Quoter
	executor  Executor
	watcher   Watcher

	client ledger.Client
	state  *security.State
	clock  clock.Clock

	attempts storage.AttemptStore
	outcomes storage.OutcomeStore
	events   events.Publisher

	account     string
	sourceAsset string
	targetAsset string
	vault       string

	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// Options for creating an Orchestrator.
type Options struct {
	// Required
	Validator Validator
	Quotes    Quoter
	Executor  Executor
	Client    ledger.Client
	State     *security.State

	// Optional
	Watcher  Watcher
	Clock    clock.Clock
	Attempts storage.AttemptStore
	Outcomes storage.OutcomeStore
	Events   events.Publisher

	Account     string
	SourceAsset string
	TargetAsset string
	Vault       string

	MaxRetries int
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		validator:   opts.Validator,
		quotes:      opts.Quotes,
		executor:    opts.Executor,
		watcher:     opts.Watcher,
		client:      opts.Client,
		state:       opts.State,
		clock:       opts.Clock,
		attempts:    opts.Attempts,
		outcomes:    opts.Outcomes,
		events:      opts.Events,
		account:     opts.Account,
		sourceAsset: opts.SourceAsset,
		targetAsset: opts.TargetAsset,
		vault:       opts.Vault,
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
		logger:      opts.Logger.With("component", "orchestrator"),
	}
}

// Attempt is the result of one validate → quote → execute pass.
type Attempt struct {
	ID         string
	Number     int
	Outcome    domain.Outcome
	Quote      *domain.Quote // nil when the attempt stopped before quoting succeeded
	StartedAt  time.Time
	FinishedAt time.Time
}

// Report is the result of one retried run.
type Report struct {
	RunID    string
	Attempts []Attempt
	Final    domain.Outcome
	Monitor  *monitor.Report // set when monitoring was requested and the run succeeded
}

// Succeeded reports whether the run ended with a submitted swap.
func (r *Report) Succeeded() bool {
	_, ok := r.Final.(*domain.Success)
	return ok
}

// Response converts the final outcome into its JSON record.
func (r *Report) Response() domain.AttemptResponse {
	return domain.NewAttemptResponse(r.Final)
}

// Run performs up to MaxRetries attempts for amount, waiting RetryDelay between
// failed attempts. It stops at the first success, and also at an ambiguous
// submission since retrying could submit the swap twice. When watch is set and
// the run succeeded, the transaction is monitored before Run returns.
func (o *Orchestrator) Run(ctx context.Context, amount uint64, watch bool) *Report {
	report := &Report{RunID: uuid.NewString()}
	logger := o.logger.With("run_id", report.RunID, "amount", amount)
	logger.Info("swap run started", "max_retries", o.maxRetries)

	var last *domain.Failure
	for n := 1; n <= o.maxRetries; n++ {
		attempt := o.attempt(ctx, report.RunID, n, amount)
		report.Attempts = append(report.Attempts, attempt)

		f, ok := attempt.Outcome.(*domain.Failure)
		if !ok {
			report.Final = attempt.Outcome
			break
		}
		last = f
		logger.Warn("swap attempt failed", "attempt", n, "reason", f.Kind, "message", f.Message)

		if f.Kind == domain.FailureAmbiguousSubmission {
			logger.Error("submission outcome unknown, not retrying", "attempt", n)
			break
		}
		if n == o.maxRetries {
			break
		}
		logger.Info("retrying swap", "attempt", n+1, "delay", o.retryDelay)
		if err := o.clock.Sleep(ctx, o.retryDelay); err != nil {
			logger.Warn("retry wait interrupted", "error", err)
			break
		}
	}

	if report.Final == nil {
		report.Final = finalFailure(last, len(report.Attempts))
	}

	result := "success"
	if f, ok := report.Final.(*domain.Failure); ok {
		result = string(f.Kind)
		logger.Error("all swap attempts failed", "attempts", len(report.Attempts), "reason", f.Kind, "message", f.Message)
	} else {
		logger.Info("swap run succeeded", "attempts", len(report.Attempts))
	}
	observability.RecordRun(result)

	resp := report.Response()
	o.events.Publish(events.Event{
		Type:      events.TypeRun,
		RunID:     report.RunID,
		Attempt:   len(report.Attempts),
		Result:    &resp,
		Timestamp: o.clock.Now().Unix(),
	})

	if s, ok := report.Final.(*domain.Success); ok && watch && o.watcher != nil {
		mr := o.Watch(ctx, s.TxHandle)
		report.Monitor = &mr
	}
	return report
}

// finalFailure keeps the last attempt's reason and names how many attempts ran.
func finalFailure(last *domain.Failure, attempts int) *domain.Failure {
	if last == nil {
		return domain.NewFailure(domain.FailureExecutionError, "Swap not attempted")
	}
	f := *last
	noun := "attempts"
	if attempts == 1 {
		noun = "attempt"
	}
	f.Message = fmt.Sprintf("Swap failed after %d %s: %s", attempts, noun, last.Error())
	return &f
}

func (o *Orchestrator) attempt(ctx context.Context, runID string, n int, amount uint64) Attempt {
	a := Attempt{ID: uuid.NewString(), Number: n, StartedAt: o.clock.Now()}
	o.logger.Info("swap attempt", "run_id", runID, "attempt", n, "max_retries", o.maxRetries)

	a.Outcome = o.once(ctx, amount, &a)
	a.FinishedAt = o.clock.Now()

	result := "success"
	if f, ok := a.Outcome.(*domain.Failure); ok {
		result = string(f.Kind)
	}
	observability.RecordAttempt(result, a.FinishedAt.Sub(a.StartedAt).Seconds())

	o.journal(ctx, runID, amount, a)

	resp := domain.NewAttemptResponse(a.Outcome)
	o.events.Publish(events.Event{
		Type:      events.TypeAttempt,
		RunID:     runID,
		Attempt:   n,
		Result:    &resp,
		Timestamp: a.FinishedAt.Unix(),
	})
	return a
}

func (o *Orchestrator) once(ctx context.Context, amount uint64, a *Attempt) domain.Outcome {
	if f := o.validator.Validate(ctx, amount, o.clock.Now()); f != nil {
		return f
	}
	q, f := o.quotes.Quote(ctx, amount)
	if f != nil {
		return f
	}
	a.Quote = &q
	return o.executor.Execute(ctx, amount, q)
}

// journal appends the attempt to the attempt store. Store errors are logged
// and never change the outcome.
func (o *Orchestrator) journal(ctx context.Context, runID string, amount uint64, a Attempt) {
	if o.attempts == nil {
		return
	}
	rec := &domain.AttemptRecord{
		AttemptID:  a.ID,
		RunID:      runID,
		Number:     a.Number,
		Account:    o.account,
		Amount:     amount,
		StartedAt:  a.StartedAt.UnixMilli(),
		FinishedAt: a.FinishedAt.UnixMilli(),
	}
	if a.Quote != nil {
		rec.Expected = a.Quote.ExpectedOutput
		rec.MinOutput = a.Quote.MinOutput
		rec.Impact = a.Quote.PriceImpact
	}
	switch v := a.Outcome.(type) {
	case *domain.Success:
		rec.Success = true
		rec.Method = v.Method.String()
		rec.Path = v.Path
		rec.TxHandle = v.TxHandle
		rec.Message = domain.NewAttemptResponse(v).Message
	case *domain.Failure:
		rec.FailureKind = string(v.Kind)
		rec.Message = v.Error()
	}
	if err := o.attempts.Insert(ctx, rec); err != nil {
		o.logger.Error("journal attempt failed", "run_id", runID, "attempt_id", a.ID, "error", err)
	}
}

// Watch monitors handle, stores the outcome and publishes it.
func (o *Orchestrator) Watch(ctx context.Context, handle string) monitor.Report {
	if o.watcher == nil {
		return monitor.Report{Handle: handle, Outcome: domain.MonitorError{Detail: "monitoring disabled"}}
	}
	r := o.watcher.Watch(ctx, handle)

	if o.outcomes != nil {
		rec := &domain.OutcomeRecord{
			TxHandle:   handle,
			Account:    o.account,
			Status:     r.Outcome.Status(),
			Polls:      r.Polls,
			LatencyMs:  r.Elapsed.Milliseconds(),
			ObservedAt: o.clock.Now().UnixMilli(),
		}
		switch v := r.Outcome.(type) {
		case domain.Confirmed:
			rec.GasUsed = v.GasUsed
		case domain.Reverted:
			rec.Detail = v.Detail
		case domain.MonitorError:
			rec.Detail = v.Detail
		}
		// The request context may already be gone once a long watch ends.
		if err := o.outcomes.Insert(context.WithoutCancel(ctx), rec); err != nil {
			o.logger.Error("store monitor outcome failed", "tx_handle", handle, "error", err)
		}
	}

	resp := domain.NewMonitorResponse(handle, r.Outcome)
	o.events.Publish(events.Event{
		Type:      events.TypeMonitor,
		Monitor:   &resp,
		Timestamp: o.clock.Now().Unix(),
	})
	return r
}

// Quote prices amount without executing it.
func (o *Orchestrator) Quote(ctx context.Context, amount uint64) (domain.Quote, *domain.Failure) {
	return o.quotes.Quote(ctx, amount)
}

// Status is the operator and vault view.
type Status struct {
	Account       string            `json:"account"`
	SourceAsset   string            `json:"source_asset"`
	TargetAsset   string            `json:"target_asset"`
	SourceBalance uint64            `json:"source_balance"`
	TargetBalance uint64            `json:"target_balance"`
	Balances      map[string]uint64 `json:"balances"`
	Vault         []json.RawMessage `json:"vault_info,omitempty"`
	Integration   []json.RawMessage `json:"integration_info,omitempty"`
	Swaps         security.Snapshot `json:"swap_stats"`
	Errors        []string          `json:"errors,omitempty"`
}

// Status collects balances, the vault's own view functions and the security
// counters. Collaborator failures are reported in Errors, the rest of the
// status is still returned.
func (o *Orchestrator) Status(ctx context.Context) Status {
	st := Status{
		Account:     o.account,
		SourceAsset: o.sourceAsset,
		TargetAsset: o.targetAsset,
		Balances:    map[string]uint64{},
		Swaps:       o.state.Snapshot(),
	}

	balances, err := o.client.AccountBalances(ctx, o.account)
	if err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("balances: %v", err))
	} else {
		st.Balances = balances
		st.SourceBalance = ledger.BalanceOf(balances, o.sourceAsset)
		st.TargetBalance = ledger.BalanceOf(balances, o.targetAsset)
	}

	if o.vault == "" {
		return st
	}
	st.Vault, err = o.client.View(ctx, ledger.ViewRequest{
		Function:      o.vault + "::vault::get_vault_status",
		TypeArguments: []string{},
		Arguments:     []any{},
	})
	if err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("vault status: %v", err))
	}
	st.Integration, err = o.client.View(ctx, ledger.ViewRequest{
		Function:      o.vault + "::vault_integration::get_integration_status",
		TypeArguments: []string{},
		Arguments:     []any{o.vault},
	})
	if err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("integration status: %v", err))
	}
	if len(st.Errors) > 0 {
		o.logger.Warn("status incomplete", "errors", st.Errors)
	}
	return st
}
