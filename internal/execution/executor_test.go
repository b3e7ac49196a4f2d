package execution

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aptos-vault-swap/internal/clock"
	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/ledger"
	"aptos-vault-swap/internal/ledger/stub"
	"aptos-vault-swap/internal/security"
)

const (
	account = "0xoperator"
	vault   = "0xvault"
	router  = "0xrouter"
	aptType = "0x1::aptos_coin::AptosCoin"
	usdt    = "0xusdt::asset::USDT"
)

var start = time.Unix(1_700_000_000, 0)

type fixture struct {
	client *stub.Client
	state  *security.State
	clock  *clock.Fake
	exec   *Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := stub.NewClient()
	client.SetSequence(account, 7)
	state := security.NewState(time.Hour)
	clk := clock.NewFake(start)
	exec := NewExecutor(Config{
		Primary:   NewVaultPath(client, vault),
		Secondary: NewRouterPath(client, router, aptType, usdt, account),
		Client:    client,
		Account:   account,
		State:     state,
		Clock:     clk,
	})
	return &fixture{client: client, state: state, clock: clk, exec: exec}
}

// script makes submissions through the named path fail with err.
func (f *fixture) script(results map[string]func(ledger.Submission) (string, error)) {
	f.client.OnSubmit(func(sub ledger.Submission) (string, error) {
		if fn, ok := results[sub.Path]; ok {
			return fn(sub)
		}
		return fmt.Sprintf("0x%s%d", sub.Path, sub.SequenceNumber), nil
	})
}

func fail(err error) func(ledger.Submission) (string, error) {
	return func(ledger.Submission) (string, error) { return "", err }
}

var quote = domain.Quote{ExpectedOutput: 100_000, MinOutput: 95_000}

func TestExecute_PrimarySuccess(t *testing.T) {
	f := newFixture(t)

	out := f.exec.Execute(context.Background(), 100_000, quote)

	success, ok := out.(*domain.Success)
	require.True(t, ok, "expected success, got %#v", out)
	assert.Equal(t, domain.MethodPrimary, success.Method)
	assert.Equal(t, "vault", success.Path)
	assert.Equal(t, uint64(100_000), success.InputAmount)
	assert.Equal(t, uint64(95_000), success.MinOutput)

	subs := f.client.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, vault+"::pancakeswap_adapter::swap_apt_for_usdt", subs[0].Payload.Function)
	assert.Equal(t, []any{"100000", "95000"}, subs[0].Payload.Arguments)
	assert.Equal(t, uint64(7), subs[0].SequenceNumber)

	snap := f.state.Snapshot()
	assert.Equal(t, uint64(1), snap.OperationCount)
	assert.Equal(t, uint64(100_000), snap.TotalVolume)
	assert.Equal(t, start.Unix(), snap.LastSwapUnix)
}

func TestExecute_FallbackToSecondary(t *testing.T) {
	f := newFixture(t)
	f.script(map[string]func(ledger.Submission) (string, error){
		"vault": fail(fmt.Errorf("%w: vault paused", ledger.ErrRejected)),
	})

	out := f.exec.Execute(context.Background(), 100_000, quote)

	success, ok := out.(*domain.Success)
	require.True(t, ok, "expected success, got %#v", out)
	assert.Equal(t, domain.MethodSecondary, success.Method)
	assert.Equal(t, "router", success.Path)
	assert.Equal(t, "0xrouter7", success.TxHandle)
	assert.Equal(t, uint64(1), f.state.Snapshot().OperationCount)

	subs := f.client.Submissions()
	require.Len(t, subs, 2)
	assert.Equal(t, subs[0].SequenceNumber, subs[1].SequenceNumber, "both paths must share the pinned sequence number")

	args := subs[1].Payload.Arguments
	require.Len(t, args, 5)
	assert.Equal(t, router+"::router::swap_exact_input", subs[1].Payload.Function)
	assert.Equal(t, []string{aptType, usdt}, args[2])
	assert.Equal(t, account, args[3])
	assert.Equal(t, strconv.FormatInt(start.Add(time.Hour).Unix(), 10), args[4])
}

func TestExecute_AllPathsExhausted(t *testing.T) {
	f := newFixture(t)
	f.script(map[string]func(ledger.Submission) (string, error){
		"vault":  fail(fmt.Errorf("%w: vault paused", ledger.ErrRejected)),
		"router": fail(fmt.Errorf("%w: insufficient liquidity", ledger.ErrRejected)),
	})

	out := f.exec.Execute(context.Background(), 100_000, quote)

	failure, ok := out.(*domain.Failure)
	require.True(t, ok, "expected failure, got %#v", out)
	assert.Equal(t, domain.FailureAllPathsExhausted, failure.Kind)
	assert.Contains(t, failure.Message, "vault paused")
	assert.Contains(t, failure.Message, "insufficient liquidity")
	assert.Equal(t, uint64(0), f.state.Snapshot().OperationCount)
	assert.Equal(t, uint64(0), f.state.Snapshot().TotalVolume)
}

func TestExecute_UnknownPrimaryWithAdvancedSequenceDoesNotFallBack(t *testing.T) {
	f := newFixture(t)
	f.script(map[string]func(ledger.Submission) (string, error){
		"vault": func(ledger.Submission) (string, error) {
			// the node committed the transaction but the response was lost
			f.client.SetSequence(account, 8)
			return "", errors.New("http request: connection reset")
		},
	})

	out := f.exec.Execute(context.Background(), 100_000, quote)

	failure, ok := out.(*domain.Failure)
	require.True(t, ok, "expected failure, got %#v", out)
	assert.Equal(t, domain.FailureAmbiguousSubmission, failure.Kind)
	assert.Len(t, f.client.Submissions(), 1, "secondary must not be attempted")
	assert.Equal(t, uint64(0), f.state.Snapshot().OperationCount)
}

func TestExecute_UnknownPrimaryWithPinnedSequenceFallsBack(t *testing.T) {
	f := newFixture(t)
	f.script(map[string]func(ledger.Submission) (string, error){
		"vault": fail(errors.New("http request: timeout")),
	})

	out := f.exec.Execute(context.Background(), 100_000, quote)

	success, ok := out.(*domain.Success)
	require.True(t, ok, "expected success, got %#v", out)
	assert.Equal(t, domain.MethodSecondary, success.Method)

	subs := f.client.Submissions()
	require.Len(t, subs, 2)
	assert.Equal(t, uint64(7), subs[1].SequenceNumber)
}

func TestExecute_InFlightPrimaryBlocksSecondaryIsAmbiguous(t *testing.T) {
	f := newFixture(t)
	// the vault transaction holds sequence 7 in the mempool
	f.script(map[string]func(ledger.Submission) (string, error){
		"vault":  fail(errors.New("http request: context deadline exceeded")),
		"router": fail(fmt.Errorf("%w: SEQUENCE_NUMBER_ALREADY_IN_MEMPOOL", ledger.ErrRejected)),
	})

	out := f.exec.Execute(context.Background(), 100_000, quote)

	failure, ok := out.(*domain.Failure)
	require.True(t, ok, "expected failure, got %#v", out)
	assert.Equal(t, domain.FailureAmbiguousSubmission, failure.Kind)
	assert.Contains(t, failure.Message, "context deadline exceeded")
	assert.Contains(t, failure.Message, "ALREADY_IN_MEMPOOL")
	assert.Len(t, f.client.Submissions(), 2)
	assert.Equal(t, uint64(0), f.state.Snapshot().OperationCount)
}

func TestExecute_SecondaryNetworkErrorIsAmbiguous(t *testing.T) {
	f := newFixture(t)
	f.script(map[string]func(ledger.Submission) (string, error){
		"vault":  fail(fmt.Errorf("%w: vault paused", ledger.ErrRejected)),
		"router": fail(errors.New("http request: connection reset")),
	})

	out := f.exec.Execute(context.Background(), 100_000, quote)

	failure, ok := out.(*domain.Failure)
	require.True(t, ok, "expected failure, got %#v", out)
	assert.Equal(t, domain.FailureAmbiguousSubmission, failure.Kind)
}

func TestExecute_PrimaryHandlePendingCountsAsSubmitted(t *testing.T) {
	f := newFixture(t)
	f.script(map[string]func(ledger.Submission) (string, error){
		"vault": fail(&ledger.SubmitError{Handle: "0xabc", Err: errors.New("response truncated")}),
	})
	f.client.ScriptStatus("0xabc", stub.StatusResult{Status: ledger.Status{Kind: ledger.StatusPending}})

	out := f.exec.Execute(context.Background(), 100_000, quote)

	success, ok := out.(*domain.Success)
	require.True(t, ok, "expected success, got %#v", out)
	assert.Equal(t, domain.MethodPrimary, success.Method)
	assert.Equal(t, "0xabc", success.TxHandle)
	assert.Len(t, f.client.Submissions(), 1)
	assert.Equal(t, uint64(1), f.state.Snapshot().OperationCount)
}

func TestExecute_PrimaryRevertedFallsBackWithNextSequence(t *testing.T) {
	f := newFixture(t)
	f.script(map[string]func(ledger.Submission) (string, error){
		"vault": fail(&ledger.SubmitError{Handle: "0xdead", Err: ledger.ErrReverted}),
	})
	f.client.ScriptStatus("0xdead", stub.StatusResult{Status: ledger.Status{Kind: ledger.StatusReverted, Detail: "ABORTED"}})

	out := f.exec.Execute(context.Background(), 100_000, quote)

	success, ok := out.(*domain.Success)
	require.True(t, ok, "expected success, got %#v", out)
	assert.Equal(t, domain.MethodSecondary, success.Method)

	subs := f.client.Submissions()
	require.Len(t, subs, 2)
	assert.Equal(t, uint64(8), subs[1].SequenceNumber)
}

func TestExecute_StatusLookupFailureIsAmbiguous(t *testing.T) {
	f := newFixture(t)
	f.script(map[string]func(ledger.Submission) (string, error){
		"vault": fail(&ledger.SubmitError{Handle: "0xabc", Err: errors.New("boom")}),
	})
	f.client.ScriptStatus("0xabc", stub.StatusResult{Err: errors.New("node unavailable")})

	out := f.exec.Execute(context.Background(), 100_000, quote)

	failure, ok := out.(*domain.Failure)
	require.True(t, ok, "expected failure, got %#v", out)
	assert.Equal(t, domain.FailureAmbiguousSubmission, failure.Kind)
	assert.Len(t, f.client.Submissions(), 1)
}

func TestExecute_SequenceLookupFailure(t *testing.T) {
	f := newFixture(t)
	f.client.FailSequence(errors.New("node unavailable"))

	out := f.exec.Execute(context.Background(), 100_000, quote)

	failure, ok := out.(*domain.Failure)
	require.True(t, ok, "expected failure, got %#v", out)
	assert.Equal(t, domain.FailureExecutionError, failure.Kind)
	assert.Empty(t, f.client.Submissions())
}

func TestSettled_RevertedBecomesSubmitError(t *testing.T) {
	client := stub.NewClient()
	clk := clock.NewFake(start)
	client.OnSubmit(func(ledger.Submission) (string, error) { return "0xtx", nil })
	client.ScriptStatus("0xtx",
		stub.StatusResult{Status: ledger.Status{Kind: ledger.StatusPending}},
		stub.StatusResult{Status: ledger.Status{Kind: ledger.StatusReverted, Detail: "E_SLIPPAGE"}},
	)

	p := Settled(NewVaultPath(client, vault), client, clk, 20*time.Second, time.Second, nil)
	handle, err := p.Submit(context.Background(), domain.Order{Amount: 1})

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrReverted)
	assert.Equal(t, "0xtx", handle)
	assert.Equal(t, "0xtx", ledger.HandleOf(err))
	assert.Equal(t, "vault", p.Name())
}

func TestSettled_PendingAtTimeoutIsSubmitted(t *testing.T) {
	client := stub.NewClient()
	clk := clock.NewFake(start)

	p := Settled(NewVaultPath(client, vault), client, clk, 10*time.Second, 2*time.Second, nil)
	handle, err := p.Submit(context.Background(), domain.Order{Amount: 1})

	require.NoError(t, err)
	assert.NotEmpty(t, handle)
	assert.LessOrEqual(t, clk.Now().Sub(start), 10*time.Second)
	assert.Equal(t, 4, len(clk.Sleeps()))
}

func TestSettled_ZeroTimeoutIsPassThrough(t *testing.T) {
	client := stub.NewClient()
	base := NewVaultPath(client, vault)
	assert.Same(t, base, Settled(base, client, clock.NewFake(start), 0, time.Second, nil))
}
