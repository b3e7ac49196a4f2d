// Package execution submits swaps through the vault and router paths, falling
// back from one to the other without ever letting both commit.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"aptos-vault-swap/internal/clock"
	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/ledger"
)

// Path is one way of executing a swap on the ledger.
type Path interface {
	Name() string
	// Submit sends the order and returns its transaction handle. A non-empty
	// handle may accompany an error when the node accepted the transaction.
	Submit(ctx context.Context, order domain.Order) (string, error)
}

// VaultPath swaps through the vault's adapter module.
type VaultPath struct {
	client ledger.Client
	vault  string
}

// NewVaultPath creates the vault-mediated path.
func NewVaultPath(client ledger.Client, vault string) *VaultPath {
	return &VaultPath{client: client, vault: vault}
}

func (p *VaultPath) Name() string { return "vault" }

// Submit calls {vault}::pancakeswap_adapter::swap_apt_for_usdt(amount, min_out).
func (p *VaultPath) Submit(ctx context.Context, order domain.Order) (string, error) {
	return p.client.Submit(ctx, ledger.Submission{
		Path: p.Name(),
		Payload: ledger.Payload{
			Function: p.vault + "::pancakeswap_adapter::swap_apt_for_usdt",
			Arguments: []any{
				strconv.FormatUint(order.Amount, 10),
				strconv.FormatUint(order.MinOutput, 10),
			},
		},
		SequenceNumber: order.SequenceNumber,
	})
}

// RouterPath swaps directly through the DEX router.
type RouterPath struct {
	client    ledger.Client
	router    string
	assetIn   string
	assetOut  string
	recipient string
}

// NewRouterPath creates the direct router path paying out to recipient.
func NewRouterPath(client ledger.Client, router, assetIn, assetOut, recipient string) *RouterPath {
	return &RouterPath{client: client, router: router, assetIn: assetIn, assetOut: assetOut, recipient: recipient}
}

func (p *RouterPath) Name() string { return "router" }

// Submit calls {router}::router::swap_exact_input(amount, min_out, path, recipient, deadline).
func (p *RouterPath) Submit(ctx context.Context, order domain.Order) (string, error) {
	return p.client.Submit(ctx, ledger.Submission{
		Path: p.Name(),
		Payload: ledger.Payload{
			Function: p.router + "::router::swap_exact_input",
			Arguments: []any{
				strconv.FormatUint(order.Amount, 10),
				strconv.FormatUint(order.MinOutput, 10),
				[]string{p.assetIn, p.assetOut},
				p.recipient,
				strconv.FormatInt(order.Deadline.Unix(), 10),
			},
		},
		SequenceNumber: order.SequenceNumber,
	})
}

// settledPath waits for a submitted transaction to leave the mempool before
// reporting success, so that an on-ledger abort fails the path.
type settledPath struct {
	Path
	client   ledger.Client
	clock    clock.Clock
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// Settled wraps p so that Submit waits up to timeout for the transaction to
// execute. A reverted transaction is returned as a *ledger.SubmitError
// carrying its handle. A transaction still pending at the timeout counts as
// submitted. A zero timeout returns p unchanged.
func Settled(p Path, client ledger.Client, clk clock.Clock, timeout, interval time.Duration, logger *slog.Logger) Path {
	if timeout <= 0 {
		return p
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &settledPath{Path: p, client: client, clock: clk, timeout: timeout, interval: interval, logger: logger}
}

func (p *settledPath) Submit(ctx context.Context, order domain.Order) (string, error) {
	handle, err := p.Path.Submit(ctx, order)
	if err != nil || handle == "" {
		return handle, err
	}

	deadline := p.clock.Now().Add(p.timeout)
	for {
		st, serr := p.client.TransactionStatus(ctx, handle)
		switch {
		case serr == nil && st.Kind == ledger.StatusReverted:
			return handle, &ledger.SubmitError{Handle: handle, Err: fmt.Errorf("%w: %s", ledger.ErrReverted, st.Detail)}
		case serr == nil && st.Kind == ledger.StatusConfirmed:
			return handle, nil
		case serr != nil && !errors.Is(serr, ledger.ErrNotFound):
			p.logger.Debug("settle poll failed", "path", p.Name(), "tx_handle", handle, "error", serr)
		}

		if !p.clock.Now().Add(p.interval).Before(deadline) {
			p.logger.Info("transaction not settled in time, treating as submitted", "path", p.Name(), "tx_handle", handle)
			return handle, nil
		}
		if err := p.clock.Sleep(ctx, p.interval); err != nil {
			return handle, nil
		}
	}
}
