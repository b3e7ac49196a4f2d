// Package validation runs the ordered admission checks for a proposed swap.
package validation

import (
	"context"
	"log/slog"
	"time"

	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/ledger"
	"aptos-vault-swap/internal/observability"
	"aptos-vault-swap/internal/security"
)

// Limits are the amount bounds enforced by the validator.
type Limits struct {
	MinAmount uint64
	MaxAmount uint64
}

// Validator checks amount bounds, cooldown, balance and ledger health, in
// that order, stopping at the first failure. The local checks run before any
// ledger call.
type Validator struct {
	limits  Limits
	state   *security.State
	client  ledger.Client
	account string
	asset   string
	logger  *slog.Logger
}

// NewValidator creates a validator for account spending asset.
func NewValidator(limits Limits, state *security.State, client ledger.Client, account, asset string, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		limits:  limits,
		state:   state,
		client:  client,
		account: account,
		asset:   asset,
		logger:  logger.With("component", "validator"),
	}
}

// Validate returns nil when amount may be swapped at now.
func (v *Validator) Validate(ctx context.Context, amount uint64, now time.Time) *domain.Failure {
	f := v.check(ctx, amount, now)
	if f != nil {
		v.logger.Warn("validation failed", "amount", amount, "reason", f.Kind, "message", f.Message)
		observability.RecordValidationRejection(string(f.Kind))
		return f
	}
	v.logger.Debug("validation passed", "amount", amount)
	return nil
}

func (v *Validator) check(ctx context.Context, amount uint64, now time.Time) *domain.Failure {
	if amount < v.limits.MinAmount {
		return domain.NewFailure(domain.FailureAmountTooSmall, "Amount too small: %d < %d", amount, v.limits.MinAmount)
	}
	if amount > v.limits.MaxAmount {
		return domain.NewFailure(domain.FailureAmountTooLarge, "Amount too large: %d > %d", amount, v.limits.MaxAmount)
	}
	if wait := v.state.Observe(now); wait > 0 {
		remaining := security.WholeSeconds(wait)
		f := domain.NewFailure(domain.FailureCooldownActive, "Cooldown active: %ds remaining", remaining)
		f.RemainingSeconds = remaining
		return f
	}

	balances, err := v.client.AccountBalances(ctx, v.account)
	if err != nil {
		return domain.NewFailure(domain.FailureValidationError, "Validation error: balance lookup: %v", err)
	}
	if available := ledger.BalanceOf(balances, v.asset); available < amount {
		return domain.NewFailure(domain.FailureInsufficientBalance, "Insufficient balance: %d < %d", available, amount)
	}

	healthy, err := v.client.IsHealthy(ctx)
	if err != nil {
		return domain.NewFailure(domain.FailureValidationError, "Validation error: health check: %v", err)
	}
	if !healthy {
		return domain.NewFailure(domain.FailureLedgerUnhealthy, "Network is unhealthy")
	}
	return nil
}
