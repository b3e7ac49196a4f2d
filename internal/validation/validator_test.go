package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/ledger/stub"
	"aptos-vault-swap/internal/security"
)

const (
	account = "0xoperator"
	asset   = "0x1::aptos_coin::AptosCoin"
)

var t0 = time.Unix(1_700_000_000, 0)

func setup(t *testing.T) (*Validator, *security.State, *stub.Client) {
	t.Helper()
	client := stub.NewClient()
	client.SetBalance(account, asset, 10_000_000)
	state := security.NewState(time.Hour)
	v := NewValidator(Limits{MinAmount: 100_000, MaxAmount: 1_000_000_000}, state, client, account, asset, nil)
	return v, state, client
}

func TestValidate_Accepts(t *testing.T) {
	v, _, client := setup(t)
	assert.Nil(t, v.Validate(context.Background(), 100_000, t0))
	assert.Equal(t, 1, client.Calls("AccountBalances"))
	assert.Equal(t, 1, client.Calls("IsHealthy"))
}

func TestValidate_Reasons(t *testing.T) {
	tests := []struct {
		name    string
		amount  uint64
		prepare func(*security.State, *stub.Client)
		want    domain.FailureKind
		message string
	}{
		{
			name:    "below minimum",
			amount:  99_999,
			want:    domain.FailureAmountTooSmall,
			message: "Amount too small: 99999 < 100000",
		},
		{
			name:    "above maximum",
			amount:  1_000_000_001,
			want:    domain.FailureAmountTooLarge,
			message: "Amount too large: 1000000001 > 1000000000",
		},
		{
			name:   "cooldown",
			amount: 100_000,
			prepare: func(s *security.State, _ *stub.Client) {
				s.Record(1, t0.Add(-30*time.Minute))
			},
			want:    domain.FailureCooldownActive,
			message: "Cooldown active: 1800s remaining",
		},
		{
			name:    "insufficient balance",
			amount:  20_000_000,
			want:    domain.FailureInsufficientBalance,
			message: "Insufficient balance: 10000000 < 20000000",
		},
		{
			name:   "unhealthy",
			amount: 100_000,
			prepare: func(_ *security.State, c *stub.Client) {
				c.SetHealth(false, nil)
			},
			want:    domain.FailureLedgerUnhealthy,
			message: "Network is unhealthy",
		},
		{
			name:   "balance lookup error",
			amount: 100_000,
			prepare: func(_ *security.State, c *stub.Client) {
				c.FailBalances(errors.New("connection reset"))
			},
			want: domain.FailureValidationError,
		},
		{
			name:   "health check error",
			amount: 100_000,
			prepare: func(_ *security.State, c *stub.Client) {
				c.SetHealth(false, errors.New("timeout"))
			},
			want: domain.FailureValidationError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, state, client := setup(t)
			if tt.prepare != nil {
				tt.prepare(state, client)
			}
			f := v.Validate(context.Background(), tt.amount, t0)
			require.NotNil(t, f)
			assert.Equal(t, tt.want, f.Kind)
			assert.Equal(t, domain.CategoryValidation, f.Kind.Category())
			if tt.message != "" {
				assert.Equal(t, tt.message, f.Message)
			}
		})
	}
}

func TestValidate_FirstFailingCheckWins(t *testing.T) {
	v, state, client := setup(t)
	state.Record(1, t0)
	client.SetHealth(false, nil)

	// too small, in cooldown and unhealthy: the amount check reports first
	f := v.Validate(context.Background(), 1, t0)
	require.NotNil(t, f)
	assert.Equal(t, domain.FailureAmountTooSmall, f.Kind)

	// in cooldown and unhealthy: cooldown reports first
	f = v.Validate(context.Background(), 100_000, t0)
	require.NotNil(t, f)
	assert.Equal(t, domain.FailureCooldownActive, f.Kind)

	// balance before health
	f = v.Validate(context.Background(), 50_000_000, t0.Add(2*time.Hour))
	require.NotNil(t, f)
	assert.Equal(t, domain.FailureInsufficientBalance, f.Kind)
}

func TestValidate_LocalChecksSkipLedger(t *testing.T) {
	v, state, client := setup(t)

	v.Validate(context.Background(), 1, t0)
	v.Validate(context.Background(), 2_000_000_000, t0)
	state.Record(100_000, t0)
	v.Validate(context.Background(), 100_000, t0.Add(time.Minute))

	assert.Equal(t, 0, client.Calls("AccountBalances"))
	assert.Equal(t, 0, client.Calls("IsHealthy"))
}

func TestValidate_CooldownBoundary(t *testing.T) {
	v, state, _ := setup(t)
	state.Record(100_000, t0)

	f := v.Validate(context.Background(), 100_000, t0.Add(time.Hour-time.Second))
	require.NotNil(t, f)
	assert.Equal(t, domain.FailureCooldownActive, f.Kind)
	assert.Equal(t, int64(1), f.RemainingSeconds)

	assert.Nil(t, v.Validate(context.Background(), 100_000, t0.Add(time.Hour)))
}

func TestValidate_BoundsInclusive(t *testing.T) {
	v, _, client := setup(t)
	client.SetBalance(account, asset, 2_000_000_000)

	assert.Nil(t, v.Validate(context.Background(), 100_000, t0))
	assert.Nil(t, v.Validate(context.Background(), 1_000_000_000, t0))
}
