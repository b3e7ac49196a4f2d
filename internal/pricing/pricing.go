// Package pricing answers "how much target asset would this amount buy".
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"aptos-vault-swap/internal/ledger"
)

// DefaultFeeBps is the pool fee charged on the input amount.
const DefaultFeeBps = 25

const bpsDenominator = 10_000

// ErrNoLiquidity is returned when the pool has an empty side.
var ErrNoLiquidity = errors.New("pool has no liquidity")

// Quoter prices a proposed trade.
type Quoter interface {
	Quote(ctx context.Context, amount uint64, assetIn, assetOut string) (expected uint64, impact float64, err error)
}

// ReserveQuoter prices trades from the router pool reserves using the
// constant-product formula.
type ReserveQuoter struct {
	client ledger.Client
	router string
	feeBps int64
}

// NewReserveQuoter creates a quoter reading reserves through router's view functions.
func NewReserveQuoter(client ledger.Client, router string) *ReserveQuoter {
	return &ReserveQuoter{client: client, router: router, feeBps: DefaultFeeBps}
}

// WithFeeBps overrides the pool fee.
func (q *ReserveQuoter) WithFeeBps(bps int64) *ReserveQuoter {
	q.feeBps = bps
	return q
}

// ReservesFunction returns the view function used to read reserves.
func (q *ReserveQuoter) ReservesFunction() string {
	return q.router + "::swap::token_reserves"
}

// Quote reads (reserve_in, reserve_out) and returns the fee-adjusted output
// and the price impact amount / (reserve_in + amount).
func (q *ReserveQuoter) Quote(ctx context.Context, amount uint64, assetIn, assetOut string) (uint64, float64, error) {
	out, err := q.client.View(ctx, ledger.ViewRequest{
		Function:      q.ReservesFunction(),
		TypeArguments: []string{assetIn, assetOut},
	})
	if err != nil {
		return 0, 0, fmt.Errorf("read reserves: %w", err)
	}
	if len(out) < 2 {
		return 0, 0, fmt.Errorf("read reserves: expected 2 values, got %d", len(out))
	}
	reserveIn, err := ledger.ParseU64(out[0])
	if err != nil {
		return 0, 0, fmt.Errorf("reserve_in: %w", err)
	}
	reserveOut, err := ledger.ParseU64(out[1])
	if err != nil {
		return 0, 0, fmt.Errorf("reserve_out: %w", err)
	}
	return ConstantProduct(amount, reserveIn, reserveOut, q.feeBps)
}

// ConstantProduct computes the output of an x*y=k pool after a fee in basis points.
func ConstantProduct(amount, reserveIn, reserveOut uint64, feeBps int64) (uint64, float64, error) {
	if reserveIn == 0 || reserveOut == 0 {
		return 0, 0, ErrNoLiquidity
	}
	if feeBps < 0 || feeBps >= bpsDenominator {
		return 0, 0, fmt.Errorf("fee %d bps out of range", feeBps)
	}

	in := FromUint64(amount)
	rIn := FromUint64(reserveIn)
	rOut := FromUint64(reserveOut)
	denom := decimal.NewFromInt(bpsDenominator)

	inWithFee := in.Mul(denom.Sub(decimal.NewFromInt(feeBps)))
	expected, _ := inWithFee.Mul(rOut).QuoRem(rIn.Mul(denom).Add(inWithFee), 0)

	impact, _ := in.Div(rIn.Add(in)).Float64()
	return expected.BigInt().Uint64(), impact, nil
}

// FixedRate quotes every trade at a constant rate and impact. It backs paper
// runs where no pool is available.
type FixedRate struct {
	Rate   decimal.Decimal
	Impact float64
}

// NewFixedRate creates a fixed-rate quoter.
func NewFixedRate(rate decimal.Decimal, impact float64) FixedRate {
	return FixedRate{Rate: rate, Impact: impact}
}

// Quote returns floor(amount * rate).
func (f FixedRate) Quote(_ context.Context, amount uint64, _, _ string) (uint64, float64, error) {
	if f.Rate.IsNegative() {
		return 0, 0, fmt.Errorf("negative rate %s", f.Rate)
	}
	out := FromUint64(amount).Mul(f.Rate).Floor()
	return out.BigInt().Uint64(), f.Impact, nil
}

// FromUint64 converts a ledger amount to a decimal without loss.
func FromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
