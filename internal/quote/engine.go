// Package quote turns a pricing answer into a slippage-protected minimum output.
package quote

import (
	"context"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/observability"
	"aptos-vault-swap/internal/pricing"
)

// Engine obtains quotes and applies the price impact gate.
type Engine struct {
	quoter      pricing.Quoter
	maxSlippage float64
	assetIn     string
	assetOut    string
	logger      *slog.Logger
}

// NewEngine creates a quote engine for the assetIn -> assetOut pair.
func NewEngine(quoter pricing.Quoter, maxSlippage float64, assetIn, assetOut string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		quoter:      quoter,
		maxSlippage: maxSlippage,
		assetIn:     assetIn,
		assetOut:    assetOut,
		logger:      logger.With("component", "quote"),
	}
}

// Quote prices amount and derives the minimum acceptable output. A quote
// whose price impact exceeds the slippage limit is rejected.
func (e *Engine) Quote(ctx context.Context, amount uint64) (domain.Quote, *domain.Failure) {
	expected, impact, err := e.quoter.Quote(ctx, amount, e.assetIn, e.assetOut)
	if err != nil {
		return e.reject(domain.NewFailure(domain.FailureQuoteUnavailable, "Failed to get quote: %v", err))
	}
	if math.IsNaN(impact) || impact < 0 {
		return e.reject(domain.NewFailure(domain.FailureQuoteUnavailable, "Failed to get quote: invalid price impact %v", impact))
	}

	q := domain.Quote{
		ExpectedOutput: expected,
		PriceImpact:    impact,
		MinOutput:      MinOutput(expected, e.maxSlippage),
	}

	if impact > e.maxSlippage {
		f := domain.NewFailure(domain.FailurePriceImpactTooHigh,
			"Price impact too high: %.2f%% > %.2f%%", impact*100, e.maxSlippage*100)
		f.Impact = impact
		f.Limit = e.maxSlippage
		return e.reject(f)
	}

	e.logger.Info("quote",
		"amount", amount,
		"expected_output", q.ExpectedOutput,
		"min_output", q.MinOutput,
		"price_impact", impact,
	)
	return q, nil
}

func (e *Engine) reject(f *domain.Failure) (domain.Quote, *domain.Failure) {
	e.logger.Warn("quote rejected", "reason", f.Kind, "message", f.Message)
	observability.RecordQuoteRejection(string(f.Kind))
	return domain.Quote{}, f
}

// MinOutput returns floor(expected * (1 - slippage)), never rounding up.
func MinOutput(expected uint64, slippage float64) uint64 {
	keep := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(slippage))
	if keep.IsNegative() {
		return 0
	}
	return pricing.FromUint64(expected).Mul(keep).Floor().BigInt().Uint64()
}
