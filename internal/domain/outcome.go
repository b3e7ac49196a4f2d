package domain

import "fmt"

// Category groups failure kinds into the error taxonomy exposed upward.
type Category string

const (
	CategoryValidation Category = "VALIDATION"
	CategoryQuote      Category = "QUOTE"
	CategoryExecution  Category = "EXECUTION"
)

// FailureKind is the concrete reason an attempt did not produce a submission.
type FailureKind string

const (
	// Validation
	FailureAmountTooSmall      FailureKind = "AMOUNT_TOO_SMALL"
	FailureAmountTooLarge      FailureKind = "AMOUNT_TOO_LARGE"
	FailureCooldownActive      FailureKind = "COOLDOWN_ACTIVE"
	FailureInsufficientBalance FailureKind = "INSUFFICIENT_BALANCE"
	FailureLedgerUnhealthy     FailureKind = "LEDGER_UNHEALTHY"
	FailureValidationError     FailureKind = "VALIDATION_ERROR"

	// Quote
	FailureQuoteUnavailable   FailureKind = "QUOTE_UNAVAILABLE"
	FailurePriceImpactTooHigh FailureKind = "PRICE_IMPACT_TOO_HIGH"

	// Execution
	FailureExecutionError      FailureKind = "EXECUTION_ERROR"
	FailureAllPathsExhausted   FailureKind = "ALL_PATHS_EXHAUSTED"
	FailureAmbiguousSubmission FailureKind = "AMBIGUOUS_SUBMISSION"
)

// Category returns the taxonomy group of the kind.
func (k FailureKind) Category() Category {
	switch k {
	case FailureAmountTooSmall, FailureAmountTooLarge, FailureCooldownActive,
		FailureInsufficientBalance, FailureLedgerUnhealthy, FailureValidationError:
		return CategoryValidation
	case FailureQuoteUnavailable, FailurePriceImpactTooHigh:
		return CategoryQuote
	default:
		return CategoryExecution
	}
}

// Outcome is the closed result of one validate→quote→execute attempt.
// Implemented only by *Success and *Failure.
type Outcome interface {
	outcome()
}

// Success reports a confirmed-submitted execution.
type Success struct {
	Method      Method
	Path        string // integration path name, e.g. "vault" or "router"
	TxHandle    string
	InputAmount uint64
	MinOutput   uint64
}

// Failure reports why an attempt stopped.
type Failure struct {
	Kind    FailureKind
	Message string

	RemainingSeconds int64   // COOLDOWN_ACTIVE
	Impact           float64 // PRICE_IMPACT_TOO_HIGH
	Limit            float64 // PRICE_IMPACT_TOO_HIGH
}

func (*Success) outcome() {}
func (*Failure) outcome() {}

// Error lets a Failure travel through error-typed plumbing.
func (f *Failure) Error() string {
	if f.Message == "" {
		return string(f.Kind)
	}
	return f.Message
}

// NewFailure builds a Failure with a formatted message.
func NewFailure(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
