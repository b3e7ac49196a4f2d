// Package ledger is the client for the ledger node REST API consumed by the
// swap engine: balances, health, sequence numbers, submission, status and views.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when an account or transaction is unknown to the node.
	ErrNotFound = errors.New("not found")

	// ErrRejected is returned when the node refused a submission outright.
	// A rejected transaction never entered the mempool.
	ErrRejected = errors.New("submission rejected")

	// ErrReverted is returned when a transaction executed and aborted.
	ErrReverted = errors.New("transaction reverted")

	// ErrNoSigner is returned by Submit when the client has no signing key.
	ErrNoSigner = errors.New("no signer configured")
)

// SubmitError is a submission failure for which the node already returned a
// transaction hash.
type SubmitError struct {
	Handle string
	Err    error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submission %s: %v", e.Handle, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// HandleOf returns the transaction hash carried by err, if any.
func HandleOf(err error) string {
	var se *SubmitError
	if errors.As(err, &se) {
		return se.Handle
	}
	return ""
}

// Client defines the ledger operations the swap engine consumes.
type Client interface {
	// AccountBalances returns coin type -> balance for every CoinStore the account holds.
	AccountBalances(ctx context.Context, account string) (map[string]uint64, error)

	// IsHealthy reports whether the node is reachable and its ledger is fresh.
	IsHealthy(ctx context.Context) (bool, error)

	// SequenceNumber returns the next sequence number of the account.
	SequenceNumber(ctx context.Context, account string) (uint64, error)

	// Submit signs and submits an entry function call and returns its hash.
	Submit(ctx context.Context, sub Submission) (string, error)

	// TransactionStatus returns the current state of a submitted transaction.
	TransactionStatus(ctx context.Context, handle string) (Status, error)

	// View executes a read-only view function.
	View(ctx context.Context, req ViewRequest) ([]json.RawMessage, error)
}

// StatusKind is the lifecycle state of a submitted transaction.
type StatusKind int

const (
	StatusPending StatusKind = iota
	StatusConfirmed
	StatusReverted
)

func (k StatusKind) String() string {
	switch k {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusReverted:
		return "reverted"
	default:
		return fmt.Sprintf("StatusKind(%d)", int(k))
	}
}

// Status is the node's view of a transaction.
type Status struct {
	Kind      StatusKind
	GasUsed   uint64
	Timestamp time.Time
	Detail    string // vm_status for executed transactions
}

// Terminal reports whether the transaction has executed.
func (s Status) Terminal() bool {
	return s.Kind == StatusConfirmed || s.Kind == StatusReverted
}

// Payload is an entry function call.
type Payload struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

// Submission is one transaction to sign and submit.
type Submission struct {
	Path           string // execution path label, used for logs and metrics
	Payload        Payload
	SequenceNumber uint64
}

// ViewRequest is a view function call.
type ViewRequest struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}
