package domain

import "time"

// Monitor status labels used on the result surface.
const (
	MonitorStatusSuccess = "success"
	MonitorStatusFailed  = "failed"
	MonitorStatusTimeout = "timeout"
	MonitorStatusError   = "error"
)

// MonitorOutcome is the closed result of watching one submitted handle.
// Implemented by Confirmed, Reverted, TimedOut and MonitorError.
type MonitorOutcome interface {
	Status() string
}

// Confirmed means the ledger executed the transaction successfully.
type Confirmed struct {
	GasUsed   uint64
	Timestamp time.Time
}

// Reverted means the ledger executed the transaction and it aborted.
type Reverted struct {
	Detail string
}

// TimedOut means no terminal status was observed within the budget.
type TimedOut struct{}

// MonitorError means the last poll before the budget ran out failed.
type MonitorError struct {
	Detail string
}

func (Confirmed) Status() string    { return MonitorStatusSuccess }
func (Reverted) Status() string     { return MonitorStatusFailed }
func (TimedOut) Status() string     { return MonitorStatusTimeout }
func (MonitorError) Status() string { return MonitorStatusError }
