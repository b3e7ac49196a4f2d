package domain

// AttemptRecord is one journal row per validate→quote→execute attempt.
// Corresponds to swap_attempts table in PostgreSQL.
type AttemptRecord struct {
	AttemptID   string // uuid
	RunID       string // groups the attempts of one retry-controlled run
	Number      int    // 1-based attempt number within the run
	Account     string // ledger account address
	Amount      uint64 // source asset smallest unit
	Success     bool
	Method      string // "primary" | "secondary" | ""
	Path        string // "vault" | "router" | ""
	TxHandle    string
	MinOutput   uint64
	Expected    uint64
	Impact      float64
	FailureKind string
	Message     string
	StartedAt   int64 // Unix ms
	FinishedAt  int64 // Unix ms
}

// OutcomeRecord is one analytics row per monitored handle.
// Corresponds to monitor_outcomes table in ClickHouse.
type OutcomeRecord struct {
	TxHandle   string
	Account    string
	Status     string // success | failed | timeout | error
	GasUsed    uint64
	Detail     string
	Polls      int
	LatencyMs  int64 // handle given to the monitor → terminal status or budget exhausted
	ObservedAt int64 // Unix ms
}
