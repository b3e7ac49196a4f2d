// Package security holds the rate-limiting counters that gate repeated swaps.
//
// A State is owned by exactly one orchestrator. The validator reads it and the
// executor writes it; the check and the update are not one transaction, so two
// swaps run concurrently on the same State could both pass the cooldown check.
// Callers serialize swaps instead of relying on State for that.
package security

import (
	"sync"
	"time"
)

// State tracks the last operation, operation count and cumulative volume.
// The zero lastOperation means no operation has been recorded yet.
type State struct {
	mu       sync.Mutex
	cooldown time.Duration

	lastOperation  time.Time
	operationCount uint64
	totalVolume    uint64
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	LastOperationTime time.Time `json:"-"`
	LastSwapUnix      int64     `json:"last_swap_time"`
	OperationCount    uint64    `json:"swap_count"`
	TotalVolume       uint64    `json:"total_volume"`
	CooldownSeconds   int64     `json:"cooldown_period"`
}

// NewState creates an empty State with the given cooldown period.
func NewState(cooldown time.Duration) *State {
	return &State{cooldown: cooldown}
}

// Observe returns how long until a new operation is eligible at now.
// Zero means eligible.
func (s *State) Observe(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastOperation.IsZero() {
		return 0
	}
	elapsed := now.Sub(s.lastOperation)
	if elapsed >= s.cooldown {
		return 0
	}
	return s.cooldown - elapsed
}

// Record notes one successful execution of amount at now.
// Call exactly once per confirmed-submitted execution.
func (s *State) Record(amount uint64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastOperation = now
	s.operationCount++
	s.totalVolume += amount
}

// Snapshot returns a copy of the counters.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		LastOperationTime: s.lastOperation,
		OperationCount:    s.operationCount,
		TotalVolume:       s.totalVolume,
		CooldownSeconds:   int64(s.cooldown / time.Second),
	}
	if !s.lastOperation.IsZero() {
		snap.LastSwapUnix = s.lastOperation.Unix()
	}
	return snap
}

// WholeSeconds rounds a remaining wait up to whole seconds.
func WholeSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
