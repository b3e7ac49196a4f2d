package domain

import "time"

// SwapRequest is a single proposed exchange of the source asset.
// Amount is expressed in the source asset's smallest unit.
type SwapRequest struct {
	Amount      uint64
	RequestedAt time.Time
}

// Quote is the pricing collaborator's answer for one request.
// It is never cached across requests.
type Quote struct {
	ExpectedOutput uint64  // target asset smallest unit
	PriceImpact    float64 // fraction, >= 0
	MinOutput      uint64  // floor(expected * (1 - max_slippage))
}

// Order is what an execution path submits to the ledger.
type Order struct {
	Amount         uint64
	MinOutput      uint64
	Deadline       time.Time // absolute; only the direct path forwards it
	SequenceNumber uint64    // pinned for every path of one request
}
