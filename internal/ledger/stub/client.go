// Package stub provides a scripted in-memory ledger.Client for tests and paper runs.
package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"aptos-vault-swap/internal/ledger"
)

// StatusResult is one scripted answer to TransactionStatus.
type StatusResult struct {
	Status ledger.Status
	Err    error
}

// Client implements ledger.Client from in-memory state.
type Client struct {
	mu sync.Mutex

	balances    map[string]map[string]uint64
	balanceErr  error
	healthy     bool
	healthErr   error
	sequences   map[string]uint64
	sequenceErr error
	statuses    map[string][]StatusResult
	views       map[string][]json.RawMessage
	viewErr     error

	submitFn    func(sub ledger.Submission) (string, error)
	submissions []ledger.Submission
	calls       map[string]int
}

// NewClient creates a healthy stub with no accounts.
func NewClient() *Client {
	return &Client{
		balances:  make(map[string]map[string]uint64),
		healthy:   true,
		sequences: make(map[string]uint64),
		statuses:  make(map[string][]StatusResult),
		views:     make(map[string][]json.RawMessage),
		calls:     make(map[string]int),
	}
}

// SetBalance sets the balance of coinType held by account.
func (c *Client) SetBalance(account, coinType string, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balances[account] == nil {
		c.balances[account] = make(map[string]uint64)
	}
	c.balances[account][coinType] = amount
}

// FailBalances makes AccountBalances return err.
func (c *Client) FailBalances(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balanceErr = err
}

// SetHealth scripts IsHealthy.
func (c *Client) SetHealth(healthy bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy = healthy
	c.healthErr = err
}

// SetSequence sets the next sequence number of account.
func (c *Client) SetSequence(account string, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequences[account] = seq
}

// FailSequence makes SequenceNumber return err.
func (c *Client) FailSequence(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequenceErr = err
}

// OnSubmit replaces the default submission behavior. fn runs with the stub
// unlocked, so it may call other stub setters.
func (c *Client) OnSubmit(fn func(sub ledger.Submission) (string, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitFn = fn
}

// ScriptStatus queues answers for handle. The last answer repeats.
func (c *Client) ScriptStatus(handle string, results ...StatusResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[handle] = append(c.statuses[handle], results...)
}

// SetView sets the result of a view function.
func (c *Client) SetView(function string, result ...json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[function] = result
}

// FailViews makes View return err.
func (c *Client) FailViews(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewErr = err
}

// Submissions returns every submission received so far.
func (c *Client) Submissions() []ledger.Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ledger.Submission, len(c.submissions))
	copy(out, c.submissions)
	return out
}

// Calls returns how many times op was invoked.
func (c *Client) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// AccountBalances returns the scripted balances of account.
func (c *Client) AccountBalances(_ context.Context, account string) (map[string]uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["AccountBalances"]++
	if c.balanceErr != nil {
		return nil, c.balanceErr
	}
	out := make(map[string]uint64, len(c.balances[account]))
	for k, v := range c.balances[account] {
		out[k] = v
	}
	return out, nil
}

// IsHealthy returns the scripted health.
func (c *Client) IsHealthy(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["IsHealthy"]++
	return c.healthy, c.healthErr
}

// SequenceNumber returns the scripted sequence number.
func (c *Client) SequenceNumber(_ context.Context, account string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["SequenceNumber"]++
	if c.sequenceErr != nil {
		return 0, c.sequenceErr
	}
	return c.sequences[account], nil
}

// Submit records the submission and returns a hash. By default every
// submission is accepted and stays pending.
func (c *Client) Submit(_ context.Context, sub ledger.Submission) (string, error) {
	c.mu.Lock()
	c.calls["Submit"]++
	c.submissions = append(c.submissions, sub)
	n := len(c.submissions)
	fn := c.submitFn
	c.mu.Unlock()

	if fn != nil {
		return fn(sub)
	}
	return fmt.Sprintf("0x%064x", n), nil
}

// TransactionStatus pops the next scripted answer for handle. Handles with
// no script are reported pending when submitted through this stub and
// ErrNotFound otherwise.
func (c *Client) TransactionStatus(_ context.Context, handle string) (ledger.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["TransactionStatus"]++

	queue := c.statuses[handle]
	if len(queue) == 0 {
		for i := range c.submissions {
			if fmt.Sprintf("0x%064x", i+1) == handle {
				return ledger.Status{Kind: ledger.StatusPending}, nil
			}
		}
		return ledger.Status{}, fmt.Errorf("transaction %s: %w", handle, ledger.ErrNotFound)
	}
	next := queue[0]
	if len(queue) > 1 {
		c.statuses[handle] = queue[1:]
	}
	return next.Status, next.Err
}

// View returns the scripted view result.
func (c *Client) View(_ context.Context, req ledger.ViewRequest) ([]json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["View"]++
	if c.viewErr != nil {
		return nil, c.viewErr
	}
	out, ok := c.views[req.Function]
	if !ok {
		return nil, fmt.Errorf("view %s: %w", req.Function, ledger.ErrNotFound)
	}
	return out, nil
}

var _ ledger.Client = (*Client)(nil)
