// Package monitor polls the ledger for the terminal status of a submitted swap.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"aptos-vault-swap/internal/clock"
	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/ledger"
	"aptos-vault-swap/internal/observability"
)

// Defaults for the polling loop.
const (
	DefaultTimeout      = 300 * time.Second
	DefaultPollInterval = 2 * time.Second
)

// Report is the result of watching one handle.
type Report struct {
	Handle  string
	Outcome domain.MonitorOutcome
	Polls   int
	Elapsed time.Duration
}

// Monitor watches submitted transactions. It never touches the security state.
type Monitor struct {
	client   ledger.Client
	clock    clock.Clock
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// New creates a monitor. Zero durations fall back to the defaults.
func New(client ledger.Client, clk clock.Clock, timeout, interval time.Duration, logger *slog.Logger) *Monitor {
	if clk == nil {
		clk = clock.Real{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		client:   client,
		clock:    clk,
		timeout:  timeout,
		interval: interval,
		logger:   logger.With("component", "monitor"),
	}
}

// Watch polls handle until it is confirmed or reverted, or until the timeout
// budget cannot fit another interval. A transaction the node does not know
// yet counts as pending. When the last poll failed the result is a
// MonitorError, otherwise TimedOut.
func (m *Monitor) Watch(ctx context.Context, handle string) Report {
	start := m.clock.Now()
	deadline := start.Add(m.timeout)
	report := Report{Handle: handle}

	var lastErr error
	for {
		report.Polls++
		st, err := m.client.TransactionStatus(ctx, handle)
		switch {
		case err == nil && st.Kind == ledger.StatusConfirmed:
			report.Outcome = domain.Confirmed{GasUsed: st.GasUsed, Timestamp: st.Timestamp}
			return m.finish(report, start)
		case err == nil && st.Kind == ledger.StatusReverted:
			detail := st.Detail
			if detail == "" {
				detail = "Unknown error"
			}
			report.Outcome = domain.Reverted{Detail: detail}
			return m.finish(report, start)
		case err != nil && !errors.Is(err, ledger.ErrNotFound):
			lastErr = err
			m.logger.Debug("status poll failed", "tx_handle", handle, "poll", report.Polls, "error", err)
		default:
			lastErr = nil
			m.logger.Debug("transaction not yet confirmed", "tx_handle", handle, "poll", report.Polls)
		}

		if !m.clock.Now().Add(m.interval).Before(deadline) {
			break
		}
		if err := m.clock.Sleep(ctx, m.interval); err != nil {
			lastErr = err
			break
		}
	}

	if lastErr != nil {
		report.Outcome = domain.MonitorError{Detail: lastErr.Error()}
	} else {
		report.Outcome = domain.TimedOut{}
	}
	return m.finish(report, start)
}

func (m *Monitor) finish(r Report, start time.Time) Report {
	r.Elapsed = m.clock.Now().Sub(start)
	status := r.Outcome.Status()
	observability.RecordMonitorOutcome(status, r.Polls)

	attrs := []any{"tx_handle", r.Handle, "status", status, "polls", r.Polls, "elapsed", r.Elapsed}
	switch o := r.Outcome.(type) {
	case domain.Confirmed:
		m.logger.Info("transaction successful", append(attrs, "gas_used", o.GasUsed)...)
	case domain.Reverted:
		m.logger.Error("transaction failed", append(attrs, "error", o.Detail)...)
	case domain.MonitorError:
		m.logger.Error("monitor error", append(attrs, "error", o.Detail)...)
	default:
		m.logger.Warn("transaction monitoring timed out", attrs...)
	}
	return r
}
