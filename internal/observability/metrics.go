// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Attempt metrics
	AttemptsTotal     *prometheus.CounterVec
	AttemptDuration   prometheus.Histogram
	ValidationFailure *prometheus.CounterVec
	QuoteFailures     *prometheus.CounterVec
	PathSubmissions   *prometheus.CounterVec
	SwapRunsTotal     *prometheus.CounterVec

	// Monitor metrics
	MonitorOutcomes *prometheus.CounterVec
	MonitorPolls    prometheus.Histogram

	// Security state
	OperationCount    prometheus.Gauge
	TotalVolume       prometheus.Gauge
	LastOperationTime prometheus.Gauge

	// Latency metrics
	LedgerCallLatency *prometheus.HistogramVec
	LedgerCallErrors  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Event push
	EventSubscribers prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "vault_swap"
	}

	return &Metrics{
		AttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "attempts_total",
			Help:      "Total number of validate-quote-execute attempts by result",
		}, []string{"result"}),
		AttemptDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of a single attempt",
			Buckets:   prometheus.DefBuckets,
		}),
		ValidationFailure: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "rejections_total",
			Help:      "Total number of requests rejected by the validator by reason",
		}, []string{"reason"}),
		QuoteFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "rejections_total",
			Help:      "Total number of requests rejected by the quote engine by reason",
		}, []string{"reason"}),
		PathSubmissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "path_submissions_total",
			Help:      "Total number of submissions per execution path and result",
		}, []string{"path", "result"}),
		SwapRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "runs_total",
			Help:      "Total number of retried swap runs by final result",
		}, []string{"result"}),

		MonitorOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "outcomes_total",
			Help:      "Total number of monitor outcomes by status",
		}, []string{"status"}),
		MonitorPolls: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "polls",
			Help:      "Number of status polls per monitored transaction",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 150},
		}),

		OperationCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "operation_count",
			Help:      "Number of successful swaps recorded by the security state",
		}),
		TotalVolume: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "total_volume",
			Help:      "Cumulative swapped input amount in smallest units",
		}),
		LastOperationTime: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "last_operation_timestamp_seconds",
			Help:      "Unix timestamp of the last recorded swap",
		}),

		LedgerCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "call_latency_seconds",
			Help:      "Ledger REST call latency by operation",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		LedgerCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "call_errors_total",
			Help:      "Total number of failed ledger REST calls by operation",
		}, []string{"operation"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		EventSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Number of connected websocket subscribers",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordAttempt records the result of one attempt ("success" or a failure kind).
func RecordAttempt(result string, seconds float64) {
	DefaultMetrics.AttemptsTotal.WithLabelValues(result).Inc()
	DefaultMetrics.AttemptDuration.Observe(seconds)
}

// RecordValidationRejection increments the validator rejection counter.
func RecordValidationRejection(reason string) {
	DefaultMetrics.ValidationFailure.WithLabelValues(reason).Inc()
}

// RecordQuoteRejection increments the quote rejection counter.
func RecordQuoteRejection(reason string) {
	DefaultMetrics.QuoteFailures.WithLabelValues(reason).Inc()
}

// RecordPathSubmission records one submission through an execution path.
func RecordPathSubmission(path string, err error) {
	result := "submitted"
	if err != nil {
		result = "failed"
	}
	DefaultMetrics.PathSubmissions.WithLabelValues(path, result).Inc()
}

// RecordRun records the final result of a retried swap run.
func RecordRun(result string) {
	DefaultMetrics.SwapRunsTotal.WithLabelValues(result).Inc()
}

// RecordMonitorOutcome records a monitor outcome and the polls it took.
func RecordMonitorOutcome(status string, polls int) {
	DefaultMetrics.MonitorOutcomes.WithLabelValues(status).Inc()
	DefaultMetrics.MonitorPolls.Observe(float64(polls))
}

// UpdateSecurityState mirrors the security counters into gauges.
func UpdateSecurityState(count, volume uint64, lastUnix int64) {
	DefaultMetrics.OperationCount.Set(float64(count))
	DefaultMetrics.TotalVolume.Set(float64(volume))
	DefaultMetrics.LastOperationTime.Set(float64(lastUnix))
}

// RecordLedgerLatency records ledger call latency.
func RecordLedgerLatency(operation string, seconds float64, err error) {
	DefaultMetrics.LedgerCallLatency.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.LedgerCallErrors.WithLabelValues(operation).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// SetEventSubscribers updates the websocket subscriber gauge.
func SetEventSubscribers(n int) {
	DefaultMetrics.EventSubscribers.Set(float64(n))
}
