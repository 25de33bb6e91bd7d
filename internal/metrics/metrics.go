// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Fetch attempts, retries, and terminal failures against the upstream API
//   - Ingestion cycle duration and per-cycle item outcomes
//   - Reconciliation lifecycle transitions
//   - Price-point writer batch sizes and flush latencies
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FetchAttempts counts every request admitted to the network, retries
	// included.
	FetchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wfm_fetch_attempts_total",
		Help: "Upstream API request attempts, including retries",
	})

	// FetchRetries counts retried attempts after a transient failure.
	FetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wfm_fetch_retries_total",
		Help: "Upstream API attempts that were retries of a failed request",
	})

	// FetchFailures counts requests that failed terminally, by kind.
	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wfm_fetch_failures_total",
		Help: "Upstream API requests that failed after exhausting recovery",
	}, []string{"kind"})

	// CycleDuration observes wall time of full ingestion cycles.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wfm_ingest_cycle_seconds",
		Help:    "Duration of ingestion cycles in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	// CycleItems counts per-item outcomes across cycles.
	CycleItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wfm_ingest_items_total",
		Help: "Items processed per ingestion cycle by outcome",
	}, []string{"outcome"})

	// Transitions counts order lifecycle transitions from reconciliation.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wfm_reconcile_transitions_total",
		Help: "Order lifecycle transitions produced by reconciliation",
	}, []string{"transition"})

	// InvariantViolations counts observations that contradicted stored state.
	InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wfm_reconcile_invariant_violations_total",
		Help: "Snapshot observations that contradicted stored order state",
	})

	// WriterBatchSize observes price-point batch sizes at flush time.
	WriterBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wfm_writer_batch_size",
		Help:    "Price points per writer flush",
		Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
	})

	// WriterFlushSeconds observes flush latency.
	WriterFlushSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wfm_writer_flush_seconds",
		Help:    "Duration of writer flushes in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
