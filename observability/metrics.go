// Package observability provides Prometheus metrics for storage clients.
package observability

import "github.com/prometheus/client_golang/prometheus"

// StoreBuckets defines histogram buckets suited for single-record storage
// calls, ranging from 1ms to 5s.
var StoreBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

var (
	// OperationsTotal counts client calls by backend, operation, kind and outcome.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_operations_total",
			Help: "Storage operations",
		},
		[]string{"backend", "op", "kind", "status"},
	)

	// OperationDuration records client call latency in seconds.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_operation_duration_seconds",
			Help:    "Storage operation duration",
			Buckets: StoreBuckets,
		},
		[]string{"backend", "op"},
	)

	// QueryResultsTotal counts entities returned by RunQuery.
	QueryResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_query_results_total",
			Help: "Entities returned by queries",
		},
		[]string{"backend", "kind"},
	)

	// ChangeEventsTotal counts change-stream records by kind and event name.
	ChangeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_change_events_total",
			Help: "Change stream events",
		},
		[]string{"kind", "event", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		OperationsTotal,
		OperationDuration,
		QueryResultsTotal,
		ChangeEventsTotal,
	)
}
