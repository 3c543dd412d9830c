// Package metrics registers the Prometheus instrumentation for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersProcessed counts per-order outcomes by status (sent/skipped/error).
	OrdersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_orders_processed_total",
			Help: "Orders processed by the relay pipeline, labelled by outcome status",
		},
		[]string{"status"},
	)

	// APIRequests counts Conversions API calls by HTTP status (or transport_error).
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_api_requests_total",
			Help: "Conversions API requests by response status",
		},
		[]string{"status"},
	)

	// BackfillRuns counts completed backfill runs by trigger (manual/cron).
	BackfillRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_backfill_runs_total",
			Help: "Completed backfill runs by trigger",
		},
		[]string{"trigger"},
	)

	// LockContention counts backfill invocations rejected because the lease was held.
	LockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_backfill_lock_contention_total",
			Help: "Backfill invocations rejected because another run held the lease",
		},
	)
)
