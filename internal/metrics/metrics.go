// Package metrics provides Prometheus instrumentation for the risk engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PositionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_positions_opened_total",
		Help: "Total positions opened",
	})

	PositionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_positions_closed_total",
		Help: "Total positions closed, partitioned by close reason",
	}, []string{"reason"})

	AccountsLiquidated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_accounts_liquidated_total",
		Help: "Accounts fully liquidated by the margin sweep or live path",
	})

	QueueTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_queue_triggers_total",
		Help: "Queued-order and stop triggers fired, by kind",
	}, []string{"kind"})

	ContestsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_contests_finalized_total",
		Help: "Contests finalized",
	})

	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arena_sweep_duration_seconds",
		Help:    "Scheduled sweep duration by job",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	SweepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_sweep_item_failures_total",
		Help: "Per-item failures inside scheduled sweeps, by job",
	}, []string{"job"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
