// Package metrics exposes the engine's Prometheus collectors and the
// CloudWatch heartbeat publisher. Prometheus collectors are package-level and
// registered on the default registry at init; the ops server serves them on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_cycles_total",
			Help: "Total number of evaluation cycles",
		},
		[]string{"status"}, // status: completed, failed, skipped
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldwatch_cycle_duration_seconds",
			Help:    "Wall-clock duration of a full evaluation cycle",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	CycleAlertsLoaded = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldwatch_cycle_alerts_loaded",
			Help:    "Number of active alert definitions loaded per cycle",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// Evaluation metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_evaluations_total",
			Help: "Total number of per-alert evaluations",
		},
		[]string{"outcome"}, // outcome: met, unmet, skipped, failed
	)

	TriggersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldwatch_triggers_total",
			Help: "Total number of alerts that fired after persistence and frequency checks",
		},
	)

	SuppressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_suppressions_total",
			Help: "Total number of met conditions suppressed before dispatch",
		},
		[]string{"reason"},
	)

	// Cache metrics
	WeatherCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_weather_cache_lookups_total",
			Help: "Weather cache lookups by result",
		},
		[]string{"result"}, // result: hit, stale, miss
	)

	LocationCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_location_cache_lookups_total",
			Help: "Location cache lookups by result",
		},
		[]string{"result"}, // result: hit, miss
	)

	// Upstream metrics
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_upstream_requests_total",
			Help: "Observation provider fetch attempts by status",
		},
		[]string{"status"}, // status: ok, error, throttled
	)

	UpstreamRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldwatch_upstream_request_duration_seconds",
			Help:    "Observation provider fetch latency in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// Dispatch metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_notifications_total",
			Help: "Notification dispatch attempts by channel and status",
		},
		[]string{"channel", "status"}, // status: sent, failed
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldwatch_dispatch_queue_depth",
			Help: "Number of dispatch tasks waiting for a worker",
		},
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldwatch_dispatch_duration_seconds",
			Help:    "Time taken to dispatch one notification",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)
