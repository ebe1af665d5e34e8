// Package metrics defines the Prometheus metrics exposed at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay Metrics
var (
	// RegistrationsTotal tracks register calls by outcome
	// (first_slot/second_slot/refreshed/room_full).
	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_registrations_total",
			Help: "Total registrations by slot outcome",
		},
		[]string{"outcome"},
	)

	// PingsTotal tracks ping calls by result (queued/unknown_sender/not_paired/no_session).
	PingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_pings_total",
			Help: "Total pings by result",
		},
		[]string{"result"},
	)

	// ChecksTotal tracks check polls by result (delivered/empty/no_session).
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_checks_total",
			Help: "Total check polls by result",
		},
		[]string{"result"},
	)

	// SessionsCurrent tracks the number of sessions in the store.
	SessionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_sessions_current",
			Help: "Current number of sessions in the store",
		},
	)

	// AuxWritesTotal tracks distance cache writes.
	AuxWritesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_aux_writes_total",
			Help: "Total auxiliary payload cache writes",
		},
	)
)

// Failsafe Dispatcher Metrics
var (
	// FailsafeScheduledTotal tracks scheduled failsafe dispatches.
	FailsafeScheduledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "failsafe_scheduled_total",
			Help: "Total failsafe dispatches scheduled",
		},
	)

	// FailsafeDispatchesTotal tracks fired failsafe dispatches by channel kind and status.
	FailsafeDispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failsafe_dispatches_total",
			Help: "Total failsafe dispatches fired by channel kind (webhook/timeline) and status (ok/error)",
		},
		[]string{"channel", "status"},
	)

	// FailsafeCancelledTotal tracks failsafes cancelled by a drain before firing.
	FailsafeCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "failsafe_cancelled_total",
			Help: "Total failsafe dispatches cancelled before firing",
		},
	)

	// OutboundBreakerState tracks the outbound circuit breaker state
	// (0=closed, 1=half-open, 2=open).
	OutboundBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbound_breaker_state",
			Help: "Outbound notification circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// Janitor Metrics
var (
	// JanitorNotificationEvictions tracks stale notifications removed by the janitor.
	JanitorNotificationEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "janitor_notification_evictions_total",
			Help: "Total stale notifications evicted by the janitor",
		},
	)

	// JanitorSessionEvictions tracks idle sessions removed by the janitor.
	JanitorSessionEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "janitor_session_evictions_total",
			Help: "Total idle sessions evicted by the janitor (session TTL policy)",
		},
	)

	// JanitorSweepDuration tracks janitor sweep latency.
	JanitorSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "janitor_sweep_duration_seconds",
			Help:    "Janitor sweep duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "go_version"},
	)
)
