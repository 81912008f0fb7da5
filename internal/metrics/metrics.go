// Package metrics implements Prometheus metrics for the runner.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the runner's own Prometheus registry rather than the
// global DefaultRegisterer, so internal/metrics.Server serves exactly
// the gauges/counters declared here and nothing a linked-in dependency
// happens to have registered globally.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// ComponentStatus tracks each component's run/stop status.
	ComponentStatus = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "runner_component_status",
			Help: "Current status of a hosted component (0=uninitialized, 1=stopped, 2=running)",
		},
		[]string{"component"},
	)

	// OverrunTotal counts control-loop periods whose services ran past the
	// period; the control loop records them under component="runner".
	OverrunTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runner_overrun_total",
			Help: "Total number of control-loop period overruns",
		},
		[]string{"component"},
	)

	// FrameIndex tracks the schedule's current major frame index.
	FrameIndex = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "runner_frame_index",
			Help: "Current major frame index within the active schedule",
		},
	)

	// PeriodDurationSeconds measures each control-loop period's actual
	// wall-clock duration.
	PeriodDurationSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "runner_period_duration_seconds",
			Help:    "Wall-clock duration of one control-loop period",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 100Âµs to ~3s
		},
	)

	// MessagesRoutedTotal counts messages successfully routed by the
	// communication service, by source kind.
	MessagesRoutedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runner_messages_routed_total",
			Help: "Total number of messages routed by the communication service",
		},
		[]string{"source_kind"},
	)

	// MessagesDroppedTotal counts messages dropped for lack of a route or
	// a decoding failure.
	MessagesDroppedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runner_messages_dropped_total",
			Help: "Total number of messages dropped (no route, decode error)",
		},
		[]string{"reason"},
	)

	// StateSyncStatus tracks the status of each configured state sync
	// (0=created, 1=started, 2=synced).
	StateSyncStatus = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "runner_state_sync_status",
			Help: "Lifecycle status of a configured state sync (0=created, 1=started, 2=synced)",
		},
		[]string{"state_sync"},
	)

	// WorkerBusy reports whether the background worker is mid-batch.
	WorkerBusy = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "runner_worker_busy",
			Help: "1 if the background worker is currently processing a batch, else 0",
		},
	)
)

// ComponentStatusValue is the numeric encoding used by ComponentStatus.
const (
	ComponentStatusUninitialized = 0
	ComponentStatusStopped       = 1
	ComponentStatusRunning       = 2
)
