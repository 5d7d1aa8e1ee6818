// Package metrics provides Prometheus metrics for the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsNamespace is the namespace for all metrics.
const MetricsNamespace = "folivora"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Changelog sync
	SyncRunsTotal    *prometheus.CounterVec
	SyncEventsTotal  *prometheus.CounterVec
	SyncDurationSecs prometheus.Histogram

	// Resync
	ResyncRunsTotal    *prometheus.CounterVec
	ResyncDurationSecs prometheus.Histogram

	// Task queue
	TasksEnqueuedTotal  *prometheus.CounterVec
	TasksProcessedTotal *prometheus.CounterVec
	QueueDepth          prometheus.Gauge

	// Notifications
	DigestsSentTotal prometheus.Counter
}

// New creates and registers all metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SyncRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: "changelog",
				Name:      "sync_runs_total",
				Help:      "Total number of changelog sync runs",
			},
			[]string{"status"},
		),
		SyncEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: "changelog",
				Name:      "events_total",
				Help:      "Changelog events processed, by outcome",
			},
			[]string{"result"},
		),
		SyncDurationSecs: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: MetricsNamespace,
				Subsystem: "changelog",
				Name:      "sync_duration_seconds",
				Help:      "Duration of changelog sync runs",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		ResyncRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: "resync",
				Name:      "runs_total",
				Help:      "Total number of project resync runs",
			},
			[]string{"status"},
		),
		ResyncDurationSecs: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: MetricsNamespace,
				Subsystem: "resync",
				Name:      "duration_seconds",
				Help:      "Duration of project resync runs",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		TasksEnqueuedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: "queue",
				Name:      "tasks_enqueued_total",
				Help:      "Total number of tasks enqueued",
			},
			[]string{"kind"},
		),
		TasksProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: "queue",
				Name:      "tasks_processed_total",
				Help:      "Total number of tasks processed",
			},
			[]string{"kind", "status"},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: MetricsNamespace,
				Subsystem: "queue",
				Name:      "depth",
				Help:      "Current task stream length",
			},
		),
		DigestsSentTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: "notify",
				Name:      "digests_sent_total",
				Help:      "Total number of digest mails sent",
			},
		),
	}
}
