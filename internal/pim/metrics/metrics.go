// Package metrics exports Prometheus counters and gauges for the PIM
// install/uninstall pipeline, using the promauto registration idiom used
// for the surrounding backend's system metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pim_tasks_total",
			Help: "Total install/uninstall tasks started, by action",
		},
		[]string{"action"},
	)

	tasksOutcome = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pim_tasks_outcome_total",
			Help: "Terminal install/uninstall task outcomes, by action and status",
		},
		[]string{"action", "status"},
	)

	taskDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pim_task_duration_seconds",
			Help:    "Install/uninstall task wall-clock duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	registryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pim_registry_fetches_total",
			Help: "Catalogue fetch attempts, by outcome",
		},
		[]string{"outcome"},
	)

	registryBackoffActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pim_registry_backoff_active",
			Help: "Number of catalogue URLs currently in failure backoff",
		},
	)

	downloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pim_download_bytes_total",
			Help: "Total bytes streamed by the downloader across all releases",
		},
	)

	pendingDeletions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pim_pending_deletions",
			Help: "Files currently queued in PendingDeletion, awaiting a retry",
		},
	)
)

// TaskStarted records that a task of the given action kind has begun.
func TaskStarted(action string) {
	tasksTotal.WithLabelValues(action).Inc()
}

// TaskFinished records a terminal outcome and its wall-clock duration.
func TaskFinished(action, status string, durationSeconds float64) {
	tasksOutcome.WithLabelValues(action, status).Inc()
	taskDurationSeconds.WithLabelValues(action).Observe(durationSeconds)
}

// RegistryFetch records one catalogue fetch attempt's outcome: "success",
// "failure", or "backoff" (no network I/O attempted).
func RegistryFetch(outcome string) {
	registryFetches.WithLabelValues(outcome).Inc()
}

// SetRegistryBackoffActive reports how many catalogue URLs are presently
// in backoff.
func SetRegistryBackoffActive(n int) {
	registryBackoffActive.Set(float64(n))
}

// AddDownloadBytes accumulates bytes streamed by a completed download.
func AddDownloadBytes(n int64) {
	downloadBytesTotal.Add(float64(n))
}

// SetPendingDeletions reports the current size of the PendingDeletion set.
func SetPendingDeletions(n int) {
	pendingDeletions.Set(float64(n))
}

// Handler returns the HTTP handler serving metrics in Prometheus exposition
// format. No route in this module mounts it; cmd/pimserver serves only
// the routes of handlers.SetupRouter.
func Handler() http.Handler {
	return promhttp.Handler()
}
