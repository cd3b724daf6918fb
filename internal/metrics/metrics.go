// Package metrics exposes prometheus instrumentation for imports, exports,
// notifications and HTTP traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grc"

var (
	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Imported rows broken down by object type and action.",
	}, []string{"object_type", "action"})

	importBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "blocks_total",
		Help:      "Import blocks broken down by object type and outcome.",
	}, []string{"object_type", "outcome"})

	importDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "duration_seconds",
		Help:      "Time to import one file.",
		Buckets: []float64{
			0.01, 0.05, 0.1, 0.25,
			0.5, 1, 2.5, 5,
			10, 30, 60,
		},
	}, []string{"dry_run"})

	exportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "export",
		Name:      "rows_total",
		Help:      "Exported rows by object type.",
	}, []string{"object_type"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notification",
		Name:      "total",
		Help:      "Notifications queued or sent, by kind and result.",
	}, []string{"kind", "result"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern and status class.",
	}, []string{"route", "status"})

	importSlots = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "active",
		Help:      "Imports currently holding a concurrency slot.",
	})
)

// ObserveRow counts one imported row.
func ObserveRow(objectType, action string) {
	importRows.WithLabelValues(objectType, action).Inc()
}

// ObserveBlock counts one block. outcome is committed, dry_run, rejected or failed.
func ObserveBlock(objectType, outcome string) {
	importBlocks.WithLabelValues(objectType, outcome).Inc()
}

// ObserveImport records the duration of one file import.
func ObserveImport(dryRun bool, d time.Duration) {
	label := "false"
	if dryRun {
		label = "true"
	}
	importDuration.WithLabelValues(label).Observe(d.Seconds())
}

// ObserveExport counts exported rows.
func ObserveExport(objectType string, rows int) {
	exportRows.WithLabelValues(objectType).Add(float64(rows))
}

// ObserveNotification counts a notification. A nil err counts as "ok".
func ObserveNotification(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	notifications.WithLabelValues(kind, result).Inc()
}

// ObserveRequest counts an HTTP response.
func ObserveRequest(route string, status int) {
	httpRequests.WithLabelValues(route, statusClass(status)).Inc()
}

// SetActiveImports reports the number of imports holding a slot.
func SetActiveImports(n int) {
	importSlots.Set(float64(n))
}

// Handler serves the default registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
