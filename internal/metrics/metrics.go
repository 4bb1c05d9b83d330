// Package metrics exposes Prometheus instrumentation for the
// reconciliation path.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remoteCallsTotal *prometheus.CounterVec
	reconcileTotal   *prometheus.CounterVec
	reconcileSeconds *prometheus.HistogramVec

	// Registration guard
	metricsOnce       sync.Once
	metricsRegistered bool
)

// Init registers all Prometheus metrics. Safe to call more than once;
// only the first call registers.
func Init() {
	metricsOnce.Do(func() {
		remoteCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretsync_remote_calls_total",
				Help: "Total number of secret store API calls issued",
			},
			[]string{"operation", "status"},
		)

		reconcileTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretsync_reconcile_total",
				Help: "Total number of reconciliation invocations",
			},
			[]string{"kind", "status"},
		)

		reconcileSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "secretsync_reconcile_duration_seconds",
				Help:    "Duration of reconciliation invocations in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"kind"},
		)

		metricsRegistered = true
	})
}

// RecordRemoteCall counts one secret store call by operation and
// outcome.
func RecordRemoteCall(operation string, err error) {
	if !metricsRegistered {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	remoteCallsTotal.WithLabelValues(operation, status).Inc()
}

// RecordReconcile counts one finished reconciliation and observes its
// duration.
func RecordReconcile(kind string, start time.Time, err error) {
	if !metricsRegistered {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	reconcileTotal.WithLabelValues(kind, status).Inc()
	reconcileSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
