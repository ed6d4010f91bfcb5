// Package metrics exposes prometheus instruments for the verification
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Registry page fetch latency by outcome (ok, not_found, unavailable, internal)
	FetchLatency *prometheus.HistogramVec

	// Verification results by certification status
	Results *prometheus.CounterVec

	// Wall time of a whole batch, from processing to terminal state
	BatchDuration prometheus.Histogram

	// Sessions reaching a terminal state, by status
	Sessions *prometheus.CounterVec

	// Batches currently running
	ActiveBatches prometheus.Gauge

	// Panics caught by the HTTP recovery middleware or the batch runner
	PanicsRecovered *prometheus.CounterVec
}

// New registers all instruments with reg. Passing prometheus.DefaultRegisterer
// exposes them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "supplyverify_registry_fetch_duration_seconds",
			Help:    "Duration of registry record fetches by outcome",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 45},
		}, []string{"outcome"}),

		Results: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "supplyverify_results_total",
			Help: "Verification results by certification status",
		}, []string{"certification_status"}),

		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "supplyverify_batch_duration_seconds",
			Help:    "Duration of verification batches",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),

		Sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "supplyverify_sessions_total",
			Help: "Verification sessions reaching a terminal state",
		}, []string{"status"}),

		ActiveBatches: factory.NewGauge(prometheus.GaugeOpts{
			Name: "supplyverify_active_batches",
			Help: "Verification batches currently running",
		}),

		PanicsRecovered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "supplyverify_panics_recovered_total",
			Help: "Panics recovered, by component",
		}, []string{"component"}),
	}
}

func (m *Metrics) ObserveFetch(outcome string, d time.Duration) {
	if m != nil {
		m.FetchLatency.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementResult(status string) {
	if m != nil {
		m.Results.WithLabelValues(status).Inc()
	}
}

// BatchStarted marks a batch as running and returns a func that records its
// completion with the terminal session status.
func (m *Metrics) BatchStarted() func(status string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.ActiveBatches.Inc()
	return func(status string) {
		m.ActiveBatches.Dec()
		m.BatchDuration.Observe(time.Since(start).Seconds())
		m.Sessions.WithLabelValues(status).Inc()
	}
}

// IncrementSession counts a session that ended without running a batch.
func (m *Metrics) IncrementSession(status string) {
	if m != nil {
		m.Sessions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncrementPanic(component string) {
	if m != nil {
		m.PanicsRecovered.WithLabelValues(component).Inc()
	}
}
