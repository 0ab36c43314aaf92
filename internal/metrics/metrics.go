// Package metrics holds the Prometheus collectors for rendering.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "overlay"

// Layer outcomes recorded in LayersTotal.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
	OutcomeUnknown = "unknown"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	LayersTotal       *prometheus.CounterVec
	LayerDuration     *prometheus.HistogramVec
	CompositeDuration prometheus.Histogram
	CompositesTotal   *prometheus.CounterVec
	WorkersBusy       prometheus.Gauge
	ReducerRegions    *prometheus.CounterVec
	ReducerSamples    *prometheus.CounterVec
	ReducerFailures   *prometheus.CounterVec
}

// New registers the collectors with reg. Passing prometheus.DefaultRegisterer
// exposes them on the process-wide registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LayersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compositor",
			Name:      "layers_total",
			Help:      "Layer jobs by outcome",
		}, []string{"layer", "outcome"}),

		LayerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compositor",
			Name:      "layer_duration_seconds",
			Help:      "Time spent painting a single layer",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"layer"}),

		CompositeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compositor",
			Name:      "composite_duration_seconds",
			Help:      "Time from submission of the first layer to the finished canvas",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		CompositesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compositor",
			Name:      "composites_total",
			Help:      "Composite requests by result",
		}, []string{"result"}),

		WorkersBusy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "compositor",
			Name:      "workers_busy",
			Help:      "Layer jobs currently being painted",
		}),

		ReducerRegions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reducer",
			Name:      "regions_total",
			Help:      "Uniform regions handed to a renderer",
		}, []string{"layer"}),

		ReducerSamples: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reducer",
			Name:      "classifications_total",
			Help:      "Classify calls made while reducing regions",
		}, []string{"layer"}),

		ReducerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reducer",
			Name:      "classification_failures_total",
			Help:      "Regions left unpainted because classification failed",
		}, []string{"layer"}),
	}
}

// ObserveLayer records a finished layer job.
func (m *Metrics) ObserveLayer(layer, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.LayersTotal.WithLabelValues(layer, outcome).Inc()
	if outcome != OutcomeUnknown {
		m.LayerDuration.WithLabelValues(layer).Observe(d.Seconds())
	}
}

// ObserveComposite records a finished Compose call.
func (m *Metrics) ObserveComposite(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CompositesTotal.WithLabelValues(result).Inc()
	m.CompositeDuration.Observe(d.Seconds())
}

// ObserveReduce adds the counts from one reducer run.
func (m *Metrics) ObserveReduce(layer string, regions, classifications, failed int) {
	if m == nil {
		return
	}
	m.ReducerRegions.WithLabelValues(layer).Add(float64(regions))
	m.ReducerSamples.WithLabelValues(layer).Add(float64(classifications))
	if failed > 0 {
		m.ReducerFailures.WithLabelValues(layer).Add(float64(failed))
	}
}

// WorkerStarted and WorkerDone track the busy-worker gauge.
func (m *Metrics) WorkerStarted() {
	if m != nil {
		m.WorkersBusy.Inc()
	}
}

func (m *Metrics) WorkerDone() {
	if m != nil {
		m.WorkersBusy.Dec()
	}
}
