// Package metrics exposes Prometheus metrics for the model lifecycle and the
// prediction path. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tirewear"

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultMissing = "missing"
	ResultCorrupt = "corrupt"
	ResultInvalid = "invalid"
)

// Metrics holds the collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	trainings          *prometheus.CounterVec
	trainingDuration   prometheus.Histogram
	restores           *prometheus.CounterVec
	predictions        *prometheus.CounterVec
	predictionDuration prometheus.Histogram
	modelReady         prometheus.Gauge
}

// New creates the collectors and registers them together with the Go and
// process collectors
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.trainings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trainings_total",
			Help:      "Total number of model set training cycles by result",
		},
		[]string{"result"},
	)

	m.trainingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Wall time of a training cycle including dataset load and persistence",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	m.restores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Total number of attempts to restore saved models by result",
		},
		[]string{"result"},
	)

	m.predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total number of prediction requests by result",
		},
		[]string{"result"},
	)

	m.predictionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time to evaluate the whole model set for one input",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
	)

	m.modelReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_ready",
			Help:      "1 when a model set is loaded and predictions are served",
		},
	)

	m.registry.MustRegister(
		m.trainings,
		m.trainingDuration,
		m.restores,
		m.predictions,
		m.predictionDuration,
		m.modelReady,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTraining records the outcome of a training cycle
func (m *Metrics) ObserveTraining(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.trainings.WithLabelValues(result).Inc()
	m.trainingDuration.Observe(d.Seconds())
}

// ObserveRestore records the outcome of a restore attempt
func (m *Metrics) ObserveRestore(result string) {
	if m == nil {
		return
	}
	m.restores.WithLabelValues(result).Inc()
}

// ObservePrediction records the outcome of a prediction
func (m *Metrics) ObservePrediction(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(result).Inc()
	m.predictionDuration.Observe(d.Seconds())
}

// SetModelReady flips the readiness gauge
func (m *Metrics) SetModelReady(ready bool) {
	if m == nil {
		return
	}
	if ready {
		m.modelReady.Set(1)
	} else {
		m.modelReady.Set(0)
	}
}
