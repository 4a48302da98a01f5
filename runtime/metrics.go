package runtime

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	views       *prometheus.CounterVec
	submissions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		views: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wizflow",
				Subsystem: "step",
				Name:      "views_total",
				Help:      "Total number of step views.",
			},
			[]string{"journey", "step"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wizflow",
				Subsystem: "step",
				Name:      "submissions_total",
				Help:      "Total number of step submissions by outcome.",
			},
			[]string{"journey", "step", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "wizflow",
				Subsystem: "step",
				Name:      "duration_seconds",
				Help:      "Duration of engine operations.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
			[]string{"operation"},
		),
	}

	m.registry.MustRegister(m.views, m.submissions, m.duration)
	return m
}

const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

func (m *Metrics) recordView(journey, step string) {
	if m == nil {
		return
	}
	m.views.WithLabelValues(journey, step).Inc()
}

func (m *Metrics) recordSubmission(journey, step, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(journey, step, outcome).Inc()
}

func (m *Metrics) observe(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
