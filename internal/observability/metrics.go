// Package observability exposes dispatch metrics for Prometheus.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cronhook/pkg/cronjob"
)

const namespace = "cronhook"

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics is an engine observer backed by a private registry, so several
// engines (or tests) never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	started  *prometheus.CounterVec
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

type Option func(*Metrics)

// WithRuntimeCollectors adds Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(m *Metrics) {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
}

func NewMetrics(opts ...Option) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_started_total",
			Help:      "Invocations that passed authentication and lookup.",
		}, []string{"job"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_finished_total",
			Help:      "Finished invocations by outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Handler duration by outcome.",
			Buckets:   []float64{.05, .1, .5, 1, 5, 15, 60, 300, 900},
		}, []string{"job", "outcome"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_in_flight",
			Help:      "Invocations currently running.",
		}, []string{"job"}),
	}
	m.registry.MustRegister(m.started, m.finished, m.duration, m.inFlight)
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OnJobStart(_ context.Context, jc cronjob.JobContext) error {
	m.started.WithLabelValues(jc.JobName).Inc()
	m.inFlight.WithLabelValues(jc.JobName).Inc()
	return nil
}

func (m *Metrics) OnJobComplete(_ context.Context, jc cronjob.JobContext) error {
	m.finish(jc, OutcomeSuccess)
	return nil
}

func (m *Metrics) OnJobError(_ context.Context, jc cronjob.JobContext) error {
	m.finish(jc, OutcomeError)
	return nil
}

func (m *Metrics) finish(jc cronjob.JobContext, outcome string) {
	m.inFlight.WithLabelValues(jc.JobName).Dec()
	m.finished.WithLabelValues(jc.JobName, outcome).Inc()
	m.duration.WithLabelValues(jc.JobName, outcome).Observe(jc.Duration.Seconds())
}
