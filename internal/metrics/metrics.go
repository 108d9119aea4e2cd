// Package metrics exposes the service's Prometheus collectors on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "divination"

// Metrics groups the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	reg *prometheus.Registry

	sessions      *prometheus.CounterVec
	readings      *prometheus.CounterVec
	manualSteps   *prometheus.CounterVec
	interpretTime *prometheus.HistogramVec
	fallbacks     prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Divination sessions created.",
		}, []string{"mode", "method"}),
		readings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_completed_total",
			Help:      "Readings whose result was produced.",
		}, []string{"mode", "method"}),
		manualSteps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_steps_total",
			Help:      "Manual steps recorded, by outcome.",
		}, []string{"method", "outcome"}),
		interpretTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "interpret_duration_seconds",
			Help:      "LLM interpretation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"outcome"}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interpret_fallbacks_total",
			Help:      "Interpretations replaced by the built-in fallback.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) SessionCreated(mode, method string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(mode, method).Inc()
}

func (m *Metrics) ReadingCompleted(mode, method string) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(mode, method).Inc()
}

// ManualStep counts a step as "recorded", "replayed" or "rejected".
func (m *Metrics) ManualStep(method, outcome string) {
	if m == nil {
		return
	}
	m.manualSteps.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ObserveInterpret(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.interpretTime.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) InterpretFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
