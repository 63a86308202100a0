// Package metrics exposes the service's Prometheus metrics on a private
// registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deliverycost/internal/tariff"
)

const namespace = "deliverycost"

// Metrics records HTTP, cache and tariff source activity. It implements
// tariff.Recorder and engine.CacheRecorder.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	sourceCalls    *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec
	exhausted      *prometheus.CounterVec
	invalidations  *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		sourceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tariff_source_calls_total",
			Help:      "Tariff source calls by outcome.",
		}, []string{"source", "outcome"}),
		sourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tariff_source_call_duration_seconds",
			Help:      "Tariff source call latency, timeouts included.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"source"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tariff_sources_exhausted_total",
			Help:      "Lookups no source could answer.",
		}, []string{"service"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalidation_events_total",
			Help:      "Tariff invalidation events by outcome.",
		}, []string{"outcome"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tariff_source_breaker_open",
			Help:      "1 while a source's circuit breaker is not closed.",
		}, []string{"source"}),
	}
	reg.MustRegister(
		m.httpRequests, m.httpDuration,
		m.cacheLookups,
		m.sourceCalls, m.sourceDuration, m.exhausted, m.breakerState,
		m.invalidations,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) CacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) SourceCall(source string, outcome tariff.Outcome, elapsed time.Duration) {
	m.sourceCalls.WithLabelValues(source, string(outcome)).Inc()
	m.sourceDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (m *Metrics) Exhausted(service string) {
	m.exhausted.WithLabelValues(service).Inc()
}

func (m *Metrics) BreakerOpen(source string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.breakerState.WithLabelValues(source).Set(v)
}

func (m *Metrics) InvalidationEvent(outcome string) {
	m.invalidations.WithLabelValues(outcome).Inc()
}
