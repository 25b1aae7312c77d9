// Package metrics holds the Prometheus collectors of the chat pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the pipeline collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	CacheEvictions  prometheus.Counter
	BackendCalls    *prometheus.CounterVec
	BackendDuration prometheus.Histogram
	LimiterActive   prometheus.Gauge
	LimiterWaiting  prometheus.Gauge
	DatasetRecords  prometheus.Gauge
	ChatRequests    *prometheus.CounterVec
}

// New creates the collectors on a fresh registry so tests and multiple
// instances never collide on the global default registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nutri_cache_hits_total",
			Help: "Chat responses served from the response cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nutri_cache_misses_total",
			Help: "Chat requests that missed the response cache.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nutri_cache_evictions_total",
			Help: "Response cache entries removed by the size bound or TTL.",
		}),
		BackendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutri_backend_calls_total",
			Help: "LLM backend calls by outcome.",
		}, []string{"outcome"}),
		BackendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nutri_backend_call_seconds",
			Help:    "LLM backend call latency once a limiter slot is held.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		}),
		LimiterActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nutri_limiter_active",
			Help: "Backend calls currently executing.",
		}),
		LimiterWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nutri_limiter_waiting",
			Help: "Backend calls queued behind the limiter.",
		}),
		DatasetRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nutri_dataset_records",
			Help: "Food records available for retrieval.",
		}),
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutri_chat_requests_total",
			Help: "Chat requests by HTTP status code.",
		}, []string{"code"}),
	}
	reg.MustRegister(
		m.CacheHits, m.CacheMisses, m.CacheEvictions,
		m.BackendCalls, m.BackendDuration,
		m.LimiterActive, m.LimiterWaiting,
		m.DatasetRecords, m.ChatRequests,
	)
	return m
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
