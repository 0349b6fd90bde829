// Package metrics exposes Prometheus instrumentation for tool calls, resource
// reads, transport sessions and HTTP requests.
//
// A nil *Collector is valid and records nothing, so packages can accept one
// optionally.
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

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
)

// Collector owns a private registry and the server's metric vectors.
type Collector struct {
	registry *prometheus.Registry

	toolCallsTotal      *prometheus.CounterVec
	toolCallDuration    *prometheus.HistogramVec
	resourceReadsTotal  *prometheus.CounterVec
	sessionsActive      *prometheus.GaugeVec
	sessionsTotal       *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector registers all vectors under namespace on a fresh registry.
// Go runtime and process collectors are included.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		toolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool calls by tool and outcome.",
			},
			[]string{"tool", "outcome"},
		),
		toolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Tool call duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		resourceReadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resource_reads_total",
				Help:      "Total number of resource reads by scheme and outcome.",
			},
			[]string{"scheme", "outcome"},
		),
		sessionsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Currently open transport sessions.",
			},
			[]string{"transport"},
		),
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of transport sessions opened.",
			},
			[]string{"transport"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds. SSE streams are excluded.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveToolCall(tool, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
	c.toolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (c *Collector) ObserveResourceRead(scheme, outcome string) {
	if c == nil {
		return
	}
	if scheme == "" {
		scheme = "unknown"
	}
	c.resourceReadsTotal.WithLabelValues(scheme, outcome).Inc()
}

func (c *Collector) SessionOpened(transport string) {
	if c == nil {
		return
	}
	c.sessionsActive.WithLabelValues(transport).Inc()
	c.sessionsTotal.WithLabelValues(transport).Inc()
}

func (c *Collector) SessionClosed(transport string) {
	if c == nil {
		return
	}
	c.sessionsActive.WithLabelValues(transport).Dec()
}

func (c *Collector) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	if d > 0 {
		c.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
	}
}
