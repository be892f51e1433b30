package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// rpcMetrics counts JSON-RPC traffic per module and method.
type rpcMetrics struct {
	requests  *prometheus.CounterVec
	failures  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttled *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics
)

// ModuleMetrics returns the RPC metrics registry, registering it on first use.
func ModuleMetrics() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		opts := func(name, help string) prometheus.CounterOpts {
			return prometheus.CounterOpts{Namespace: "fcg", Subsystem: "module", Name: name, Help: help}
		}
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(opts("requests_total",
				"JSON-RPC requests by module, method and outcome."), []string{"module", "method", "outcome"}),
			failures: prometheus.NewCounterVec(opts("errors_total",
				"JSON-RPC errors by module, method and error code."), []string{"module", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fcg",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "JSON-RPC handler latency.",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			}, []string{"module", "method"}),
			throttled: prometheus.NewCounterVec(opts("throttles_total",
				"JSON-RPC requests rejected before dispatch."), []string{"module", "reason"}),
		}
		prometheus.MustRegister(rpcRegistry.requests, rpcRegistry.failures, rpcRegistry.latency, rpcRegistry.throttled)
	})
	return rpcRegistry
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// Observe records one handled request. Code is the JSON-RPC error code, zero
// on success.
func (m *rpcMetrics) Observe(module, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	module, method = orUnknown(module), orUnknown(method)
	if code == 0 {
		m.requests.WithLabelValues(module, method, "success").Inc()
	} else {
		m.requests.WithLabelValues(module, method, "error").Inc()
		m.failures.WithLabelValues(module, method, strconv.Itoa(code)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle counts a request rejected for reason, e.g. "rate_limit".
func (m *rpcMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttled.WithLabelValues(orUnknown(module), reason).Inc()
}
