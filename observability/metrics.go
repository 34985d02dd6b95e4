package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	marketMetricsOnce sync.Once
	marketRegistry    *MarketMetrics
)

// ModuleMetrics returns the lazily-initialised metrics registry used to
// record JSON-RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vnet",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vnet",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by method and status code.",
			}, []string{"method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vnet",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// MarketMetrics tracks marketplace lifecycle throughput.
type MarketMetrics struct {
	transitions *prometheus.CounterVec
	withdrawals prometheus.Counter
}

// Market returns the lazily-initialised marketplace metrics registry.
func Market() *MarketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vnet",
				Subsystem: "market",
				Name:      "transitions_total",
				Help:      "Voucher lifecycle transitions segmented by event type.",
			}, []string{"event"}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vnet",
				Subsystem: "market",
				Name:      "withdrawals_total",
				Help:      "Completed escrow withdrawals.",
			}),
		}
		prometheus.MustRegister(marketRegistry.transitions, marketRegistry.withdrawals)
	})
	return marketRegistry
}

// Transition records a voucher lifecycle transition.
func (m *MarketMetrics) Transition(event string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event).Inc()
}

// Withdrawal records a completed escrow withdrawal.
func (m *MarketMetrics) Withdrawal() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}
