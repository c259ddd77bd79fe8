// Package metrics exposes pipeline counters and latencies to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tradebot"

// Outcome labels for signals.
const (
	OutcomeExecuted = "executed"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics holds every collector the service updates.
type Metrics struct {
	reg *prometheus.Registry

	// signals counts processed webhook signals.
	// Labels: exchange, outcome (executed, rejected, failed), reason
	signals *prometheus.CounterVec

	// orders counts order submissions.
	// Labels: exchange, side, type, class (ok or an execution error class)
	orders *prometheus.CounterVec

	// stageLatency measures each pipeline stage.
	// Labels: stage
	stageLatency *prometheus.HistogramVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	unrecorded prometheus.Counter
}

// New creates Metrics on a fresh registry that also carries the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "signals_total",
			Help:      "Webhook signals processed, by outcome",
		}, []string{"exchange", "outcome", "reason"}),
		orders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "orders_total",
			Help:      "Order submissions by result class",
		}, []string{"exchange", "side", "type", "class"}),
		stageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Latency of each pipeline stage",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		cacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "cache_hits_total",
			Help:      "Market data cache hits",
		}, []string{"kind"}),
		cacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "cache_misses_total",
			Help:      "Market data cache misses",
		}, []string{"kind"}),
		unrecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recorder",
			Name:      "unrecorded_trades_total",
			Help:      "Orders that executed but could not be persisted",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Signal counts a processed signal. All methods are no-ops on a nil receiver.
func (m *Metrics) Signal(exchange, outcome, reason string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(exchange, outcome, reason).Inc()
}

// Order counts a submission; class is "ok" on success.
func (m *Metrics) Order(exchange, side, orderType, class string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(exchange, side, orderType, class).Inc()
}

// ObserveStage records how long a stage took since start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// CacheHit and CacheMiss count market data lookups by kind.
func (m *Metrics) CacheHit(kind string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(kind).Inc()
}

func (m *Metrics) CacheMiss(kind string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(kind).Inc()
}

// Unrecorded counts an executed order that was not persisted.
func (m *Metrics) Unrecorded() {
	if m == nil {
		return
	}
	m.unrecorded.Inc()
}
