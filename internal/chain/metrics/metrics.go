package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ledger verification calls.
type Metrics struct {
	RPCLatency   *prometheus.HistogramVec
	RPCFailures  *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec
	BreakerOpen  prometheus.Gauge
}

// New registers the metrics on reg (default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RPCLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geoscore_chain_rpc_duration_seconds",
			Help:    "Duration of ledger RPC calls by outcome",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"outcome"}), // outcome: "ok", "error"

		RPCFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geoscore_chain_rpc_failures_total",
			Help: "Failed ledger RPC calls by error category",
		}, []string{"category"}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geoscore_chain_cache_lookups_total",
			Help: "Verified-amount cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss", "error"

		BreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "geoscore_chain_breaker_open",
			Help: "1 while the ledger RPC circuit breaker is open",
		}),
	}
}

func (m *Metrics) ObserveRPC(outcome string, d time.Duration) {
	if m != nil {
		m.RPCLatency.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementFailure(category string) {
	if m != nil {
		m.RPCFailures.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) IncrementCache(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}
