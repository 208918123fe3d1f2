package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the claim lifecycle.
type Metrics struct {
	Opened          prometheus.Counter
	Confirmations   *prometheus.CounterVec
	ConfirmDuration prometheus.Histogram
	ZeroValue       prometheus.Counter
}

// New registers the metrics on reg (default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Opened: factory.NewCounter(prometheus.CounterOpts{
			Name: "geoscore_claims_opened_total",
			Help: "Claims opened in PENDING state",
		}),
		Confirmations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geoscore_claim_confirmations_total",
			Help: "Confirmation attempts by outcome",
		}, []string{"outcome"}),
		ConfirmDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "geoscore_claim_confirm_duration_seconds",
			Help:    "End-to-end confirmation latency including ledger verification",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ZeroValue: factory.NewCounter(prometheus.CounterOpts{
			Name: "geoscore_claim_zero_value_total",
			Help: "Confirmations whose transaction moved no native coin",
		}),
	}
}

func (m *Metrics) IncrementOpened() {
	if m != nil {
		m.Opened.Inc()
	}
}

func (m *Metrics) ObserveConfirmation(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Confirmations.WithLabelValues(outcome).Inc()
	m.ConfirmDuration.Observe(d.Seconds())
}

func (m *Metrics) IncrementZeroValue() {
	if m != nil {
		m.ZeroValue.Inc()
	}
}
