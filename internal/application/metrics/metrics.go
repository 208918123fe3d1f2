package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks application registration and credential checks.
type Metrics struct {
	Registrations *prometheus.CounterVec
	AuthFailures  prometheus.Counter
}

// New registers the metrics on reg (default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geoscore_application_registrations_total",
			Help: "Application registration calls by outcome",
		}, []string{"outcome"}), // outcome: "created", "existing"
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "geoscore_application_auth_failures_total",
			Help: "Rejected application credential checks",
		}),
	}
}

func (m *Metrics) IncrementRegistration(created bool) {
	if m == nil {
		return
	}
	outcome := "existing"
	if created {
		outcome = "created"
	}
	m.Registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementAuthFailure() {
	if m != nil {
		m.AuthFailures.Inc()
	}
}
