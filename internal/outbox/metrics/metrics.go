package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks outbox relay throughput and backlog.
type Metrics struct {
	Published     prometheus.Counter
	PublishErrors prometheus.Counter
	Backlog       prometheus.Gauge
}

// New registers the metrics on reg (default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "geoscore_outbox_published_total",
			Help: "Outbox events delivered to the broker",
		}),
		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "geoscore_outbox_publish_errors_total",
			Help: "Relay batches that failed to publish",
		}),
		Backlog: factory.NewGauge(prometheus.GaugeOpts{
			Name: "geoscore_outbox_backlog",
			Help: "Unpublished outbox events at the last relay tick",
		}),
	}
}

func (m *Metrics) AddPublished(n int) {
	if m != nil {
		m.Published.Add(float64(n))
	}
}

func (m *Metrics) IncrementPublishError() {
	if m != nil {
		m.PublishErrors.Inc()
	}
}

func (m *Metrics) SetBacklog(n int) {
	if m != nil {
		m.Backlog.Set(float64(n))
	}
}
