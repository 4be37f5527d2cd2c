package server

import (
	"net/http"

	"github.com/ericogr/ina219-exporter/pkg/exposition"
	"github.com/ericogr/ina219-exporter/pkg/sampler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds counters about the exporter itself. They live on a private
// registry so they never leak into the device document.
type Metrics struct {
	registry  *prometheus.Registry
	scrapes   *prometheus.CounterVec
	attempts  *prometheus.CounterVec
	exhausted *prometheus.CounterVec
	truncated prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scrapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "scrapes_total",
			Help:      "Metrics requests served, by result.",
		}, []string{"result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "read_attempts_total",
			Help:      "Sensor read attempts, by channel.",
		}, []string{"channel"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "read_exhausted_total",
			Help:      "Channels that produced no valid reading within the retry budget.",
		}, []string{"channel"}),
		truncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "truncated_documents_total",
			Help:      "Metrics documents cut to fit the maximum body size.",
		}),
	}
	m.registry.MustRegister(m.scrapes, m.attempts, m.exhausted, m.truncated)
	return m
}

// ObserveChannel implements sampler.Observer.
func (m *Metrics) ObserveChannel(o sampler.Outcome) {
	m.attempts.WithLabelValues(o.Channel).Add(float64(o.Attempts))
	if !o.OK() {
		m.exhausted.WithLabelValues(o.Channel).Inc()
	}
}

func (m *Metrics) observeScrape(doc exposition.Document) {
	m.scrapes.WithLabelValues(doc.Status.String()).Inc()
	if doc.Truncated {
		m.truncated.Inc()
	}
}

// Handler serves the exporter's own metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
