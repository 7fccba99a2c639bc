package executor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds executor metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Executions *prometheus.CounterVec
	Active     prometheus.Gauge
	Duration   *prometheus.HistogramVec
}

// NewMetrics creates and registers the executor metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livecode",
			Name:      "executions_total",
			Help:      "Executions by language and outcome.",
		}, []string{"language", "outcome"}),
		Active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "livecode",
			Name:      "executions_active",
			Help:      "Executions currently running.",
		}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "livecode",
			Name:      "execution_duration_seconds",
			Help:      "Wall time of an execution, compile included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"language"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(language string, outcome Outcome, elapsed time.Duration) {
	m.Executions.WithLabelValues(language, string(outcome)).Inc()
	m.Duration.WithLabelValues(language).Observe(elapsed.Seconds())
}
