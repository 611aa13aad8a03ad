package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shrike/internal/pool"
)

const namespace = "shrike"

// Metrics exposes the process-lifetime observability counters: outbound
// attempt and probe totals plus live pool gauges sourced from the pool
// snapshot.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	attemptsTotal *prometheus.CounterVec
	probesTotal   *prometheus.CounterVec
}

// New builds and registers the metric set. statsFn is read lazily on every
// scrape, so gauges always reflect the current pool state.
func New(statsFn func() pool.Stats) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total top-level fetch calls by outcome",
			},
			[]string{"outcome"},
		),

		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Total outbound fetch attempts by path and result",
			},
			[]string{"path", "result"},
		),

		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Total out-of-band proxy probes by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.attemptsTotal,
		m.probesTotal,
		collectors.NewGoCollector(),
	)

	registerPoolGauges(registry, statsFn)

	return m
}

func registerPoolGauges(registry *prometheus.Registry, statsFn func() pool.Stats) {
	gauge := func(name, help string, value func(pool.Stats) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
			func() float64 { return value(statsFn()) },
		)
	}

	registry.MustRegister(
		gauge("pool_candidates", "Total seeded proxy candidates", func(s pool.Stats) float64 {
			return float64(s.TotalCandidates)
		}),
		gauge("pool_working", "Proxies currently classified working", func(s pool.Stats) float64 {
			return float64(s.WorkingCount)
		}),
		gauge("pool_failed", "Proxies currently classified failed", func(s pool.Stats) float64 {
			return float64(s.FailedCount)
		}),
		gauge("pool_untested", "Proxies not yet probed", func(s pool.Stats) float64 {
			return float64(s.UntestedCount)
		}),
	)
}

// CountRequest records a top-level fetch call outcome ("success" or an
// error kind).
func (m *Metrics) CountRequest(outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

// CountAttempt records one outbound attempt. path is "proxy" or "direct".
func (m *Metrics) CountAttempt(path string, success bool) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(path, resultLabel(success)).Inc()
}

// CountProbe records one out-of-band probe result.
func (m *Metrics) CountProbe(success bool) {
	if m == nil {
		return
	}
	m.probesTotal.WithLabelValues(resultLabel(success)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
