package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the pipeline and the API.
type Metrics struct {
	registry *prometheus.Registry

	repositoriesTotal *prometheus.CounterVec
	cloneDuration     *prometheus.HistogramVec
	runsTotal         *prometheus.CounterVec
	inflight          prometheus.Gauge
	requestsTotal     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		repositoriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "classroom_sync",
				Name:      "repositories_total",
				Help:      "Total number of repositories processed by outcome.",
			},
			[]string{"outcome"},
		),
		cloneDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "classroom_sync",
				Name:      "sync_duration_seconds",
				Help:      "Working copy synchronization duration in seconds by mode.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"mode"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "classroom_sync",
				Name:      "runs_total",
				Help:      "Total number of batch runs by status.",
			},
			[]string{"status"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "classroom_sync",
				Name:      "units_inflight",
				Help:      "Repositories currently being processed.",
			},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "classroom_sync",
				Name:      "http_requests_total",
				Help:      "Total number of API requests by route and status code.",
			},
			[]string{"route", "code"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.repositoriesTotal,
		m.cloneDuration,
		m.runsTotal,
		m.inflight,
		m.requestsTotal,
	)

	return m
}

// IncRepository counts one finished repository. outcome is ON_TIME, LATE or
// an invalid reason.
func (m *Metrics) IncRepository(outcome string) {
	if m == nil {
		return
	}
	m.repositoriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveSync records how long a synchronization took. mode is "clone" or
// "reuse".
func (m *Metrics) ObserveSync(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.cloneDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) IncRun(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncInFlight() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) DecInFlight() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}

// ObserveRequest counts one API request. route is the matched pattern, not
// the raw path.
func (m *Metrics) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
