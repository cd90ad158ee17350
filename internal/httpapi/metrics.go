package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "pulse"

// Metrics holds the API's collectors on a private registry that the
// pipeline also publishes to. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	bytesOut     *prometheus.CounterVec
	storeErrors  *prometheus.CounterVec
	rateLimited  prometheus.Counter
	wsClients    prometheus.Gauge
	reportsSent  prometheus.Counter
	reportsDrops prometheus.Counter
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{Namespace: metricsNamespace, Name: name, Help: help})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: metricsNamespace, Name: name, Help: help}, labels)
	}

	return &Metrics{
		registry:    reg,
		requests:    counterVec("http_requests_total", "HTTP requests by route, method and status.", "route", "method", "status"),
		bytesOut:    counterVec("http_response_bytes_total", "Response body bytes by route.", "route"),
		storeErrors: counterVec("store_errors_total", "Store read failures by route.", "route"),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		rateLimited:  counter("http_rate_limited_total", "Requests rejected by the per-client limiter."),
		reportsSent:  counter("run_reports_sent_total", "Run reports written to WebSocket clients."),
		reportsDrops: counter("broadcast_drops_total", "Run reports dropped because a client was not keeping up."),
		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "ws_clients",
			Help:      "Connected WebSocket clients.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registerer lets other components publish collectors on /metrics.
func (m *Metrics) Registerer() prometheus.Registerer { return m.registry }

func (m *Metrics) ObserveRequest(route, method string, status int, dur time.Duration, bytes int64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(dur.Seconds())
	m.bytesOut.WithLabelValues(route).Add(float64(bytes))
}

func (m *Metrics) IncWSClients(delta float64) {
	if m != nil {
		m.wsClients.Add(delta)
	}
}

func (m *Metrics) IncBroadcastDrops() {
	if m != nil {
		m.reportsDrops.Inc()
	}
}

func (m *Metrics) IncRateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

func (m *Metrics) IncReportsSent() {
	if m != nil {
		m.reportsSent.Inc()
	}
}

func (m *Metrics) IncStoreErrors(route string) {
	if m != nil {
		m.storeErrors.WithLabelValues(route).Inc()
	}
}
