package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-pjlink/internal/bridges/pjlink"
)

const metricsNamespace = "pjlink"

// Metrics owns the Prometheus registry served on /metrics.
//
// Event and API counters are updated as they happen. Per-projector link
// statistics and state gauges are read from the fleet at scrape time.
type Metrics struct {
	registry *prometheus.Registry

	events   *prometheus.CounterVec
	commands *prometheus.CounterVec
	requests *prometheus.CounterVec
}

// NewMetrics creates a registry with Go runtime, process and fleet collectors.
func NewMetrics(fleet Fleet) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Engine events by projector and type.",
		}, []string{"projector", "type"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "api_commands_total",
			Help:      "Commands submitted through the REST API by result.",
		}, []string{"command", "projector", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events,
		m.commands,
		m.requests,
		newFleetCollector(fleet),
	)
	return m
}

// OnEvent implements pjlink.Listener.
func (m *Metrics) OnEvent(e pjlink.Event) {
	m.events.WithLabelValues(e.Source, e.Type.String()).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware counts requests by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
	})
}

func (m *Metrics) commandResult(projectorID, command string, accepted bool) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	m.commands.WithLabelValues(command, projectorID, result).Inc()
}

// fleetCollector reads projector statistics on every scrape.
type fleetCollector struct {
	fleet Fleet

	sent, failed, timeouts, authFailures *prometheus.Desc
	queueDepth, lampHours, power         *prometheus.Desc
	errorMask, connectionError           *prometheus.Desc
}

func newFleetCollector(fleet Fleet) *fleetCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, []string{"projector"}, nil)
	}
	return &fleetCollector{
		fleet:           fleet,
		sent:            desc("commands_sent_total", "Command exchanges attempted."),
		failed:          desc("commands_failed_total", "Command exchanges that failed."),
		timeouts:        desc("timeouts_total", "Exchanges that hit the deadline."),
		authFailures:    desc("auth_failures_total", "Authentication rejections."),
		queueDepth:      desc("queue_depth", "Commands waiting in the queue."),
		lampHours:       desc("lamp_hours", "Last reported lamp hours."),
		power:           desc("power_state", "Confirmed power state code (0 off, 1 on, 2 cooling, 3 warming)."),
		errorMask:       desc("error_mask", "Packed subsystem error mask."),
		connectionError: desc("connection_error", "1 while the projector is unreachable."),
	}
}

// Describe implements prometheus.Collector.
func (c *fleetCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.sent, c.failed, c.timeouts, c.authFailures,
		c.queueDepth, c.lampHours, c.power, c.errorMask, c.connectionError,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *fleetCollector) Collect(ch chan<- prometheus.Metric) {
	for _, p := range c.fleet.Projectors() {
		id := p.ID()
		st := p.Stats()
		conf := p.Confirmed()

		ch <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, float64(st.CommandsSent), id)
		ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(st.CommandsFailed), id)
		ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(st.Timeouts), id)
		ch <- prometheus.MustNewConstMetric(c.authFailures, prometheus.CounterValue, float64(st.AuthFailures), id)
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(st.QueueDepth), id)
		ch <- prometheus.MustNewConstMetric(c.lampHours, prometheus.GaugeValue, float64(conf.LampHours), id)
		ch <- prometheus.MustNewConstMetric(c.power, prometheus.GaugeValue, float64(conf.Power), id)
		ch <- prometheus.MustNewConstMetric(c.errorMask, prometheus.GaugeValue, float64(conf.ErrorMask()), id)
		ch <- prometheus.MustNewConstMetric(c.connectionError, prometheus.GaugeValue, boolFloat(conf.ConnectionError), id)
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
