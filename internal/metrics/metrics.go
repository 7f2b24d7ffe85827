// Package metrics holds the Prometheus collectors for the tracker: HTTP
// traffic, status updates, push fanout outcomes and live connections.
//
// All methods are safe on a nil *Metrics so components can run without
// instrumentation in tests and one-off commands.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "order_tracker"

type Metrics struct {
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	inFlight        prometheus.Gauge
	statusUpdates   *prometheus.CounterVec
	pushDeliveries  *prometheus.CounterVec
	pushDuration    prometheus.Histogram
	liveClients     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served.",
		}),
		statusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "status_updates_total",
			Help:      "Persisted order status changes by new status.",
		}, []string{"status"}),
		pushDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "deliveries_total",
			Help:      "Push delivery attempts by outcome (delivered, pruned, dropped).",
		}, []string{"outcome"}),
		pushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent on a single push delivery attempt.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		liveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "clients",
			Help:      "Connected live status WebSocket clients.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration,
		m.requestTotal,
		m.inFlight,
		m.statusUpdates,
		m.pushDeliveries,
		m.pushDuration,
		m.liveClients,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}

			start := time.Now()
			m.inFlight.Inc()
			defer m.inFlight.Dec()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)
			m.requestTotal.WithLabelValues(c.Request().Method, path, status).Inc()
			m.requestDuration.WithLabelValues(c.Request().Method, path, status).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) ObserveStatusUpdate(status string) {
	if m == nil {
		return
	}
	m.statusUpdates.WithLabelValues(status).Inc()
}

func (m *Metrics) ObservePushDelivery(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.pushDeliveries.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.pushDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) SetLiveClients(n int) {
	if m == nil {
		return
	}
	m.liveClients.Set(float64(n))
}
