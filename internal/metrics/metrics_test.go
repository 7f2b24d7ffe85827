package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushDeliveryCounters(t *testing.T) {
	m := New()

	m.ObservePushDelivery("delivered", 10*time.Millisecond)
	m.ObservePushDelivery("delivered", 20*time.Millisecond)
	m.ObservePushDelivery("pruned", 0)
	m.ObserveStatusUpdate("READY")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pushDeliveries.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pushDeliveries.WithLabelValues("pruned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.statusUpdates.WithLabelValues("READY")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObservePushDelivery("dropped", time.Second)
		m.ObserveStatusUpdate("NEW")
		m.SetLiveClients(3)
	})
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/orders/:id/status", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/456/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "/orders/:id/status", "200")))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "order_tracker_http_requests_total")
}
