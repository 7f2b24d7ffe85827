package handler

import (
	"net/http"

	"order-status-tracker/internal/live"
	"order-status-tracker/internal/logger"
	"order-status-tracker/internal/service"

	"github.com/labstack/echo/v4"
)

type LiveHandler struct {
	hub          *live.Hub
	orderService service.OrderService
}

func NewLiveHandler(hub *live.Hub, orderService service.OrderService) *LiveHandler {
	return &LiveHandler{
		hub:          hub,
		orderService: orderService,
	}
}

// Watch upgrades to a WebSocket that receives every status change of the
// order from now on.
func (h *LiveHandler) Watch(c echo.Context) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}

	if _, err := h.orderService.GetStatus(c.Request().Context(), orderID); err != nil {
		return toHTTPError(c, err)
	}

	if h.hub.Closed() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "shutting down")
	}

	if err := h.hub.Serve(c.Response(), c.Request(), orderID); err != nil {
		logger.FromContext(c.Request().Context(), nil).Warn("live upgrade failed", "order_id", orderID, "error", err)
	}
	return nil
}
