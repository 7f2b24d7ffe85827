package handler

import (
	"net/http"

	"order-status-tracker/internal/dto"
	"order-status-tracker/internal/middleware"
	"order-status-tracker/internal/service"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	order, err := h.orderService.CreateOrder(ctx, req.Items)
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}

	order, err := h.orderService.GetOrder(c.Request().Context(), orderID)
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) GetStatus(c echo.Context) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}

	status, err := h.orderService.GetStatus(c.Request().Context(), orderID)
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, status)
}

// UpdateStatus answers with the updated order as soon as it is stored;
// subscribers are notified in the background.
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()

	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}

	var req dto.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	order, err := h.orderService.UpdateStatus(ctx, orderID, req.Status, middleware.StaffID(c))
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) History(c echo.Context) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}

	changes, err := h.orderService.History(c.Request().Context(), orderID)
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, dto.HistoryResponse{
		OrderID: orderID,
		Changes: changes,
	})
}
