package handler

import (
	"net/http"

	"order-status-tracker/internal/dto"
	"order-status-tracker/internal/service"

	"github.com/labstack/echo/v4"
)

type SubscriptionHandler struct {
	subscriptionService service.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
	}
}

// Subscribe never tells the caller whether the endpoint was new.
func (h *SubscriptionHandler) Subscribe(c echo.Context) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}

	var req dto.SubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	if err := h.subscriptionService.Register(c.Request().Context(), orderID, &req); err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}

func (h *SubscriptionHandler) VAPIDPublicKey(c echo.Context) error {
	key := h.subscriptionService.VAPIDPublicKey()
	return c.JSON(http.StatusOK, dto.VAPIDKeyResponse{
		PublicKey:      key,
		VapidPublicKey: key,
	})
}
