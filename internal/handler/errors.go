package handler

import (
	"errors"
	"net/http"
	"strconv"

	"order-status-tracker/internal/logger"
	"order-status-tracker/internal/model"
	"order-status-tracker/internal/service"

	"github.com/labstack/echo/v4"
)

func orderIDParam(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}
	return uint(id), nil
}

// toHTTPError maps service errors onto status codes. Anything unknown is a
// 500 whose detail stays in the log.
func toHTTPError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	case errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidOrder),
		errors.Is(err, service.ErrInvalidSubscription):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	logger.FromContext(c.Request().Context(), nil).Error("request failed",
		"path", c.Path(),
		"error", err,
	)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
