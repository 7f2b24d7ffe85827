package server

import (
	"context"
	"log/slog"
	"net/http"

	"order-status-tracker/internal/config"
	"order-status-tracker/internal/handler"
	"order-status-tracker/internal/live"
	"order-status-tracker/internal/metrics"
	"order-status-tracker/internal/middleware"
	"order-status-tracker/internal/service"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

type Server struct {
	echo                *echo.Echo
	cfg                 config.HTTPServer
	staffSecret         string
	metrics             *metrics.Metrics
	orderHandler        *handler.OrderHandler
	subscriptionHandler *handler.SubscriptionHandler
	liveHandler         *handler.LiveHandler
}

func NewServer(
	cfg *config.Config,
	orderService service.OrderService,
	subscriptionService service.SubscriptionService,
	hub *live.Hub,
	m *metrics.Metrics,
	log *slog.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: corsOrigins(cfg.HTTP.CORSOrigins),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
	}))
	e.Use(m.Middleware())

	s := &Server{
		echo:                e,
		cfg:                 cfg.HTTP,
		staffSecret:         cfg.Staff.JWTSecret,
		metrics:             m,
		orderHandler:        handler.NewOrderHandler(orderService),
		subscriptionHandler: handler.NewSubscriptionHandler(subscriptionService),
		liveHandler:         handler.NewLiveHandler(hub, orderService),
	}

	s.setupRoutes()
	return s
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	api := s.echo.Group("/api/" + s.cfg.APIVersion)

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	staff := middleware.StaffAuth(s.staffSecret)

	// -------- orders --------
	orders := api.Group("/orders")
	orders.GET("/vapid-public-key", s.subscriptionHandler.VAPIDPublicKey)
	orders.POST("", s.orderHandler.CreateOrder, staff)
	orders.GET("/:id", s.orderHandler.GetOrder)
	orders.GET("/:id/status", s.orderHandler.GetStatus)
	orders.PATCH("/:id/status", s.orderHandler.UpdateStatus, staff)
	orders.GET("/:id/history", s.orderHandler.History)
	orders.POST("/:id/subscription", s.subscriptionHandler.Subscribe)

	// -------- live updates --------
	orders.GET("/:id/live", s.liveHandler.Watch)
}

// ServeHTTP makes the server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	return s.echo.Start(s.cfg.Address())
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
