package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"order-status-tracker/internal/client"
	"order-status-tracker/internal/live"
	"order-status-tracker/internal/metrics"
	"order-status-tracker/internal/repository"
	"order-status-tracker/internal/server"
	"order-status-tracker/internal/service"

	"github.com/spf13/cobra"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	cfg, log := a.cfg, a.log
	if err := cfg.ValidateVAPID(); err != nil {
		return fmt.Errorf("%w (run `order-tracker vapid-keys`)", err)
	}

	ctx, stop := signalContext(parent)
	defer stop()

	db, err := client.InitDBClient(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer client.CloseDB(db)

	if err := client.Migrate(db); err != nil {
		return err
	}

	m := metrics.New()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := live.NewHub(m, log)
	go hub.Run(hubCtx)

	publishers := []service.StatusPublisher{hub}
	if cfg.AMQP.URL != "" {
		amqpPublisher, err := client.NewAmqpPublisher(cfg.AMQP)
		if err != nil {
			return err
		}
		defer amqpPublisher.Close()
		publishers = append(publishers, amqpPublisher)
		log.Info("publishing status events", "exchange", cfg.AMQP.Exchange)
	}

	orderRepo := repository.NewOrderRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	historyRepo := repository.NewStatusHistoryRepository(db)

	notifier := service.NewNotificationService(
		subscriptionRepo,
		client.NewWebPushClient(cfg.VAPID, cfg.Push),
		cfg.Push.MaxConcurrency,
		m, log,
	)
	orderService := service.NewOrderService(
		db, orderRepo, historyRepo, notifier,
		service.OrderSettings{
			TaxRate:            cfg.Orders.TaxRate,
			EnforceTransitions: cfg.Orders.EnforceTransitions,
		},
		m, log,
		publishers...,
	)
	subscriptionService := service.NewSubscriptionService(orderRepo, subscriptionRepo, cfg.VAPID.PublicKey, log)

	srv := server.NewServer(cfg, orderService, subscriptionService, hub, m, log)

	if cfg.Staff.JWTSecret == "" {
		log.Warn("STAFF_JWT_SECRET is empty, staff routes are unauthenticated")
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "address", cfg.HTTP.Address(), "api_version", cfg.HTTP.APIVersion)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("signal received, starting graceful shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", "error", err)
	}
	stopHub()
	notifier.Wait()

	log.Info("shutdown complete")
	return nil
}
