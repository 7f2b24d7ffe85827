package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"order-status-tracker/internal/client"
	"order-status-tracker/internal/middleware"
	"order-status-tracker/internal/repository"
	"order-status-tracker/internal/tracker"

	"github.com/spf13/cobra"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := client.InitDBClient(a.cfg.Database.Driver, a.cfg.Database.URL)
			if err != nil {
				return err
			}
			defer client.CloseDB(db)

			if err := client.Migrate(db); err != nil {
				return err
			}
			a.log.Info("migration complete", "driver", a.cfg.Database.Driver)
			return nil
		},
	}
}

func (a *app) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the demo order 456",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := client.InitDBClient(a.cfg.Database.Driver, a.cfg.Database.URL)
			if err != nil {
				return err
			}
			defer client.CloseDB(db)

			if err := client.Migrate(db); err != nil {
				return err
			}
			if err := repository.NewOrderRepository(db).Seed(cmd.Context(), a.cfg.Orders.TaxRate); err != nil {
				return fmt.Errorf("seed orders: %w", err)
			}
			a.log.Info("seed complete", "order_id", repository.SeedOrderID)
			return nil
		},
	}
}

func (a *app) vapidKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for web push",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := client.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", pub, priv)
			return nil
		},
	}
}

func (a *app) staffTokenCmd() *cobra.Command {
	var (
		staffID string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "staff-token",
		Short: "Mint a bearer token for the admin status view",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl <= 0 {
				ttl = a.cfg.Staff.TokenTTL
			}
			token, err := middleware.IssueStaffToken(a.cfg.Staff.JWTSecret, staffID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&staffID, "staff-id", "kitchen", "staff member recorded on status changes")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to STAFF_TOKEN_TTL)")
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	var (
		apiURL     string
		orderID    string
		noPush     bool
		background bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow an order's status like the customer page does",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var push tracker.PushChannel
			if !noPush {
				push = tracker.NewWSPushChannel(apiURL, a.log)
			}

			session := tracker.NewSession(orderID, tracker.NewHTTPStatusFetcher(apiURL, 10*time.Second), push, tracker.Options{
				Logger: a.log,
				OnChange: func(st tracker.State) {
					fmt.Fprintf(out, "%s  %-9s %s (v%d via %s)\n",
						st.UpdatedAt.Format(time.Kitchen),
						st.Status.ShortLabel(),
						st.Status.Description(),
						st.Version,
						st.Source,
					)
				},
			})
			session.SetVisible(!background)

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "api", envOr("TRACKER_API_URL", "http://localhost:8080/api/v1"), "API base URL")
	cmd.Flags().StringVar(&orderID, "order", "", "order id to follow")
	cmd.Flags().BoolVar(&noPush, "no-push", false, "poll only")
	cmd.Flags().BoolVar(&background, "background", false, "use the background polling interval")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
