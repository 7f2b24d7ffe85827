package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"order-status-tracker/internal/config"
	"order-status-tracker/internal/logger"

	"github.com/spf13/cobra"
)

type app struct {
	cfg *config.Config
	log *slog.Logger
}

func main() {
	a := &app{}

	root := &cobra.Command{
		Use:           "order-tracker",
		Short:         "Restaurant order status tracker with web push notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			a.cfg = cfg
			a.log = logger.New(cfg.Log)
			return nil
		},
		// serving is the default
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}

	root.AddCommand(
		a.serveCmd(),
		a.migrateCmd(),
		a.seedCmd(),
		a.vapidKeysCmd(),
		a.staffTokenCmd(),
		a.watchCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
}
