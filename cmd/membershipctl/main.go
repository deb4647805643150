// Command membershipctl runs administrative tasks against the configured
// realtime store without going through the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"membership-backend/internal/config"
	"membership-backend/internal/factory"
	"membership-backend/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "membershipctl",
	Short:         "Administrative tasks for the membership backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.dev.yaml", "Path to configuration file")
}

// withFactory loads the configuration, builds the components and runs fn
// with a context cancelled on SIGINT or SIGTERM.
func withFactory(fn func(ctx context.Context, f *factory.Factory) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, cleanup, err := factory.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, f)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
