// Command geoctl is the operator CLI: schema migration, region bulk loads,
// offline risk computation and outbox draining.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"geoscore/internal/platform/config"
	"geoscore/internal/platform/logger"
	"geoscore/internal/platform/postgres"
)

var (
	databaseURL string
	timeout     time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "geoctl",
	Short:         "Operate a geoscore deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (default: DATABASE_URL env)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	regionsCmd.AddCommand(regionsLoadCmd)
	regionsCmd.AddCommand(regionsSummaryCmd)
	outboxCmd.AddCommand(outboxDrainCmd)

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(regionsCmd)
	rootCmd.AddCommand(riskCmd)
	rootCmd.AddCommand(outboxCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "geoctl:", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig() (config.Server, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Server{}, err
	}
	if databaseURL != "" {
		cfg.Database.URL = databaseURL
	}
	return cfg, nil
}

// openDB opens the configured database. Every command that needs one
// requires an explicit URL; geoctl never falls back to memory.
func openDB(ctx context.Context, cfg config.Server) (*sql.DB, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("no database configured: set DATABASE_URL or --database-url")
	}
	return postgres.Open(ctx, cfg.Database)
}

func commandLogger(cmd *cobra.Command) *slog.Logger {
	return logger.NewWithWriter(cmd.ErrOrStderr(), os.Getenv("LOG_LEVEL"))
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
