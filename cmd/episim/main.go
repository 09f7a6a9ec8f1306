// Command episim builds synthetic contact networks and runs Monte Carlo
// epidemic simulations over them.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Sink credentials (EPINET_PG_DSN, AWS_*) may come from a local .env.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "episim",
		Short: "Network agent epidemic simulator",
		Long: `episim generates a multi-layer contact network from ward and age
tables and runs independently seeded stochastic epidemics over it.

Per-timestep snapshots are exported as GraphML, CSV, a compressed snapshot
log, SQLite, PostgreSQL, S3 or a live NNG feed.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("log-level", envOr("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", envOr("LOG_FORMAT", "json"), "Log format (json, text)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newNetworkCmd(),
		newInspectCmd(),
		newWatchCmd(),
	)
	return rootCmd
}

// signalContext returns a context cancelled on SIGINT (and SIGTERM where
// it exists).
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	notifySignals(ch)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
