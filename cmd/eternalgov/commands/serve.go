package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ServeCmd runs the delegate with its REST API, event stream and metrics
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the delegate and its API",
	Long:  `Register the delegate identity, ingest every configured DAO and serve the REST API, websocket events and metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, n, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer n.Stop()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// a failed bootstrap leaves the orchestrator degraded; the API can retry ingestion
		if err := n.Bootstrap(ctx); err != nil {
			logger.Error("bootstrap failed", zap.Error(err))
		}
		return n.Serve(ctx)
	},
}
