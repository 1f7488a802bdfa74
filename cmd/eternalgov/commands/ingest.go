package commands

import (
	"github.com/spf13/cobra"
)

var ingestDAOs []string

// IngestCmd runs a single ingestion pass
var IngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest governance data into memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, n, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer n.Stop()

		ctx := cmd.Context()
		if _, err := n.Orchestrator.RegisterIdentity(ctx); err != nil {
			return err
		}
		daos := ingestDAOs
		if len(daos) == 0 {
			daos = cfg.DAOs.Names()
		}
		sources, err := n.Sources(daos)
		if err != nil {
			return err
		}
		rep, err := n.Orchestrator.Ingest(ctx, sources)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rep)
	},
}

func init() {
	IngestCmd.Flags().StringSliceVar(&ingestDAOs, "dao", nil, "DAOs to ingest (default: all registered)")
}
