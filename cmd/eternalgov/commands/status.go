package commands

import (
	"github.com/spf13/cobra"
)

// StatusCmd prints the delegate status and the votes recorded so far
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show delegate status",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, n, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer n.Stop()

		ctx := cmd.Context()
		if _, err := n.Orchestrator.RegisterIdentity(ctx); err != nil {
			return err
		}
		votes, err := n.Ledger.Votes(ctx, "")
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"status": n.Orchestrator.Status(),
			"votes":  votes,
		})
	},
}
