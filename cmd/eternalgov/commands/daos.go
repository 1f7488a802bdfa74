package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NethermindEth/eternalgov/config"
)

var daosOut string

// DAOsCmd lists the configured DAO registry and optionally exports it
var DAOsCmd = &cobra.Command{
	Use:   "daos",
	Short: "List the DAOs the delegate follows",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if daosOut != "" {
			if err := cfg.DAOs.Save(daosOut); err != nil {
				return fmt.Errorf("failed to save DAO registry: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "registry written to %s\n", daosOut)
		}
		daos := make([]config.DAO, 0, len(cfg.DAOs.DAOs))
		for _, name := range cfg.DAOs.Names() {
			dao, _ := cfg.DAOs.Get(name)
			daos = append(daos, dao)
		}
		return printJSON(cmd.OutOrStdout(), daos)
	},
}

func init() {
	DAOsCmd.Flags().StringVar(&daosOut, "out", "", "Write the effective registry as YAML to this path")
}
