package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NethermindEth/eternalgov/cmd/node"
	"github.com/NethermindEth/eternalgov/config"
	"github.com/NethermindEth/eternalgov/logging"
)

var (
	configPath string
	logLevel   string
)

// RootCmd is the eternalgov command line interface
var RootCmd = &cobra.Command{
	Use:           "eternalgov",
	Short:         "EternalGov DAO governance delegate",
	Long:          `Aggregates governance data, keeps long-term DAO memory and produces explainable vote recommendations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to eternalgov.yaml")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(IngestCmd)
	RootCmd.AddCommand(AnalyzeCmd)
	RootCmd.AddCommand(StatusCmd)
	RootCmd.AddCommand(KeygenCmd)
	RootCmd.AddCommand(WatchCmd)
	RootCmd.AddCommand(DAOsCmd)
}

// setup loads the configuration and builds a node
func setup() (*config.Config, *node.Node, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	n, err := node.NewNode(cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, nil, nil, err
	}
	return cfg, n, logger, nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
