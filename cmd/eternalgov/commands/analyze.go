package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NethermindEth/eternalgov/report"
)

var (
	analyzeFormat string
	analyzeStyle  string
	analyzeWidth  int
	analyzeVote   bool
)

// AnalyzeCmd produces a recommendation and justification report for a proposal
var AnalyzeCmd = &cobra.Command{
	Use:   "analyze <dao> <proposal-id>",
	Short: "Analyze a proposal and print its report",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, n, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer n.Stop()

		ctx := cmd.Context()
		if err := n.Bootstrap(ctx); err != nil {
			return err
		}
		a, err := n.Orchestrator.Analyze(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch analyzeFormat {
		case "json":
			if err := printJSON(out, a); err != nil {
				return err
			}
		case "markdown":
			fmt.Fprint(out, report.RenderMarkdown(a.Report))
		case "terminal":
			rendered, err := report.RenderTerminal(report.RenderMarkdown(a.Report), analyzeStyle, analyzeWidth)
			if err != nil {
				return err
			}
			fmt.Fprint(out, rendered)
		default:
			return fmt.Errorf("unknown format %q (json, markdown or terminal)", analyzeFormat)
		}

		if !analyzeVote {
			return nil
		}
		receipt, err := n.Orchestrator.CastVote(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(out, receipt)
	},
}

func init() {
	AnalyzeCmd.Flags().StringVar(&analyzeFormat, "format", "terminal", "Output format: json, markdown or terminal")
	AnalyzeCmd.Flags().StringVar(&analyzeStyle, "style", "auto", "Glamour style for terminal output")
	AnalyzeCmd.Flags().IntVar(&analyzeWidth, "width", 100, "Word wrap width for terminal output")
	AnalyzeCmd.Flags().BoolVar(&analyzeVote, "vote", false, "Cast the recommended vote (requires voting.autonomous)")
}
