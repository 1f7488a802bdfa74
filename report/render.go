package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// RenderMarkdown formats the report for publication
func RenderMarkdown(r Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# EternalGov Vote Justification Report\n\n")
	fmt.Fprintf(&b, "## Proposal %s (%s)\n\n", r.ProposalID, r.DAO)
	if r.Title != "" {
		fmt.Fprintf(&b, "_%s_\n\n", r.Title)
	}
	fmt.Fprintf(&b, "**Vote Choice:** %s  \n", r.RecommendedChoice)
	fmt.Fprintf(&b, "**Confidence:** %.1f%%  \n", r.Confidence*100)
	fmt.Fprintf(&b, "**Risk Level:** %s  \n", r.RiskLevel)
	fmt.Fprintf(&b, "**Transparency Score:** %.1f%%  \n", r.TransparencyScore*100)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))

	fmt.Fprintf(&b, "## Summary\n\n%s\n\n", r.Summary)

	fmt.Fprintf(&b, "## Factors\n\n")
	if len(r.Factors) == 0 {
		fmt.Fprintf(&b, "No factors were available for this proposal.\n\n")
	} else {
		fmt.Fprintf(&b, "| Factor | Weight | Signal | Contribution | Direction | Detail |\n")
		fmt.Fprintf(&b, "|--------|--------|--------|--------------|-----------|--------|\n")
		for _, f := range r.Factors {
			fmt.Fprintf(&b, "| %s | %.2f | %+.2f | %+.3f | %s | %s |\n",
				f.Factor, f.Weight, f.Signal, f.Contribution, f.Direction, escapeCell(f.Detail))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Choice Scores\n\n")
	fmt.Fprintf(&b, "| Choice | Score |\n|--------|-------|\n")
	for _, s := range r.Scores {
		name := escapeCell(s.Choice)
		if s.Recommended {
			name = "**" + name + "**"
		}
		fmt.Fprintf(&b, "| %s | %+.3f |\n", name, s.Score)
	}
	if r.TieBroken {
		b.WriteString("\nScores were tied; the tie was broken in favour of the status quo.\n")
	}
	b.WriteString("\n")

	if len(r.DataSources) > 0 {
		fmt.Fprintf(&b, "## Data Sources\n\n")
		for _, s := range r.DataSources {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n\n*Reasoning Hash: `%s`*\n", r.ReasoningHash)
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// RenderTerminal renders markdown for a terminal. style is a glamour style name
// or "auto" to detect the terminal background.
func RenderTerminal(md, style string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	styleOpt := glamour.WithStandardStyle(style)
	if style == "" || style == "auto" {
		styleOpt = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return out, nil
}
