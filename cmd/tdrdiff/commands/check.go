package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
)

// CheckCmd implements the 'check' command.
type CheckCmd struct{}

func (c *CheckCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	tools, err := verifyTools(ctx, g)
	if err != nil {
		return err
	}
	dir, err := root.workspaceDir(g)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(g.Stdout, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"git", fmt.Sprintf("%s (%s)", tools.Git, tools.GitVersion)},
		{"perl", tools.Perl},
		{"tdr", tools.TDR},
		{"latexdiff", tools.Latexdiff},
		{"latexmk", tools.Latexmk},
		{"workspace", dir},
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(tw, "%s:\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}
