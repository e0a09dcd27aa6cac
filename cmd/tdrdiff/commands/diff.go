package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/tdrdiff/internal/config"
	"git.home.luguber.info/inful/tdrdiff/internal/differ"
	derrors "git.home.luguber.info/inful/tdrdiff/internal/errors"
	"git.home.luguber.info/inful/tdrdiff/internal/logfields"
)

// DiffCmd implements the default command.
//
// Runs sharing a workspace must not overlap: the clone and the export
// directories are used without locking.
type DiffCmd struct {
	JobFlags `embed:""`

	RevBase string `name:"revBase" default:"${default_rev_base}" help:"Base revision. Default: ${default}. \".\" uses the current working directory instead of checking out a version."`
	Strict  bool   `name:"strict" env:"TDRDIFF_STRICT" help:"Exit non-zero when no PDF was delivered."`
}

func (d *DiffCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	job, err := config.NewJob(d.options(root, d.RevBase))
	if err != nil {
		return err
	}
	sess, err := root.openSession(ctx, g)
	if err != nil {
		return err
	}
	defer sess.writeMetrics(g, root.metricsFile(g))

	cwd, err := os.Getwd()
	if err != nil {
		return derrors.WorkspaceError("getwd", err)
	}
	wf, err := sess.workflow(g, job, cwd)
	if err != nil {
		return err
	}
	rep, err := wf.Run(ctx)
	if err != nil {
		return err
	}
	summarize(g, rep)
	if d.Strict && !rep.Delivered() {
		return derrors.Wrap(rep.Err(), derrors.CategoryDelivery, derrors.SeverityFatal, "no PDF delivered").
			WithContext("tag", job.Tag)
	}
	return nil
}

// summarize logs the recoverable failures of a run.
func summarize(g *Global, rep *differ.Report) {
	for _, s := range rep.Steps {
		if s.Outcome != differ.OutcomeRecoverable {
			continue
		}
		g.Logger.Warn(fmt.Sprintf("Step %s did not complete", s.Stage),
			logfields.RunID(rep.RunID), logfields.Stage(s.Stage), logfields.Error(s.Err))
	}
	g.Logger.Info("Run finished",
		logfields.RunID(rep.RunID),
		logfields.Tag(rep.Tag),
		logfields.Path(rep.PDF),
		slog.Int("pages", rep.Pages),
		logfields.DurationMS(float64(rep.Duration().Milliseconds())))
}
