package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/tdrdiff/internal/config"
	derrors "git.home.luguber.info/inful/tdrdiff/internal/errors"
	"git.home.luguber.info/inful/tdrdiff/internal/watch"
)

// WatchCmd implements the 'watch' command: the base is always the working
// tree, rebuilt on every change.
type WatchCmd struct {
	JobFlags `embed:""`

	Debounce time.Duration `name:"debounce" default:"500ms" help:"Quiet period after the last change before rebuilding."`
}

func (w *WatchCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	job, err := config.NewJob(w.options(root, config.CurrentTree))
	if err != nil {
		return err
	}
	sess, err := root.openSession(ctx, g)
	if err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return derrors.WorkspaceError("getwd", err)
	}
	metricsFile := root.metricsFile(g)

	watcher := watch.New(cwd,
		watch.WithDebounce(w.Debounce),
		watch.WithLogger(g.Logger.Logger),
		watch.WithIgnore(insideDir(cwd, sess.ws.GetPath())),
	)
	return watcher.Run(ctx, func(ctx context.Context) error {
		wf, err := sess.workflow(g, job, cwd)
		if err != nil {
			return err
		}
		rep, err := wf.Run(ctx)
		sess.writeMetrics(g, metricsFile)
		if err != nil {
			return err
		}
		summarize(g, rep)
		return nil
	})
}

// insideDir returns a predicate matching paths, relative to root, that lie
// in dir.
func insideDir(root, dir string) func(string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return func(string) bool { return false }
	}
	return func(p string) bool {
		return p == rel || strings.HasPrefix(p, rel+string(filepath.Separator))
	}
}
