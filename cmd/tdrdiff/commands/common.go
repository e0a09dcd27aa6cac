package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/tdrdiff/internal/command"
	"git.home.luguber.info/inful/tdrdiff/internal/config"
	"git.home.luguber.info/inful/tdrdiff/internal/differ"
	derrors "git.home.luguber.info/inful/tdrdiff/internal/errors"
	"git.home.luguber.info/inful/tdrdiff/internal/git"
	"git.home.luguber.info/inful/tdrdiff/internal/logging"
	"git.home.luguber.info/inful/tdrdiff/internal/metrics"
	"git.home.luguber.info/inful/tdrdiff/internal/toolchain"
	"git.home.luguber.info/inful/tdrdiff/internal/workspace"
)

// Global carries per-invocation state shared by every command. Fields left
// nil take production defaults in AfterApply.
type Global struct {
	Stdout io.Writer
	Stderr io.Writer

	// ExeDir is where tdrdiff is installed; the tdr script, a bundled
	// latexdiff and the default workspace are found relative to it.
	ExeDir string
	// Home resolves relative --logfile names. Empty means $HOME.
	Home string

	// Runner, NewBackend and LookPath replace the real process runner, git
	// backend factory and PATH lookup.
	Runner     command.Runner
	NewBackend func(git.BackendOptions) (git.Backend, error)
	LookPath   func(string) (string, error)

	Logger   *logging.Logger
	Settings config.Settings
}

// CLI definition & global flags.
type CLI struct {
	Verbosity   int              `short:"v" type:"counter" env:"TDRDIFF_VERBOSITY" help:"Trace execution: WARN by default, -v INFO, -vv DEBUG, -vvv also echoes output of called programs."`
	Logfile     string           `short:"l" name:"logfile" env:"TDRDIFF_LOGFILE" help:"Append diagnostic DEBUG output to this file under $HOME. A bare -l means ${default_logfile}."`
	Config      string           `name:"config" env:"TDRDIFF_CONFIG" help:"Settings file. Default: ~/.config/tdrdiff/config.yaml (optional)."`
	Workdir     string           `name:"workdir" env:"TDRDIFF_WORKDIR" help:"Workspace holding clones and exports. Default: <install dir>/../build_tdrDiff."`
	MetricsFile string           `name:"metrics-file" env:"TDRDIFF_METRICS_FILE" help:"Write run metrics in Prometheus text format to this file."`
	Version     kong.VersionFlag `name:"version" help:"Show version and exit"`

	Diff  DiffCmd  `cmd:"" default:"withargs" help:"Generate <tag>_diff.pdf between two revisions (default command)."`
	Watch WatchCmd `cmd:"" help:"Rebuild the diff of the working tree against a revision whenever sources change."`
	Clean CleanCmd `cmd:"" help:"Remove cached exports and, optionally, the clone of a document."`
	Check CheckCmd `cmd:"" help:"Verify git, perl, tdr, latexdiff and latexmk and print where they were found."`
	Init  InitCmd  `cmd:"" help:"Write an example settings file."`
}

// Vars are the interpolation variables the CLI struct tags refer to.
func Vars(versionString string) kong.Vars {
	return kong.Vars{
		"version":          versionString,
		"default_logfile":  config.DefaultLogFile,
		"default_rev_base": config.DefaultRevBase,
		"default_rev_diff": config.DefaultRevDiff,
	}
}

// AfterApply runs after flag parsing: set up logging once and load settings.
func (c *CLI) AfterApply(kctx *kong.Context, g *Global) error {
	if g.Stdout == nil {
		g.Stdout = os.Stdout
	}
	if g.Stderr == nil {
		g.Stderr = os.Stderr
	}
	if g.ExeDir == "" {
		g.ExeDir = toolchain.ExecutableDir()
	}
	if g.NewBackend == nil {
		g.NewBackend = git.NewBackend
	}

	logger, err := logging.Setup(logging.Options{
		Verbosity: c.Verbosity,
		LogFile:   c.Logfile,
		Home:      g.Home,
		Stderr:    g.Stderr,
	})
	if err != nil {
		return derrors.Wrap(err, derrors.CategoryConfig, derrors.SeverityFatal, "cannot open log file")
	}
	g.Logger = logger
	slog.SetDefault(logger.Logger)

	if c.Verbosity > 0 {
		_, _ = fmt.Fprintf(g.Stdout, "\tVerbosity = %d\n\n", c.Verbosity)
	}
	logger.Debug("Creating tdrdiff instance; Starting logging")

	// init writes the file --config names, so it may not exist yet.
	path, optional := c.Config, strings.HasPrefix(kctx.Command(), "init")
	if path == "" {
		path, optional = config.DefaultSettingsPath(), true
	}
	settings, err := config.LoadSettings(config.ExpandHome(path), optional)
	if err != nil {
		return derrors.Wrap(err, derrors.CategoryConfig, derrors.SeverityFatal, "cannot load settings").
			WithContext("path", path)
	}
	g.Settings = settings
	if g.Runner == nil {
		g.Runner = command.NewExecRunner(logger.Echo, logger.Logger)
	}
	return nil
}

// Close releases resources opened by AfterApply.
func (g *Global) Close() error {
	if g.Logger == nil {
		return nil
	}
	return g.Logger.Close()
}

// workspaceDir applies flag > settings > default next to the executable.
func (c *CLI) workspaceDir(g *Global) (string, error) {
	dir := c.Workdir
	if dir == "" {
		dir = g.Settings.Workspace
	}
	if dir == "" {
		dir = workspace.DefaultDir(g.ExeDir)
	}
	abs, err := filepath.Abs(config.ExpandHome(dir))
	if err != nil {
		return "", derrors.WorkspaceError("resolve", err)
	}
	return abs, nil
}

func (c *CLI) metricsFile(g *Global) string {
	if c.MetricsFile != "" {
		return c.MetricsFile
	}
	return g.Settings.MetricsFile
}

// verifyTools runs the environment checks. Nothing touches the workspace
// before this succeeds.
func verifyTools(ctx context.Context, g *Global) (toolchain.Tools, error) {
	return toolchain.Verify(ctx, g.Runner, toolchain.Options{
		Settings: g.Settings.Tools,
		ExeDir:   g.ExeDir,
		LookPath: g.LookPath,
	})
}

// session is everything a workflow needs besides the job itself.
type session struct {
	tools    toolchain.Tools
	ws       *workspace.Manager
	recorder *metrics.PrometheusRecorder
}

func (c *CLI) openSession(ctx context.Context, g *Global) (*session, error) {
	tools, err := verifyTools(ctx, g)
	if err != nil {
		return nil, err
	}
	g.Logger.Debug("Environment verified",
		slog.String("git", tools.Git), slog.String("git_version", tools.GitVersion),
		slog.String("tdr", tools.TDR), slog.String("latexdiff", tools.Latexdiff), slog.String("latexmk", tools.Latexmk))

	dir, err := c.workspaceDir(g)
	if err != nil {
		return nil, err
	}
	return &session{
		tools:    tools,
		ws:       workspace.NewPersistentManager(dir, g.Logger.Logger),
		recorder: metrics.NewPrometheusRecorder(nil),
	}, nil
}

// workflow wires a differ.Workflow for job.
func (s *session) workflow(g *Global, job config.Job, invocationDir string) (*differ.Workflow, error) {
	vcs, err := g.NewBackend(git.BackendOptions{
		Settings: g.Settings.Git,
		Access:   job.Access,
		URL:      job.URL(),
		GitPath:  s.tools.Git,
		Runner:   g.Runner,
		Logger:   g.Logger.Logger,
		Progress: g.Logger.Echo,
	})
	if err != nil {
		return nil, err
	}
	exporter := differ.TDRExporter{
		Perl:   s.tools.Perl,
		TDR:    s.tools.TDR,
		Tag:    job.Tag,
		Admin:  g.Settings.Export.Admin,
		Runner: g.Runner,
	}
	return differ.New(job, s.tools, s.ws, vcs, exporter, g.Runner, s.recorder, g.Logger.Logger).
		WithOutput(g.Stdout).
		WithInvocationDir(invocationDir), nil
}

// writeMetrics exports the recorded metrics when a metrics file is configured.
func (s *session) writeMetrics(g *Global, path string) {
	if path == "" {
		return
	}
	if err := s.recorder.WriteTextfile(config.ExpandHome(path)); err != nil {
		g.Logger.Warn("Could not write metrics file", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	g.Logger.Debug("Wrote metrics", slog.String("path", path))
}

// JobFlags are the document and delivery flags shared by diff and watch.
type JobFlags struct {
	Tag              string `arg:"" name:"tag" help:"The document tag, e.g. HIG-18-001."`
	RevDiff          string `name:"revDiff" default:"${default_rev_diff}" help:"Revision for comparison. Accepts SHAs. Default: ${default}."`
	PlotsFromRevBase bool   `name:"plotsFromRevBase" help:"Use plots from revBase instead of revDiff."`
	Path             string `short:"p" name:"path" enum:"notes,papers" default:"notes" help:"Path below tdr to the document: an, dn, etc. and PAS are all under notes. Default: ${default}."`
	Outfile          string `name:"outfile" help:"Path for the output PDF file or a directory to put it in. Default: <tag>_diff.pdf in the current directory."`
	AccessType       string `name:"accessType" default:"ssh" help:"Git access type: http, ssh, krb or a full repository URL. Credentials must already be set up. Default: ${default}."`
}

func (f JobFlags) options(root *CLI, revBase string) config.JobOptions {
	return config.JobOptions{
		Tag:              f.Tag,
		Category:         f.Path,
		RevBase:          revBase,
		RevDiff:          f.RevDiff,
		AccessType:       f.AccessType,
		OutFile:          f.Outfile,
		LogFile:          root.Logfile,
		Verbosity:        root.Verbosity,
		PlotsFromRevBase: f.PlotsFromRevBase,
	}
}
