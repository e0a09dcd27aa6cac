package differ

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/tdrdiff/internal/command"
	"git.home.luguber.info/inful/tdrdiff/internal/config"
	derrors "git.home.luguber.info/inful/tdrdiff/internal/errors"
	"git.home.luguber.info/inful/tdrdiff/internal/exportcache"
	"git.home.luguber.info/inful/tdrdiff/internal/git"
	"git.home.luguber.info/inful/tdrdiff/internal/logfields"
	"git.home.luguber.info/inful/tdrdiff/internal/logging"
	"git.home.luguber.info/inful/tdrdiff/internal/metrics"
	"git.home.luguber.info/inful/tdrdiff/internal/pdfcheck"
	"git.home.luguber.info/inful/tdrdiff/internal/toolchain"
	"git.home.luguber.info/inful/tdrdiff/internal/workspace"
)

// VCS is the subset of git a run needs.
type VCS = git.Backend

// Inspector checks a delivered PDF.
type Inspector func(path string) (pdfcheck.Info, error)

const timestampLayout = "2006-01-02 15:04 MST"

// Notes printed after a failed latexmk run.
var buildHints = []string{
	"[Note] Errors can be ignored, in the case there are new plots.",
	"[Note] revBase plots can be used instead of revDiff plots with --plotsFromRevBase option.",
	"Run again with verbosity > 2 to get error output from latexmk.",
}

// Workflow runs one diff of two revisions of a document.
type Workflow struct {
	job      config.Job
	tools    toolchain.Tools
	ws       *workspace.Manager
	vcs      VCS
	exporter Exporter
	runner   command.Runner
	recorder metrics.Recorder
	logger   *slog.Logger

	cache         *exportcache.Cache
	out           io.Writer
	invocationDir string
	inspect       Inspector
	now           func() time.Time
}

// New wires a workflow. A nil recorder or logger falls back to a no-op
// recorder and slog.Default.
func New(job config.Job, tools toolchain.Tools, ws *workspace.Manager, vcs VCS, exporter Exporter,
	runner command.Runner, recorder metrics.Recorder, logger *slog.Logger,
) *Workflow {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		job:      job,
		tools:    tools,
		ws:       ws,
		vcs:      vcs,
		exporter: exporter,
		runner:   runner,
		recorder: recorder,
		logger:   logger,
		cache:    exportcache.New(ws.GetPath(), logger),
		out:      os.Stdout,
		inspect:  pdfcheck.Inspect,
		now:      time.Now,
	}
}

// WithOutput redirects the progress lines normally printed to stdout.
func (w *Workflow) WithOutput(out io.Writer) *Workflow {
	w.out = out
	return w
}

// WithInvocationDir sets the directory the tool was started from. It is the
// source of the working-tree export and the default PDF destination.
// Defaults to the process working directory.
func (w *Workflow) WithInvocationDir(dir string) *Workflow {
	w.invocationDir = dir
	return w
}

// WithInspector replaces the PDF check run on delivery.
func (w *Workflow) WithInspector(fn Inspector) *Workflow {
	w.inspect = fn
	return w
}

// WithClock replaces time.Now.
func (w *Workflow) WithClock(now func() time.Time) *Workflow {
	w.now = now
	return w
}

// Cache exposes the export cache the workflow uses.
func (w *Workflow) Cache() *exportcache.Cache { return w.cache }

// Run executes the workflow. The returned report is never nil. The error is
// non-nil only when a fatal step stopped the run or ctx was canceled;
// recoverable failures are listed in the report.
func (w *Workflow) Run(ctx context.Context) (*Report, error) {
	rep := &Report{
		RunID:   uuid.NewString(),
		Tag:     w.job.Tag,
		Started: w.now().UTC(),
	}
	ctx = logging.WithRunID(ctx, rep.RunID)
	ctx = logging.WithTag(ctx, w.job.Tag)
	w.logger.DebugContext(ctx, fmt.Sprintf("#### Start: %s. Target: %s", rep.Started.Format(timestampLayout), w.job.Tag))

	err := w.run(ctx, rep)

	rep.Finished = w.now().UTC()
	w.recorder.ObserveRunDuration(rep.Duration())
	w.recorder.IncRunOutcome(runOutcome(ctx, rep, err))
	w.logger.DebugContext(ctx, fmt.Sprintf("#### Finish: %s. Target: %s", rep.Finished.Format(timestampLayout), w.job.Tag))
	return rep, err
}

func (w *Workflow) run(ctx context.Context, rep *Report) error {
	invocationDir, err := w.startDir()
	if err != nil {
		return err
	}

	start := time.Now()
	if err := w.ws.Create(); err != nil {
		return w.fatal(ctx, rep, StageWorkspace, start, err, func(e error) error { return derrors.WorkspaceError("create", e) })
	}
	w.record(ctx, rep, StepResult{Stage: StageWorkspace, Path: w.ws.GetPath()}, start)

	cloneDir, err := w.ensureClone(ctx, rep)
	if err != nil {
		return err
	}
	if err := w.resolve(ctx, rep, cloneDir); err != nil {
		return err
	}

	// Base revision.
	start = time.Now()
	if !rep.Base.IsCurrent() && rep.Base.Ref != "HEAD" {
		if err := w.vcs.Checkout(ctx, cloneDir, rep.Base.Hash); err != nil {
			return w.fatal(ctx, rep, StageCheckoutBase, start, err, func(e error) error { return derrors.GitCheckoutError(rep.Base.Ref, e) })
		}
		w.printf("Checked out revBase: %s\n", rep.Base.Ref)
		w.record(ctx, rep, StepResult{Stage: StageCheckoutBase}, start)
	} else {
		w.record(ctx, rep, StepResult{Stage: StageCheckoutBase, Outcome: OutcomeSkipped}, start)
	}

	baseSrc := cloneDir
	if rep.Base.IsCurrent() {
		baseSrc = invocationDir
	}
	rep.BaseDir, err = w.export(ctx, rep, StageExportBase, "revBase", rep.Base, baseSrc)
	if err != nil {
		return err
	}

	// Comparison revision, always checked out.
	start = time.Now()
	if err := w.vcs.Checkout(ctx, cloneDir, rep.Diff.Hash); err != nil {
		return w.fatal(ctx, rep, StageCheckoutDiff, start, err, func(e error) error { return derrors.GitCheckoutError(rep.Diff.Ref, e) })
	}
	w.printf("Checked out revDiff: %s\n", rep.Diff.Ref)
	w.record(ctx, rep, StepResult{Stage: StageCheckoutDiff}, start)

	rep.DiffDir, err = w.export(ctx, rep, StageExportDiff, "revDiff", rep.Diff, cloneDir)
	if err != nil {
		return err
	}

	rep.Workdir = rep.DiffDir
	if w.job.PlotsFromRevBase {
		rep.Workdir = rep.BaseDir
	}

	if err := w.diff(ctx, rep); err != nil {
		return err
	}
	if err := w.build(ctx, rep); err != nil {
		return err
	}
	w.deliver(ctx, rep, invocationDir)
	return nil
}

func (w *Workflow) startDir() (string, error) {
	if w.invocationDir != "" {
		return filepath.Abs(w.invocationDir)
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", derrors.WorkspaceError("getwd", err)
	}
	return dir, nil
}

func (w *Workflow) ensureClone(ctx context.Context, rep *Report) (string, error) {
	ctx = logging.WithStage(ctx, StageClone)
	start := time.Now()
	url := w.job.URL()
	dir := w.ws.CloneDir(w.job.Tag)

	w.logger.InfoContext(ctx, "Preparing clone", logfields.URL(url), logfields.Path(dir))
	res, err := w.vcs.EnsureClone(ctx, url, dir)
	if err != nil {
		return "", w.fatal(ctx, rep, StageClone, start, err, func(e error) error { return derrors.GitCloneError(url, e) })
	}
	switch {
	case res.Cloned:
		w.printf("Checked out %s\n", url)
	case res.Offline:
		w.printf("Could not update %s. Using the existing clone as it is.\n", dir)
	default:
		w.logger.InfoContext(ctx, "Reusing clone", logfields.Path(dir), slog.String("branch", res.Branch), logfields.Hash(res.Head))
	}
	w.record(ctx, rep, StepResult{Stage: StageClone, Path: dir}, start)
	return dir, nil
}

func (w *Workflow) resolve(ctx context.Context, rep *Report, cloneDir string) error {
	start := time.Now()
	rep.Base = Revision{Ref: w.job.RevBase}
	rep.Diff = Revision{Ref: w.job.RevDiff}

	if !w.job.BaseIsCurrent() {
		h, err := w.vcs.Resolve(ctx, cloneDir, rep.Base.Ref)
		if err != nil {
			return w.fatal(ctx, rep, StageResolve, start, err, func(e error) error { return derrors.GitResolveError(rep.Base.Ref, e) })
		}
		rep.Base.Hash = h
	}
	h, err := w.vcs.Resolve(ctx, cloneDir, rep.Diff.Ref)
	if err != nil {
		return w.fatal(ctx, rep, StageResolve, start, err, func(e error) error { return derrors.GitResolveError(rep.Diff.Ref, e) })
	}
	rep.Diff.Hash = h

	w.printf("#### Build parameters ####\n")
	w.printf("revBase: %s\n", rep.Base)
	w.printf("revDiff: %s\n", rep.Diff)
	w.printf("workDir: %s\n", w.ws.GetPath())
	w.printf("#### Build parameters ####\n\n")
	w.record(ctx, rep, StepResult{Stage: StageResolve}, start)
	return nil
}

// export fills the cache entry for rev from srcDir. Only cache storage
// failures and cancellation are returned as errors; a failed tdr run is
// recorded as recoverable and the entry is flagged incomplete.
func (w *Workflow) export(ctx context.Context, rep *Report, stage, label string, rev Revision, srcDir string) (string, error) {
	ctx = logging.WithStage(ctx, stage)
	start := time.Now()
	key := rev.Key()
	w.printf("Building export directory for %s: %s\n", label, rev.Ref)

	var exportErr error
	path, hit, err := w.cache.Ensure(ctx, key, exportcache.PolicyFor(key), func(ctx context.Context) (string, error) {
		staged, err := w.exporter.Export(ctx, srcDir)
		if err != nil {
			exportErr = err
			if staged == "" {
				return "", err
			}
		}
		return staged, nil
	})
	if cerr := ctx.Err(); cerr != nil {
		return "", w.fatal(ctx, rep, stage, start, cerr, nil)
	}
	if err != nil && exportErr == nil {
		return "", w.fatal(ctx, rep, stage, start, err, func(e error) error { return derrors.WorkspaceError("store export", e) })
	}
	if err == nil {
		w.recorder.IncExportCache(hit)
	}

	res := StepResult{Stage: stage, Path: path, CacheHit: hit}
	if path == "" {
		path = w.cache.Path(key)
		res.Path = path
	}
	if exportErr != nil {
		attrs := append([]any{logfields.Revision(rev.Ref), logfields.Error(exportErr)}, command.OutputAttrs(exportErr)...)
		w.logger.ErrorContext(ctx, fmt.Sprintf("Problems running rev %s. Full error message follows.", rev.Ref), attrs...)
		if err == nil {
			if merr := w.cache.MarkIncomplete(key); merr != nil {
				w.logger.WarnContext(ctx, "Could not flag export as incomplete", logfields.Error(merr))
			}
		}
		res.Outcome = OutcomeRecoverable
		res.Err = fmt.Errorf("%w: %w", ErrExportFailed, derrors.ExportFailed(rev.Ref, exportErr))
	}
	switch {
	case hit:
		w.printf("Export %s exists. Do not need to rebuild.\n\n", path)
	case err == nil:
		w.printf("Output of %s: %s moved to %s\n\n", label, rev.Ref, path)
	}
	w.record(ctx, rep, res, start)
	return path, nil
}

func (w *Workflow) diff(ctx context.Context, rep *Report) error {
	ctx = logging.WithStage(ctx, StageDiff)
	start := time.Now()
	rep.DiffTeX = filepath.Join(rep.Workdir, w.job.DiffSource())

	w.printf("Working in %s\n\n", rep.Workdir)
	if st, err := os.Stat(rep.Workdir); err != nil || !st.IsDir() {
		cause := fmt.Errorf("working directory %s is missing", rep.Workdir)
		w.recoverable(ctx, rep, StageDiff, start, fmt.Errorf("%w: %w", ErrDiffFailed, derrors.DiffFailed(cause)))
		return nil
	}

	c := command.Cmd{
		Name: w.tools.Latexdiff,
		Args: []string{
			"--verbose", "--flatten",
			filepath.Join(rep.DiffDir, w.job.MainFile()),
			filepath.Join(rep.BaseDir, w.job.MainFile()),
		},
		Dir: rep.Workdir,
	}
	w.printf("Running latexdiff: %s\n", c)
	w.printf("Output latexdiff file: %s\n", rep.DiffTeX)

	f, err := os.Create(rep.DiffTeX)
	if err != nil {
		w.recoverable(ctx, rep, StageDiff, start, fmt.Errorf("%w: %w", ErrDiffFailed, derrors.DiffFailed(err)))
		return nil
	}
	c.Stdout = f
	_, runErr := w.runner.Run(ctx, c)
	if cerr := f.Close(); cerr != nil && runErr == nil {
		runErr = cerr
	}
	if cerr := ctx.Err(); cerr != nil {
		return w.fatal(ctx, rep, StageDiff, start, cerr, nil)
	}
	if runErr != nil {
		w.logger.ErrorContext(ctx, "Problems running latexdiff. Full error message follows.", logfields.Error(runErr))
		w.recoverable(ctx, rep, StageDiff, start, fmt.Errorf("%w: %w", ErrDiffFailed, derrors.DiffFailed(runErr)))
		return nil
	}
	w.record(ctx, rep, StepResult{Stage: StageDiff, Path: rep.DiffTeX}, start)
	return nil
}

func (w *Workflow) build(ctx context.Context, rep *Report) error {
	ctx = logging.WithStage(ctx, StageBuild)
	start := time.Now()
	if _, err := os.Stat(rep.DiffTeX); err != nil {
		w.logger.WarnContext(ctx, "No diff document to build", logfields.Path(rep.DiffTeX))
		w.record(ctx, rep, StepResult{Stage: StageBuild, Outcome: OutcomeSkipped}, start)
		return nil
	}

	c := command.Cmd{
		Name: w.tools.Latexmk,
		Args: []string{"-pdf", "-f", "-latexoption=-interaction=batchmode", rep.DiffTeX},
		Dir:  rep.Workdir,
	}
	w.printf("Running latexmk: %s\n", c)
	_, err := w.runner.Run(ctx, c)
	if cerr := ctx.Err(); cerr != nil {
		return w.fatal(ctx, rep, StageBuild, start, cerr, nil)
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "Problems running latexmk. Full error message follows.",
			append([]any{logfields.Error(err)}, command.OutputAttrs(err)...)...)
		for _, h := range buildHints {
			w.printf("%s\n", h)
		}
		w.recoverable(ctx, rep, StageBuild, start, fmt.Errorf("%w: %w", ErrPDFBuildFailed, derrors.PDFBuildFailed(err)))
		return nil
	}
	w.record(ctx, rep, StepResult{Stage: StageBuild}, start)
	return nil
}

func (w *Workflow) deliver(ctx context.Context, rep *Report, invocationDir string) {
	ctx = logging.WithStage(ctx, StageDeliver)
	start := time.Now()
	src := filepath.Join(rep.Workdir, w.job.DiffPDF())
	if _, err := os.Stat(src); err != nil {
		w.logger.WarnContext(ctx, "PDF file not created", logfields.Path(src))
		w.recoverable(ctx, rep, StageDeliver, start, fmt.Errorf("%w: %w", ErrPDFMissing, derrors.PDFMissing(src)))
		return
	}

	dest, err := destination(w.job.OutFile, invocationDir, w.job.DiffPDF())
	if err == nil {
		err = exportcache.CopyFile(src, dest)
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "Could not copy PDF", logfields.Path(src), logfields.Error(err))
		w.recoverable(ctx, rep, StageDeliver, start, derrors.Wrap(err, derrors.CategoryDelivery, derrors.SeverityError, "copy PDF"))
		return
	}
	rep.PDF = dest
	w.printf("Copied latexdiff output to %s\n", dest)

	if info, ierr := w.inspect(dest); ierr != nil {
		w.logger.WarnContext(ctx, "Delivered PDF failed validation", logfields.Path(dest), logfields.Error(ierr))
	} else {
		rep.Pages = info.Pages
		w.recorder.SetPDFPages(info.Pages)
		w.logger.InfoContext(ctx, "Delivered PDF", logfields.Path(dest), slog.Int("pages", info.Pages))
	}
	w.record(ctx, rep, StepResult{Stage: StageDeliver, Path: dest}, start)
}

// destination resolves where the PDF goes: into outFile when it is a
// directory (existing, or spelled with a trailing separator), to outFile
// itself otherwise, and into invocationDir when outFile is empty.
func destination(outFile, invocationDir, name string) (string, error) {
	if outFile == "" {
		return filepath.Join(invocationDir, name), nil
	}
	if !filepath.IsAbs(outFile) {
		outFile = filepath.Join(invocationDir, outFile)
	}
	if st, err := os.Stat(outFile); err == nil && st.IsDir() {
		return filepath.Join(outFile, name), nil
	}
	if strings.HasSuffix(outFile, string(filepath.Separator)) || strings.HasSuffix(outFile, "/") {
		if err := os.MkdirAll(outFile, 0o750); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return filepath.Join(outFile, name), nil
	}
	return outFile, nil
}

func (w *Workflow) record(ctx context.Context, rep *Report, res StepResult, start time.Time) {
	res.Duration = time.Since(start)
	rep.add(res)
	w.recorder.ObserveStageDuration(res.Stage, res.Duration)
	w.recorder.IncStageResult(res.Stage, res.Outcome.label())

	attrs := []any{
		logfields.Stage(res.Stage),
		logfields.Outcome(res.Outcome.String()),
		logfields.DurationMS(float64(res.Duration.Microseconds()) / 1000),
	}
	if res.CacheHit {
		attrs = append(attrs, slog.Bool("cache_hit", true))
	}
	if res.Err != nil {
		attrs = append(attrs, logfields.Error(res.Err))
	}
	w.logger.DebugContext(ctx, "Stage finished", attrs...)
}

func (w *Workflow) recoverable(ctx context.Context, rep *Report, stage string, start time.Time, err error) {
	w.record(ctx, rep, StepResult{Stage: stage, Outcome: OutcomeRecoverable, Err: err}, start)
}

// fatal records a fatal step and returns the error to stop the run with.
// Classified errors pass through; others are wrapped by classify.
func (w *Workflow) fatal(ctx context.Context, rep *Report, stage string, start time.Time, err error, classify func(error) error) error {
	if _, ok := derrors.AsClassified(err); !ok && classify != nil && !isCanceled(err) {
		err = classify(err)
	}
	w.record(ctx, rep, StepResult{Stage: stage, Outcome: OutcomeFatal, Err: err}, start)
	return err
}

func (w *Workflow) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format, args...)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func runOutcome(ctx context.Context, rep *Report, err error) metrics.RunOutcomeLabel {
	switch {
	case err == nil && rep.Delivered():
		return metrics.RunDelivered
	case err == nil:
		return metrics.RunNoPDF
	case ctx.Err() != nil || isCanceled(err):
		return metrics.RunCanceled
	}
	return metrics.RunFailed
}
