package differ

import (
	"errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/tdrdiff/internal/config"
	"git.home.luguber.info/inful/tdrdiff/internal/exportcache"
	"git.home.luguber.info/inful/tdrdiff/internal/metrics"
)

// Recoverable failure kinds. Errors in Report.Steps wrap one of these.
var (
	ErrExportFailed   = errors.New("export failed")
	ErrDiffFailed     = errors.New("latexdiff failed")
	ErrPDFBuildFailed = errors.New("pdf build failed")
	ErrPDFMissing     = errors.New("PDF file not created")
)

// Stage names, used in logs, metrics and StepResult.
const (
	StageWorkspace    = "workspace"
	StageClone        = "clone"
	StageResolve      = "resolve"
	StageCheckoutBase = "checkout_base"
	StageExportBase   = "export_base"
	StageCheckoutDiff = "checkout_diff"
	StageExportDiff   = "export_diff"
	StageDiff         = "diff"
	StageBuild        = "build"
	StageDeliver      = "deliver"
)

// Outcome classifies how a step ended.
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeRecoverable means the step failed but the run went on.
	OutcomeRecoverable
	// OutcomeFatal stops the run.
	OutcomeFatal
	// OutcomeSkipped means the step had nothing to do.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRecoverable:
		return "recoverable"
	case OutcomeFatal:
		return "fatal"
	case OutcomeSkipped:
		return "skipped"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

func (o Outcome) label() metrics.ResultLabel {
	switch o {
	case OutcomeRecoverable:
		return metrics.ResultRecoverable
	case OutcomeFatal:
		return metrics.ResultFatal
	case OutcomeSkipped:
		return metrics.ResultSkipped
	}
	return metrics.ResultOK
}

// Revision is a reference as the user gave it plus the commit it resolved to.
type Revision struct {
	Ref  string
	Hash string
}

// IsCurrent reports whether the revision is the working-tree sentinel.
func (r Revision) IsCurrent() bool { return r.Ref == config.CurrentTree }

// Key is the export cache key: the hash, or exportcache.CurrentKey for the
// working tree.
func (r Revision) Key() string {
	if r.IsCurrent() {
		return exportcache.CurrentKey
	}
	return r.Hash
}

func (r Revision) String() string {
	return fmt.Sprintf("%s hash(%s)", r.Ref, r.Key())
}

// StepResult records one stage of a run.
type StepResult struct {
	Stage    string
	Outcome  Outcome
	Err      error
	Duration time.Duration
	// Path is the directory or file the stage produced, if any.
	Path string
	// CacheHit is set for export stages served from the cache.
	CacheHit bool
}

// Report describes a finished (or aborted) run.
type Report struct {
	RunID    string
	Tag      string
	Base     Revision
	Diff     Revision
	BaseDir  string // export directory of the base revision
	DiffDir  string // export directory of the comparison revision
	Workdir  string // export directory latexdiff and latexmk ran in
	DiffTeX  string
	PDF      string // delivered PDF, empty when nothing was delivered
	Pages    int
	Steps    []StepResult
	Started  time.Time
	Finished time.Time
}

// Delivered reports whether a PDF was copied to its destination.
func (r *Report) Delivered() bool { return r.PDF != "" }

// Step returns the result recorded for stage.
func (r *Report) Step(stage string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Stage == stage {
			return s, true
		}
	}
	return StepResult{}, false
}

// Err joins the errors of every step that did not succeed.
func (r *Report) Err() error {
	var errs []error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

func (r *Report) add(s StepResult) { r.Steps = append(r.Steps, s) }
