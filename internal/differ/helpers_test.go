package differ

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/tdrdiff/internal/command"
	"git.home.luguber.info/inful/tdrdiff/internal/config"
	"git.home.luguber.info/inful/tdrdiff/internal/git"
	"git.home.luguber.info/inful/tdrdiff/internal/metrics"
	"git.home.luguber.info/inful/tdrdiff/internal/pdfcheck"
	"git.home.luguber.info/inful/tdrdiff/internal/toolchain"
	"git.home.luguber.info/inful/tdrdiff/internal/workspace"
)

const (
	testTag  = "TEST-00-001"
	hashHEAD = "1111111111111111111111111111111111111111"
	hashPrev = "2222222222222222222222222222222222222222"
	hashV1   = "3333333333333333333333333333333333333333"
)

// fakeVCS resolves from a fixed table and records checkouts.
type fakeVCS struct {
	mu        sync.Mutex
	refs      map[string]string
	cloneErr  error
	clones    int
	resolved  []string
	checkouts []string
}

func newFakeVCS() *fakeVCS {
	return &fakeVCS{refs: map[string]string{"HEAD": hashHEAD, "HEAD~1": hashPrev, "v1": hashV1}}
}

func (f *fakeVCS) EnsureClone(ctx context.Context, _, dir string) (git.CloneResult, error) {
	if err := ctx.Err(); err != nil {
		return git.CloneResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cloneErr != nil {
		return git.CloneResult{}, f.cloneErr
	}
	f.clones++
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o750); err != nil {
		return git.CloneResult{}, err
	}
	return git.CloneResult{Path: dir, Cloned: f.clones == 1, Branch: "master", Head: hashHEAD}, nil
}

func (f *fakeVCS) Resolve(_ context.Context, _, rev string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, rev)
	h, ok := f.refs[rev]
	if !ok {
		return "", &git.RevisionError{Revision: rev, Err: errors.New("unknown revision")}
	}
	return h, nil
}

func (f *fakeVCS) Checkout(_ context.Context, _, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, hash)
	return nil
}

// fakeExporter writes <src>/export/<tag>_temp.tex and records source dirs.
type fakeExporter struct {
	mu      sync.Mutex
	srcDirs []string
	fail    error
	noOut   bool
}

func (f *fakeExporter) Export(_ context.Context, srcDir string) (string, error) {
	f.mu.Lock()
	f.srcDirs = append(f.srcDirs, srcDir)
	fail, noOut := f.fail, f.noOut
	f.mu.Unlock()

	if noOut {
		return "", fail
	}
	out := filepath.Join(srcDir, ExportDirName)
	if err := os.MkdirAll(out, 0o750); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(out, testTag+"_temp.tex"), []byte(srcDir), 0o600); err != nil {
		return "", err
	}
	return out, fail
}

func (f *fakeExporter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.srcDirs)
}

// texRunner answers latexdiff with a diff document and makes latexmk drop
// a PDF next to its input, unless configured to fail.
func texRunner(buildErr error) *command.Fake {
	return &command.Fake{Handler: func(c command.Cmd) (command.Result, error) {
		switch c.Name {
		case "latexdiff":
			return command.Result{Stdout: "\\DIFadd{new text}"}, nil
		case "latexmk":
			if buildErr != nil {
				return command.Result{ExitCode: 12}, buildErr
			}
			tex := c.Args[len(c.Args)-1]
			pdf := tex[:len(tex)-len(".tex")] + ".pdf"
			return command.Result{}, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o600)
		}
		return command.Result{}, nil
	}}
}

// recorder keeps what the workflow reported.
type recorder struct {
	metrics.NoopRecorder
	mu       sync.Mutex
	results  map[string]metrics.ResultLabel
	outcome  metrics.RunOutcomeLabel
	hits     int
	misses   int
	pdfPages int
}

func newRecorder() *recorder { return &recorder{results: map[string]metrics.ResultLabel{}} }

func (r *recorder) IncStageResult(stage string, res metrics.ResultLabel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[stage] = res
}

func (r *recorder) IncRunOutcome(o metrics.RunOutcomeLabel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcome = o
}

func (r *recorder) IncExportCache(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func (r *recorder) SetPDFPages(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pdfPages = n
}

// fixture bundles a workflow with its fakes.
type fixture struct {
	t        *testing.T
	wsDir    string
	startDir string
	vcs      *fakeVCS
	exporter *fakeExporter
	runner   *command.Fake
	rec      *recorder
	out      *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		t:        t,
		wsDir:    t.TempDir(),
		startDir: t.TempDir(),
		vcs:      newFakeVCS(),
		exporter: &fakeExporter{},
		runner:   texRunner(nil),
		rec:      newRecorder(),
		out:      &bytes.Buffer{},
	}
}

func (f *fixture) job(opts config.JobOptions) config.Job {
	f.t.Helper()
	if opts.Tag == "" {
		opts.Tag = testTag
	}
	job, err := config.NewJob(opts)
	require.NoError(f.t, err)
	return job
}

func (f *fixture) workflow(job config.Job) *Workflow {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tools := toolchain.Tools{Latexdiff: "latexdiff", Latexmk: "latexmk", Perl: "perl", TDR: "tdr"}
	ws := workspace.NewPersistentManager(f.wsDir, logger)
	fixed := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	return New(job, tools, ws, f.vcs, f.exporter, f.runner, f.rec, logger).
		WithOutput(f.out).
		WithInvocationDir(f.startDir).
		WithClock(func() time.Time { return fixed }).
		WithInspector(func(path string) (pdfcheck.Info, error) {
			return pdfcheck.Info{Path: path, Pages: 3}, nil
		})
}

func (f *fixture) exportDir(key string) string {
	return filepath.Join(f.wsDir, "export_"+key)
}

// safeBuffer is a bytes.Buffer safe for concurrent log writes.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func debugLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
