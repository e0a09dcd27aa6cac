// Package command runs the external tools tdrdiff drives (git, perl/tdr,
// latexdiff, latexmk) behind a small interface so the workflow can be
// exercised with fakes.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"git.home.luguber.info/inful/tdrdiff/internal/logfields"
)

// ErrCommandFailed marks a process that ran but exited non-zero.
var ErrCommandFailed = errors.New("command failed")

// Cmd describes one process invocation.
type Cmd struct {
	Name string
	Args []string
	// Dir is the working directory. The process-wide directory is never
	// changed, so every caller sets it.
	Dir string
	// Env is appended to the current environment.
	Env []string
	// Stdout, when set, receives standard output instead of Result.Stdout.
	Stdout io.Writer
}

// String renders the command line for logs.
func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is what a finished process left behind.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, c Cmd) (Result, error)
}

// ExitError is returned for non-zero exits. It matches ErrCommandFailed.
// Error() shortens stderr; Stdout and Stderr hold everything captured.
type ExitError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + lastLines(s, 5)
	}
	return msg
}

func (e *ExitError) Is(target error) bool { return target == ErrCommandFailed }

// OutputAttrs returns the captured output of a failed command found in err's
// chain as log attributes, or nil when there is none.
func OutputAttrs(err error) []any {
	var ee *ExitError
	if !errors.As(err, &ee) {
		return nil
	}
	var attrs []any
	if s := strings.TrimSpace(ee.Stdout); s != "" {
		attrs = append(attrs, logfields.Stdout(s))
	}
	if s := strings.TrimSpace(ee.Stderr); s != "" {
		attrs = append(attrs, logfields.Stderr(s))
	}
	return attrs
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Echo copies the child's output to EchoTo while still capturing it.
	Echo   bool
	EchoTo io.Writer
	Logger *slog.Logger
}

// NewExecRunner returns a runner that echoes child output to stderr when
// echo is true.
func NewExecRunner(echo bool, logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{Echo: echo, EchoTo: os.Stderr, Logger: logger}
}

func (r *ExecRunner) Run(ctx context.Context, c Cmd) (Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// #nosec G204 -- tool paths come from toolchain verification
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	var outW io.Writer = &stdout
	if c.Stdout != nil {
		outW = c.Stdout
	}
	var errW io.Writer = &stderr
	if r.Echo && r.EchoTo != nil {
		outW = io.MultiWriter(outW, r.EchoTo)
		errW = io.MultiWriter(errW, r.EchoTo)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	logger.DebugContext(ctx, "Running command", "command", c.String(), logfields.Path(c.Dir))
	start := time.Now()
	err := cmd.Run()
	res := Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s: %w", c.Name, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		logger.DebugContext(ctx, "Command failed", "command", c.String(), logfields.ExitCode(res.ExitCode))
		return res, &ExitError{Command: c.Name, ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
	}
	return res, fmt.Errorf("run %s: %w", c.Name, err)
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
