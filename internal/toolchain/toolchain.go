// Package toolchain locates the external programs a diff run needs and
// checks the git version before any workspace is touched.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"

	"git.home.luguber.info/inful/tdrdiff/internal/command"
	"git.home.luguber.info/inful/tdrdiff/internal/config"
	derrors "git.home.luguber.info/inful/tdrdiff/internal/errors"
)

// MinGitVersion is the oldest git release with the submodule behaviour the
// tdr repositories rely on.
const MinGitVersion = "2.9"

// Tools are the verified absolute paths of every external program.
type Tools struct {
	Git        string
	GitVersion string // major.minor[.patch] as reported by git --version
	Perl       string
	TDR        string
	Latexdiff  string
	Latexmk    string
}

// Options controls where Verify looks.
type Options struct {
	Settings config.ToolSettings
	// ExeDir is the directory holding the tdrdiff executable. The tdr script
	// and a bundled latexdiff are searched relative to it.
	ExeDir string

	LookPath func(string) (string, error)
	IsFile   func(string) bool
}

// Verify resolves every tool and checks the git version. All failures are
// environment errors and fatal.
func Verify(ctx context.Context, runner command.Runner, opts Options) (Tools, error) {
	opts = opts.withDefaults()
	var tools Tools

	git, err := opts.find("git", opts.Settings.Git)
	if err != nil {
		return tools, derrors.ToolNotFound("git", err)
	}
	tools.Git = git

	res, err := runner.Run(ctx, command.Cmd{Name: git, Args: []string{"--version"}})
	if err != nil {
		return tools, derrors.ToolNotFound("git", fmt.Errorf("git --version: %w", err))
	}
	have, err := ParseGitVersion(res.Stdout)
	if err != nil {
		return tools, derrors.Wrap(err, derrors.CategoryEnvironment, derrors.SeverityFatal, "cannot determine git version")
	}
	tools.GitVersion = have.String()
	ok, err := meetsMinimum(have, MinGitVersion)
	if err != nil {
		return tools, derrors.InternalError("invalid version constraint", err)
	}
	if !ok {
		seg := have.Segments()
		return tools, derrors.ToolTooOld("Git", fmt.Sprintf("%d.%d", seg[0], seg[1]), MinGitVersion)
	}

	perl, err := opts.find("perl", opts.Settings.Perl)
	if err != nil {
		return tools, derrors.ToolNotFound("perl", err)
	}
	tools.Perl = perl

	tdr, err := opts.find("tdr", opts.Settings.TDR,
		filepath.Join(opts.ExeDir, "..", "utils", "tdr"),
		filepath.Join(opts.ExeDir, "tdr"))
	if err != nil {
		return tools, derrors.ToolNotFound("tdr", err)
	}
	tools.TDR = tdr

	latexdiff, diffErr := opts.find("latexdiff", opts.Settings.Latexdiff, filepath.Join(opts.ExeDir, "latexdiff"))
	latexmk, mkErr := opts.find("latexmk", opts.Settings.Latexmk)
	if diffErr != nil {
		latexdiff, diffErr = opts.fallback("latexdiff")
	}
	if mkErr != nil {
		latexmk, mkErr = opts.fallback("latexmk")
	}
	if diffErr != nil || mkErr != nil {
		return tools, derrors.NewError(derrors.CategoryEnvironment, "Could not find latexdiff and latexmk").
			WithSeverity(derrors.SeverityFatal).
			WithContext("fallback_dir", opts.Settings.FallbackDir).
			Build()
	}
	tools.Latexdiff = latexdiff
	tools.Latexmk = latexmk
	return tools, nil
}

// ErrNotFound is returned by the path search when no candidate exists.
var ErrNotFound = errors.New("not found")

func (o Options) withDefaults() Options {
	if o.LookPath == nil {
		o.LookPath = exec.LookPath
	}
	if o.IsFile == nil {
		o.IsFile = isFile
	}
	if o.ExeDir == "" {
		o.ExeDir = ExecutableDir()
	}
	return o
}

// find tries the configured path, then each candidate, then PATH.
func (o Options) find(name, configured string, candidates ...string) (string, error) {
	if configured != "" {
		if o.IsFile(configured) {
			return absPath(configured), nil
		}
		return "", fmt.Errorf("%s: configured path %s: %w", name, configured, ErrNotFound)
	}
	for _, c := range candidates {
		if c != "" && o.IsFile(c) {
			return absPath(c), nil
		}
	}
	p, err := o.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return p, nil
}

func (o Options) fallback(name string) (string, error) {
	if o.Settings.FallbackDir == "" {
		return "", ErrNotFound
	}
	p := filepath.Join(o.Settings.FallbackDir, name)
	if o.IsFile(p) {
		return p, nil
	}
	return "", ErrNotFound
}

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseGitVersion extracts the version from `git --version` output such as
// "git version 2.39.2" or "git version 2.24.3 (Apple Git-128)".
func ParseGitVersion(out string) (*version.Version, error) {
	out = strings.TrimSpace(out)
	m := versionPattern.FindString(out)
	if m == "" {
		return nil, fmt.Errorf("unrecognised git version output %q", out)
	}
	return version.NewVersion(m)
}

func meetsMinimum(have *version.Version, minimum string) (bool, error) {
	c, err := version.NewConstraint(">= " + minimum)
	if err != nil {
		return false, err
	}
	return c.Check(have), nil
}

// ExecutableDir is the directory of the running binary with symlinks
// resolved, or the current directory when that cannot be determined.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func absPath(p string) string {
	if a, err := filepath.Abs(p); err == nil {
		return filepath.Clean(a)
	}
	return p
}
