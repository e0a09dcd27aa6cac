package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/tdrdiff/internal/command"
	"git.home.luguber.info/inful/tdrdiff/internal/logfields"
	"git.home.luguber.info/inful/tdrdiff/internal/retry"
)

// CLI performs the same operations as Client through the git executable.
type CLI struct {
	Git    string // path to git
	Runner command.Runner
	Policy retry.Policy
	Logger *slog.Logger
}

// NewCLI returns a CLI backend using gitPath and runner.
func NewCLI(gitPath string, runner command.Runner) *CLI {
	p := retry.DefaultPolicy()
	p.MaxRetries = 0
	return &CLI{Git: gitPath, Runner: runner, Policy: p, Logger: slog.Default()}
}

func (g *CLI) git(ctx context.Context, dir string, args ...string) (string, error) {
	res, err := g.Runner.Run(ctx, command.Cmd{Name: g.Git, Args: args, Dir: dir})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// EnsureClone mirrors Client.EnsureClone using `git clone --recursive`.
func (g *CLI) EnsureClone(ctx context.Context, url, dir string) (CloneResult, error) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		res, err := g.Sync(ctx, dir)
		if err != nil {
			return res, ClassifyGitError(err, "sync", url)
		}
		return res, nil
	}

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return CloneResult{}, ClassifyGitError(err, "clone", url)
	}
	err := withRetry(ctx, g.Policy, g.logger(), "clone", url, func(ctx context.Context) error {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
		if _, err := g.git(ctx, parent, "clone", "--recursive", url, filepath.Base(dir)); err != nil {
			_ = os.RemoveAll(dir)
			return classifyRemoteError("clone", url, err)
		}
		return nil
	})
	if err != nil {
		return CloneResult{}, ClassifyGitError(err, "clone", url)
	}

	res := CloneResult{Path: dir, Cloned: true}
	res.Head, _ = g.git(ctx, dir, "rev-parse", "HEAD")
	res.Branch, _ = g.git(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	g.logger().InfoContext(ctx, "Repository cloned", logfields.URL(url), logfields.Path(dir),
		logfields.Hash(shortHash(res.Head)), slog.String("branch", res.Branch))
	return res, nil
}

// Sync fetches origin, checks out the default branch, hard-resets it to the
// remote tip and updates submodules. A failed fetch leaves the clone as it
// is and sets Offline.
func (g *CLI) Sync(ctx context.Context, dir string) (CloneResult, error) {
	res := CloneResult{Path: dir}
	url, _ := g.git(ctx, dir, "remote", "get-url", remoteName)

	err := withRetry(ctx, g.Policy, g.logger(), "fetch", url, func(ctx context.Context) error {
		if _, err := g.git(ctx, dir, "fetch", "--tags", "--force", remoteName); err != nil {
			return classifyRemoteError("fetch", url, err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return res, err
		}
		g.logger().WarnContext(ctx, "Fetch failed, using the existing clone as it is",
			logfields.URL(url), logfields.Path(dir), logfields.Error(err))
		res.Offline = true
		head, herr := g.git(ctx, dir, "rev-parse", "HEAD")
		if herr != nil {
			return res, fmt.Errorf("%w (local HEAD unreadable: %w)", err, herr)
		}
		res.Head = head
		return res, nil
	}

	originHead, err := g.git(ctx, dir, "symbolic-ref", "--short", "refs/remotes/origin/HEAD")
	if err != nil {
		return res, fmt.Errorf("cannot determine default branch: %w", err)
	}
	branch := strings.TrimPrefix(originHead, remoteName+"/")
	res.Branch = branch

	steps := [][]string{
		{"checkout", "--force", branch},
		{"reset", "--hard", remoteName + "/" + branch},
		{"submodule", "update", "--init", "--recursive"},
	}
	for _, args := range steps {
		if _, err := g.git(ctx, dir, args...); err != nil {
			return res, fmt.Errorf("git %s: %w", args[0], err)
		}
	}
	res.Head, _ = g.git(ctx, dir, "rev-parse", "HEAD")
	g.logger().InfoContext(ctx, "Repository synchronised", logfields.Path(dir),
		slog.String("branch", branch), logfields.Hash(shortHash(res.Head)))
	return res, nil
}

// Resolve runs git rev-parse, falling back to origin/<rev>.
func (g *CLI) Resolve(ctx context.Context, dir, rev string) (string, error) {
	out, err := g.git(ctx, dir, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		remote, rerr := g.git(ctx, dir, "rev-parse", "--verify", "--quiet", remoteName+"/"+rev+"^{commit}")
		if rerr != nil {
			return "", ClassifyGitError(&RevisionError{Revision: rev, Err: err}, "resolve", "")
		}
		out = remote
	}
	return out, nil
}

// Checkout detaches HEAD at hash and updates submodules.
func (g *CLI) Checkout(ctx context.Context, dir, hash string) error {
	if _, err := g.git(ctx, dir, "checkout", "--force", hash); err != nil {
		return ClassifyGitError(fmt.Errorf("checkout %s: %w", shortHash(hash), err), "checkout", "")
	}
	if _, err := g.git(ctx, dir, "submodule", "update", "--init", "--recursive"); err != nil {
		return ClassifyGitError(fmt.Errorf("update submodules: %w", err), "checkout", "")
	}
	g.logger().DebugContext(ctx, "Checked out revision", logfields.Hash(hash), logfields.Path(dir))
	return nil
}

func (g *CLI) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}
