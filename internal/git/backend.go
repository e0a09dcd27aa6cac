package git

import (
	"context"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/tdrdiff/internal/auth"
	"git.home.luguber.info/inful/tdrdiff/internal/command"
	"git.home.luguber.info/inful/tdrdiff/internal/config"
	"git.home.luguber.info/inful/tdrdiff/internal/retry"
)

// Backend is the set of operations a diff run needs from git.
type Backend interface {
	EnsureClone(ctx context.Context, url, dir string) (CloneResult, error)
	Resolve(ctx context.Context, dir, rev string) (string, error)
	Checkout(ctx context.Context, dir, hash string) error
}

var (
	_ Backend = (*Client)(nil)
	_ Backend = (*CLI)(nil)
)

// BackendOptions selects and configures a backend.
type BackendOptions struct {
	Settings config.GitSettings
	Access   config.Access
	URL      string
	GitPath  string
	Runner   command.Runner
	Logger   *slog.Logger
	// Progress prints remote progress (go-git only) when set.
	Progress bool
}

// NewBackend returns the exec backend when the settings demand it or the
// access type needs the git binary, and the go-git client otherwise.
func NewBackend(opts BackendOptions) (Backend, error) {
	policy := retry.FromSettings(opts.Settings)
	useExec := opts.Settings.Backend == config.GitBackendExec ||
		(opts.Settings.Backend != config.GitBackendGoGit && opts.Access.NeedsGitBinary())
	if useExec {
		cli := NewCLI(opts.GitPath, opts.Runner)
		cli.Policy = policy
		cli.Logger = opts.Logger
		return cli, nil
	}

	am, err := auth.ForRepository(opts.URL, opts.Settings)
	if err != nil {
		return nil, ClassifyGitError(err, "auth", opts.URL)
	}
	c := NewClient().WithAuth(am).WithRetry(policy).WithLogger(opts.Logger)
	if opts.Progress {
		c.WithProgress(os.Stderr)
	}
	return c, nil
}
