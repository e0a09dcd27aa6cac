package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/tdrdiff/internal/logfields"
	"git.home.luguber.info/inful/tdrdiff/internal/retry"
)

const remoteName = "origin"

// CloneResult describes the state of the clone after EnsureClone.
type CloneResult struct {
	Path   string
	Cloned bool   // false when an existing clone was synchronised
	Branch string // default branch now checked out
	Head   string // commit hash of the checked out tip
	// Offline is set when the fetch failed and the clone was used as it was.
	Offline bool
}

// Client handles Git operations with go-git.
type Client struct {
	auth     transport.AuthMethod
	policy   retry.Policy
	progress io.Writer
	logger   *slog.Logger
}

// NewClient creates a go-git client without credentials and without retries.
func NewClient() *Client {
	p := retry.DefaultPolicy()
	p.MaxRetries = 0
	return &Client{policy: p, logger: slog.Default()}
}

// WithAuth sets the transport credentials (fluent helper).
func (c *Client) WithAuth(am transport.AuthMethod) *Client { c.auth = am; return c }

// WithRetry sets the retry policy for clone and fetch.
func (c *Client) WithRetry(p retry.Policy) *Client { c.policy = p; return c }

// WithProgress streams remote progress messages to w.
func (c *Client) WithProgress(w io.Writer) *Client { c.progress = w; return c }

// WithLogger replaces the default logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// EnsureClone makes dir a current clone of url: a recursive clone when
// dir/.git is absent, otherwise a sync of the existing clone to the tip of
// its default branch.
func (c *Client) EnsureClone(ctx context.Context, url, dir string) (CloneResult, error) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		res, err := c.Sync(ctx, dir)
		if err != nil {
			return res, ClassifyGitError(err, "sync", url)
		}
		return res, nil
	}
	var res CloneResult
	err := withRetry(ctx, c.policy, c.logger, "clone", url, func(ctx context.Context) error {
		var err error
		res, err = c.cloneOnce(ctx, url, dir)
		return err
	})
	if err != nil {
		return res, ClassifyGitError(err, "clone", url)
	}
	return res, nil
}

func (c *Client) cloneOnce(ctx context.Context, url, dir string) (CloneResult, error) {
	c.logger.DebugContext(ctx, "Cloning repository", logfields.URL(url), logfields.Path(dir))
	if err := os.RemoveAll(dir); err != nil {
		return CloneResult{}, fmt.Errorf("failed to remove existing directory: %w", err)
	}
	repository, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:               url,
		Auth:              c.auth,
		RemoteName:        remoteName,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
		Tags:              git.AllTags,
		Progress:          c.progress,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return CloneResult{}, classifyRemoteError("clone", url, err)
	}

	res := CloneResult{Path: dir, Cloned: true}
	head, err := repository.Head()
	if err != nil {
		return res, fmt.Errorf("read HEAD after clone: %w", err)
	}
	res.Head = head.Hash().String()
	if head.Name().IsBranch() {
		res.Branch = head.Name().Short()
		// go-git does not record the remote's default branch; later syncs need it.
		sym := plumbing.NewSymbolicReference(
			plumbing.NewRemoteHEADReferenceName(remoteName),
			plumbing.NewRemoteReferenceName(remoteName, res.Branch))
		if err := repository.Storer.SetReference(sym); err != nil {
			return res, fmt.Errorf("record default branch: %w", err)
		}
	}
	c.logger.InfoContext(ctx, "Repository cloned", logfields.URL(url), logfields.Path(dir),
		logfields.Hash(shortHash(res.Head)), slog.String("branch", res.Branch))
	return res, nil
}

// Sync fetches origin and hard-resets the default branch to the remote tip,
// then brings submodules in line. When the fetch fails the clone is left
// untouched and reported Offline; revisions already present still resolve.
func (c *Client) Sync(ctx context.Context, dir string) (CloneResult, error) {
	res := CloneResult{Path: dir}
	repository, err := git.PlainOpen(dir)
	if err != nil {
		return res, fmt.Errorf("open repo: %w", err)
	}
	url := remoteURL(repository)

	err = withRetry(ctx, c.policy, c.logger, "fetch", url, func(ctx context.Context) error {
		return c.fetchOrigin(ctx, repository, url)
	})
	if err != nil {
		if ctx.Err() != nil {
			return res, err
		}
		c.logger.WarnContext(ctx, "Fetch failed, using the existing clone as it is",
			logfields.URL(url), logfields.Path(dir), logfields.Error(err))
		res.Offline = true
		head, herr := repository.Head()
		if herr != nil {
			return res, fmt.Errorf("%w (local HEAD unreadable: %w)", err, herr)
		}
		res.Head = head.Hash().String()
		if head.Name().IsBranch() {
			res.Branch = head.Name().Short()
		}
		return res, nil
	}

	branch, err := resolveDefaultBranch(repository)
	if err != nil {
		return res, err
	}
	res.Branch = branch

	remoteRef, err := repository.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
	if err != nil {
		return res, fmt.Errorf("remote ref %s/%s: %w", remoteName, branch, err)
	}
	wt, err := repository.Worktree()
	if err != nil {
		return res, fmt.Errorf("worktree: %w", err)
	}
	localRef := plumbing.NewBranchReferenceName(branch)
	checkout := &git.CheckoutOptions{Branch: localRef, Force: true}
	if _, lerr := repository.Reference(localRef, true); lerr != nil {
		checkout.Create = true
		checkout.Hash = remoteRef.Hash()
	}
	if err := wt.Checkout(checkout); err != nil {
		return res, fmt.Errorf("checkout %s: %w", branch, err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return res, fmt.Errorf("hard reset to %s/%s: %w", remoteName, branch, err)
	}
	if err := c.updateSubmodules(ctx, wt); err != nil {
		return res, err
	}
	res.Head = remoteRef.Hash().String()
	c.logger.InfoContext(ctx, "Repository synchronised", logfields.Path(dir),
		slog.String("branch", branch), logfields.Hash(shortHash(res.Head)))
	return res, nil
}

func (c *Client) fetchOrigin(ctx context.Context, repository *git.Repository, url string) error {
	err := repository.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []ggitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		Tags:       git.AllTags,
		Auth:       c.auth,
		Progress:   c.progress,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return classifyRemoteError("fetch", url, err)
	}
	return nil
}

// Resolve turns rev into a full commit hash. Branch names that only exist
// on the remote are tried as origin/<rev>.
func (c *Client) Resolve(_ context.Context, dir, rev string) (string, error) {
	repository, err := git.PlainOpen(dir)
	if err != nil {
		return "", ClassifyGitError(fmt.Errorf("open repo: %w", err), "resolve", "")
	}
	h, err := repository.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		remote, rerr := repository.ResolveRevision(plumbing.Revision(plumbing.NewRemoteReferenceName(remoteName, rev).String()))
		if rerr != nil {
			return "", ClassifyGitError(&RevisionError{Revision: rev, Err: err}, "resolve", "")
		}
		h = remote
	}
	return h.String(), nil
}

// Checkout detaches HEAD at hash, discarding local modifications, and
// updates submodules to match.
func (c *Client) Checkout(ctx context.Context, dir, hash string) error {
	repository, err := git.PlainOpen(dir)
	if err != nil {
		return ClassifyGitError(fmt.Errorf("open repo: %w", err), "checkout", "")
	}
	wt, err := repository.Worktree()
	if err != nil {
		return ClassifyGitError(fmt.Errorf("worktree: %w", err), "checkout", "")
	}
	if !plumbing.IsHash(hash) {
		return ClassifyGitError(&RevisionError{Revision: hash, Err: errors.New("not a full commit hash")}, "checkout", "")
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(hash), Force: true}); err != nil {
		return ClassifyGitError(fmt.Errorf("checkout %s: %w", shortHash(hash), err), "checkout", "")
	}
	if err := c.updateSubmodules(ctx, wt); err != nil {
		return ClassifyGitError(err, "checkout", "")
	}
	c.logger.DebugContext(ctx, "Checked out revision", logfields.Hash(hash), logfields.Path(dir))
	return nil
}

func (c *Client) updateSubmodules(ctx context.Context, wt *git.Worktree) error {
	subs, err := wt.Submodules()
	if err != nil {
		return fmt.Errorf("list submodules: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}
	err = subs.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
		Init:              true,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
		Auth:              c.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("update submodules: %w", err)
	}
	return nil
}

// resolveDefaultBranch follows origin/HEAD, then falls back to master, main
// or the only remote branch.
func resolveDefaultBranch(repository *git.Repository) (string, error) {
	prefix := plumbing.NewRemoteReferenceName(remoteName, "").String()
	if ref, err := repository.Reference(plumbing.NewRemoteHEADReferenceName(remoteName), false); err == nil &&
		ref.Type() == plumbing.SymbolicReference && strings.HasPrefix(ref.Target().String(), prefix) {
		return strings.TrimPrefix(ref.Target().String(), prefix), nil
	}

	refs, err := repository.References()
	if err != nil {
		return "", fmt.Errorf("list references: %w", err)
	}
	var branches []string
	_ = refs.ForEach(func(r *plumbing.Reference) error {
		name := r.Name().String()
		if r.Name().IsRemote() && strings.HasPrefix(name, prefix) && !strings.HasSuffix(name, "/HEAD") {
			branches = append(branches, strings.TrimPrefix(name, prefix))
		}
		return nil
	})
	for _, candidate := range []string{"master", "main"} {
		for _, b := range branches {
			if b == candidate {
				return b, nil
			}
		}
	}
	if len(branches) == 1 {
		return branches[0], nil
	}
	return "", fmt.Errorf("cannot determine default branch of %s (found %d remote branches)", remoteName, len(branches))
}

func remoteURL(repository *git.Repository) string {
	remote, err := repository.Remote(remoteName)
	if err != nil || len(remote.Config().URLs) == 0 {
		return ""
	}
	return remote.Config().URLs[0]
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
