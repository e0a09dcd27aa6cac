package commands

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"git.home.luguber.info/inful/tdrdiff/internal/config"
	derrors "git.home.luguber.info/inful/tdrdiff/internal/errors"
	"git.home.luguber.info/inful/tdrdiff/internal/exportcache"
	"git.home.luguber.info/inful/tdrdiff/internal/git"
	"git.home.luguber.info/inful/tdrdiff/internal/workspace"
)

var fullHash = regexp.MustCompile(`^[0-9a-f]{40}$`)

// CleanCmd implements the 'clean' command.
type CleanCmd struct {
	Tag   string   `arg:"" name:"tag" help:"The document tag whose clone resolves --rev."`
	Rev   []string `name:"rev" help:"Revision whose export to remove (repeatable). \".\" is the working-tree export."`
	All   bool     `name:"all" help:"Remove every cached export."`
	Clone bool     `name:"clone" help:"Also remove the clone of the document."`
}

func (c *CleanCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	if len(c.Rev) == 0 && !c.All && !c.Clone {
		return derrors.ValidationFailed("clean", "nothing to clean; pass --rev, --all or --clone")
	}
	dir, err := root.workspaceDir(g)
	if err != nil {
		return err
	}
	ws := workspace.NewPersistentManager(dir, g.Logger.Logger)
	cache := exportcache.New(dir, g.Logger.Logger)

	keys, err := c.keys(ctx, ws, cache)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := os.Stat(cache.Path(k)); err != nil {
			_, _ = fmt.Fprintf(g.Stdout, "No export for %s\n", k)
			continue
		}
		if err := cache.Invalidate(k); err != nil {
			return derrors.WorkspaceError("invalidate export", err)
		}
		_, _ = fmt.Fprintf(g.Stdout, "Removed %s\n", cache.Path(k))
	}

	if c.Clone {
		if !ws.HasClone(c.Tag) {
			_, _ = fmt.Fprintf(g.Stdout, "No clone for %s\n", c.Tag)
			return nil
		}
		if err := ws.RemoveClone(c.Tag); err != nil {
			return derrors.WorkspaceError("remove clone", err)
		}
		_, _ = fmt.Fprintf(g.Stdout, "Removed %s\n", ws.CloneDir(c.Tag))
	}
	return nil
}

// keys maps the requested revisions to cache keys. Full hashes and "." are
// used as they are; other references are resolved in the existing clone.
func (c *CleanCmd) keys(ctx context.Context, ws *workspace.Manager, cache *exportcache.Cache) ([]string, error) {
	if c.All {
		return cache.Keys()
	}
	var keys []string
	var client *git.Client
	for _, rev := range c.Rev {
		switch {
		case rev == config.CurrentTree:
			keys = append(keys, exportcache.CurrentKey)
		case fullHash.MatchString(rev):
			keys = append(keys, rev)
		default:
			if !ws.HasClone(c.Tag) {
				return nil, derrors.ValidationFailed("rev", fmt.Sprintf("cannot resolve %q without a clone of %s; pass a full hash", rev, c.Tag))
			}
			if client == nil {
				client = git.NewClient()
			}
			h, err := client.Resolve(ctx, ws.CloneDir(c.Tag), rev)
			if err != nil {
				return nil, err
			}
			keys = append(keys, h)
		}
	}
	return keys, nil
}
