// Package exportcache stores the output of `tdr --export` per revision in
// the workspace, keyed by commit hash, so an unchanged revision is exported
// once.
package exportcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"git.home.luguber.info/inful/tdrdiff/internal/logfields"
)

// CurrentKey is the key of the working-tree export. It is never reused.
const CurrentKey = "current"

// DirPrefix prefixes every cached export directory name.
const DirPrefix = "export_"

// Policy decides whether an existing entry may be returned.
type Policy int

const (
	// PolicyReuse returns a cached entry when present.
	PolicyReuse Policy = iota
	// PolicyRebuild always discards the entry and builds again.
	PolicyRebuild
)

func (p Policy) String() string {
	if p == PolicyRebuild {
		return "rebuild"
	}
	return "reuse"
}

// PolicyFor returns PolicyRebuild for CurrentKey and PolicyReuse otherwise.
func PolicyFor(key string) Policy {
	if key == CurrentKey {
		return PolicyRebuild
	}
	return PolicyReuse
}

// IncompleteMarker is written into an entry whose export command failed.
// Such entries are kept for inspection but never returned as hits.
const IncompleteMarker = ".incomplete"

// ErrInvalidKey is returned for keys that would escape the workspace.
var ErrInvalidKey = errors.New("invalid export cache key")

// BuildFunc produces a fresh export and returns the directory it was
// written to. Store moves that directory into the cache.
type BuildFunc func(ctx context.Context) (staged string, err error)

// Cache maps revision keys to export directories under a workspace.
type Cache struct {
	dir    string
	logger *slog.Logger
}

// New returns a cache rooted at workspaceDir.
func New(workspaceDir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{dir: workspaceDir, logger: logger}
}

// Path is the directory an entry for key lives in, whether or not it exists.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, DirPrefix+key)
}

// Lookup reports the entry for key when it exists.
func (c *Cache) Lookup(key string) (string, bool) {
	if validateKey(key) != nil {
		return "", false
	}
	p := c.Path(key)
	st, err := os.Stat(p)
	if err != nil || !st.IsDir() {
		return "", false
	}
	if _, err := os.Stat(filepath.Join(p, IncompleteMarker)); err == nil {
		return "", false
	}
	return p, true
}

// Ensure returns the entry for key, building it when absent or when policy
// is PolicyRebuild. hit is true when an existing entry was returned.
func (c *Cache) Ensure(ctx context.Context, key string, policy Policy, build BuildFunc) (path string, hit bool, err error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	if policy == PolicyReuse {
		if p, ok := c.Lookup(key); ok {
			c.logger.DebugContext(ctx, "Export cache hit", logfields.Hash(key), logfields.Path(p))
			return p, true, nil
		}
	}
	if err := c.Invalidate(key); err != nil {
		return "", false, err
	}
	c.logger.DebugContext(ctx, "Export cache miss", logfields.Hash(key), slog.String("policy", policy.String()))
	staged, err := build(ctx)
	if err != nil {
		return "", false, err
	}
	p, err := c.Store(key, staged)
	if err != nil {
		return "", false, err
	}
	return p, false, nil
}

// Store moves staged into the entry for key, replacing any previous entry.
// Moves across filesystems fall back to copy and delete.
func (c *Cache) Store(key, staged string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	st, err := os.Stat(staged)
	if err != nil {
		return "", fmt.Errorf("export output %s: %w", staged, err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("export output %s is not a directory", staged)
	}
	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	if err := c.Invalidate(key); err != nil {
		return "", err
	}

	dst := c.Path(key)
	if err := os.Rename(staged, dst); err != nil {
		if !isCrossDevice(err) {
			return "", fmt.Errorf("move export: %w", err)
		}
		c.logger.Debug("Rename failed, copying export", logfields.Path(staged), logfields.Error(err))
		if err := CopyDir(staged, dst); err != nil {
			_ = os.RemoveAll(dst)
			return "", fmt.Errorf("copy export: %w", err)
		}
		if err := os.RemoveAll(staged); err != nil {
			return "", fmt.Errorf("remove staged export: %w", err)
		}
	}
	c.logger.Debug("Stored export", logfields.Hash(key), logfields.Path(dst))
	return dst, nil
}

// isCrossDevice reports whether a rename failed only because source and
// destination are on different filesystems.
func isCrossDevice(err error) bool { return errors.Is(err, syscall.EXDEV) }

// MarkIncomplete flags the entry for key so the next Ensure rebuilds it.
func (c *Cache) MarkIncomplete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(c.Path(key), IncompleteMarker), nil, 0o600); err != nil {
		return fmt.Errorf("mark export %s incomplete: %w", key, err)
	}
	return nil
}

// Invalidate removes the entry for key. A missing entry is not an error.
func (c *Cache) Invalidate(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.RemoveAll(c.Path(key)); err != nil {
		return fmt.Errorf("invalidate export %s: %w", key, err)
	}
	return nil
}

// Keys lists the keys with an entry, sorted.
func (c *Cache) Keys() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), DirPrefix) && len(e.Name()) > len(DirPrefix) {
			keys = append(keys, strings.TrimPrefix(e.Name(), DirPrefix))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
