// Package watch reruns a function whenever files under a directory tree change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last event before a run starts.
const DefaultDebounce = 500 * time.Millisecond

// RunFunc is invoked once per coalesced batch of changes.
type RunFunc func(ctx context.Context) error

// Watcher watches a directory tree and triggers runs.
type Watcher struct {
	root     string
	debounce time.Duration
	ignore   func(path string) bool
	logger   *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	runReq  chan struct{}
	running bool
	pending bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIgnore adds a predicate on top of the built-in ignore rules.
func WithIgnore(fn func(path string) bool) Option {
	return func(w *Watcher) {
		prev := w.ignore
		w.ignore = func(p string) bool { return prev(p) || fn(p) }
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher rooted at root.
func New(root string, opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		debounce: DefaultDebounce,
		ignore:   ShouldIgnore,
		logger:   slog.Default(),
		runReq:   make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run calls fn once immediately and then after every debounced batch of
// changes. Only one fn runs at a time; changes seen during a run produce one
// follow-up run. Run returns when ctx is canceled.
func (w *Watcher) Run(ctx context.Context, fn RunFunc) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addDirsRecursive(fsw, w.root); err != nil {
		return err
	}
	w.logger.Info("Watching for changes", slog.String("dir", w.root))

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.runLoop(ctx, fn)
	}()
	w.request()

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			<-done
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				<-done
				return nil
			}
			w.handleEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				<-done
				return nil
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if w.ignore(w.rel(ev.Name)) {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = w.addDirsRecursive(fsw, ev.Name)
		}
	}
	w.logger.Debug("File change detected", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
	w.trigger()
}

// trigger restarts the debounce timer.
func (w *Watcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.request)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// request queues a run without blocking.
func (w *Watcher) request() {
	select {
	case w.runReq <- struct{}{}:
	default:
	}
}

func (w *Watcher) runLoop(ctx context.Context, fn RunFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.runReq:
			w.mu.Lock()
			if w.running {
				w.pending = true
				w.mu.Unlock()
				continue
			}
			w.running = true
			w.mu.Unlock()

			if err := fn(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("run failed", slog.String("error", err.Error()))
			}

			w.mu.Lock()
			w.running = false
			again := w.pending
			w.pending = false
			w.mu.Unlock()
			if again {
				w.request()
			}
		}
	}
}

func (w *Watcher) addDirsRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignore(w.rel(path)) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			w.logger.Warn("watch add failed", slog.String("dir", path), slog.String("error", err.Error()))
		}
		return nil
	})
}

func (w *Watcher) rel(path string) string {
	if r, err := filepath.Rel(w.root, path); err == nil {
		return r
	}
	return path
}

// ShouldIgnore reports whether a path relative to the watched root is output
// of the workflow itself or editor noise. Any ignored path component makes
// the whole path ignored.
func ShouldIgnore(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if ignoredComponent(part) {
			return true
		}
	}
	return isBuildArtifact(filepath.Base(rel))
}

func ignoredComponent(base string) bool {
	switch {
	case base == "" || base == ".":
		return false
	case strings.HasPrefix(base, "."):
		return true
	case base == "export" || strings.HasPrefix(base, "export_"):
		return true
	case base == "build_tdrDiff":
		return true
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	}
	return false
}

var artifactSuffixes = []string{
	"_diff.tex", "_diff.pdf",
	".aux", ".log", ".fls", ".fdb_latexmk", ".out", ".toc", ".bbl", ".blg",
	".synctex.gz",
}

func isBuildArtifact(base string) bool {
	for _, s := range artifactSuffixes {
		if strings.HasSuffix(base, s) {
			return true
		}
	}
	return false
}
