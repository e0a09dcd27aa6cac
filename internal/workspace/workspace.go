package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/tdrdiff/internal/config"
	"git.home.luguber.info/inful/tdrdiff/internal/logfields"
)

// Manager handles the workspace directory.
type Manager struct {
	dir    string
	logger *slog.Logger
}

// NewPersistentManager creates a manager rooted at dir. The directory is
// only created by Create.
func NewPersistentManager(dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{dir: filepath.Clean(dir), logger: logger}
}

// DefaultDir is <exeDir>/../build_tdrDiff.
func DefaultDir(exeDir string) string {
	return filepath.Join(exeDir, "..", config.WorkspaceDirName)
}

// Create ensures the workspace directory exists.
func (m *Manager) Create() error {
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	m.logger.Debug("Using persistent workspace", logfields.Path(m.dir))
	return nil
}

// GetPath returns the path to the workspace directory.
func (m *Manager) GetPath() string { return m.dir }

// CloneDir is where the clone of tag lives.
func (m *Manager) CloneDir(tag string) string { return filepath.Join(m.dir, tag) }

// HasClone reports whether CloneDir(tag) holds a git repository.
func (m *Manager) HasClone(tag string) bool {
	_, err := os.Stat(filepath.Join(m.CloneDir(tag), ".git"))
	return err == nil
}

// RemoveClone deletes the clone of tag. A missing clone is not an error.
func (m *Manager) RemoveClone(tag string) error {
	dir := m.CloneDir(tag)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove clone: %w", err)
	}
	m.logger.Info("Removed clone", logfields.Tag(tag), logfields.Path(dir))
	return nil
}
