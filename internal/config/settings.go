package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FallbackTeXDir is where latexmk and latexdiff live on lxplus when they are
// not on PATH.
const FallbackTeXDir = "/cvmfs/cms.cern.ch/external/tex/texlive/2017/bin/x86_64-linux"

// WorkspaceDirName is the workspace directory created next to the tool.
const WorkspaceDirName = "build_tdrDiff"

// GitBackend selects how git operations are carried out.
type GitBackend string

const (
	GitBackendAuto  GitBackend = "auto"  // go-git unless the access type needs the git binary
	GitBackendGoGit GitBackend = "gogit" // in-process go-git
	GitBackendExec  GitBackend = "exec"  // shell out to git
)

// Settings is the optional YAML settings file.
type Settings struct {
	Workspace   string         `yaml:"workspace,omitempty"`
	Tools       ToolSettings   `yaml:"tools"`
	Git         GitSettings    `yaml:"git"`
	Export      ExportSettings `yaml:"export"`
	MetricsFile string         `yaml:"metrics_file,omitempty"`
}

// ToolSettings pins external executables. Empty fields are discovered.
type ToolSettings struct {
	Git         string `yaml:"git,omitempty"`
	Perl        string `yaml:"perl,omitempty"`
	TDR         string `yaml:"tdr,omitempty"`
	Latexdiff   string `yaml:"latexdiff,omitempty"`
	Latexmk     string `yaml:"latexmk,omitempty"`
	FallbackDir string `yaml:"fallback_dir,omitempty"`
}

// GitSettings configures the git backend, authentication and retries.
type GitSettings struct {
	Backend           GitBackend       `yaml:"backend,omitempty"`
	SSHKey            string           `yaml:"ssh_key,omitempty"`
	Auth              *AuthConfig      `yaml:"auth,omitempty"`
	MaxRetries        int              `yaml:"max_retries"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff,omitempty"`
	RetryInitialDelay string           `yaml:"retry_initial_delay,omitempty"`
	RetryMaxDelay     string           `yaml:"retry_max_delay,omitempty"`
}

// ExportSettings tunes the tdr export invocation.
type ExportSettings struct {
	Admin string `yaml:"admin,omitempty"` // value of --admin=, default nolineno
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		Tools: ToolSettings{FallbackDir: FallbackTeXDir},
		Git: GitSettings{
			Backend:           GitBackendAuto,
			MaxRetries:        2,
			RetryBackoff:      RetryBackoffExponential,
			RetryInitialDelay: "1s",
			RetryMaxDelay:     "10s",
		},
		Export: ExportSettings{Admin: "nolineno"},
	}
}

// DefaultSettingsPath is $HOME/.config/tdrdiff/config.yaml.
func DefaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tdrdiff", "config.yaml")
}

// LoadSettings reads the settings file at path on top of DefaultSettings.
// A missing file is not an error when optional is true.
func LoadSettings(path string, optional bool) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to unmarshal settings %s: %w", path, err)
	}
	if err := s.normalize(); err != nil {
		return s, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) normalize() error {
	switch GitBackend(strings.ToLower(string(s.Git.Backend))) {
	case "", GitBackendAuto:
		s.Git.Backend = GitBackendAuto
	case GitBackendGoGit:
		s.Git.Backend = GitBackendGoGit
	case GitBackendExec:
		s.Git.Backend = GitBackendExec
	default:
		return fmt.Errorf("git.backend %q must be one of auto, gogit, exec", s.Git.Backend)
	}
	if err := s.Git.normalizeRetry(); err != nil {
		return err
	}
	if err := s.Git.Auth.normalize(); err != nil {
		return err
	}
	if s.Export.Admin == "" {
		s.Export.Admin = "nolineno"
	}
	for _, p := range []*string{
		&s.Workspace, &s.Git.SSHKey, &s.MetricsFile,
		&s.Tools.Git, &s.Tools.Perl, &s.Tools.TDR,
		&s.Tools.Latexdiff, &s.Tools.Latexmk, &s.Tools.FallbackDir,
	} {
		*p = expandPath(*p)
	}
	return nil
}

// expandPath substitutes ${VAR} references once, then a leading "~/".
// Values are expanded field by field after decoding so a substituted value
// is never expanded again.
func expandPath(p string) string { return ExpandHome(os.ExpandEnv(p)) }

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Init writes an example settings file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("settings file already exists: %s (use --force to overwrite)", path)
	}
	example := DefaultSettings()
	example.Workspace = "~/" + WorkspaceDirName
	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal example settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}
