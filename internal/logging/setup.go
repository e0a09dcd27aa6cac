package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Options configures Setup.
type Options struct {
	Verbosity int
	// LogFile, when set, receives every record at DEBUG. Relative paths are
	// resolved against Home.
	LogFile string
	Home    string
	Stderr  io.Writer
}

// Logger bundles the configured logger with its resources.
type Logger struct {
	*slog.Logger
	Level   slog.Level
	Echo    bool
	LogPath string
	file    *os.File
}

// Close releases the log file, if one was opened.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Setup builds the logger for one invocation. It does not install it as the
// slog default; callers do that.
func Setup(opts Options) (*Logger, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	level := LevelForVerbosity(opts.Verbosity)
	out := &Logger{Level: level, Echo: EchoSubprocess(opts.Verbosity)}

	handlers := []slog.Handler{
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}),
	}

	if opts.LogFile != "" {
		path, err := LogFilePath(opts.LogFile, opts.Home)
		if err != nil {
			return nil, err
		}
		// #nosec G304 -- path comes from the invoking user's own flag
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out.file = f
		out.LogPath = path
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	var h slog.Handler = handlers[0]
	if len(handlers) > 1 {
		h = NewFanout(handlers...)
	}
	out.Logger = slog.New(contextHandler{h})
	return out, nil
}

// LogFilePath resolves name against home. Absolute names are kept.
func LogFilePath(name, home string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve log file %q: %w", name, err)
		}
		home = h
	}
	return filepath.Join(home, name), nil
}
