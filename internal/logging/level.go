package logging

import "log/slog"

// MaxVerbosity is the highest counter value with its own level. Anything
// above it stays at DEBUG and turns on subprocess echo.
const MaxVerbosity = 2

// LevelForVerbosity maps the -v counter onto a slog level:
// 0 WARN, 1 INFO, 2 and above DEBUG.
func LevelForVerbosity(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelWarn
	case v == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// EchoSubprocess reports whether external tool output should be shown.
func EchoSubprocess(v int) bool { return v > MaxVerbosity }
