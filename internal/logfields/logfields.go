package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyTag        = "tag"
	KeyRevision   = "revision"
	KeyHash       = "hash"
	KeyStage      = "stage"
	KeyOutcome    = "outcome"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyTool       = "tool"
	KeyExitCode   = "exit_code"
	KeyStdout     = "stdout"
	KeyStderr     = "stderr"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Tag(t string) slog.Attr          { return slog.String(KeyTag, t) }
func Revision(r string) slog.Attr     { return slog.String(KeyRevision, r) }
func Hash(h string) slog.Attr         { return slog.String(KeyHash, h) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Tool(name string) slog.Attr      { return slog.String(KeyTool, name) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func Stdout(s string) slog.Attr       { return slog.String(KeyStdout, s) }
func Stderr(s string) slog.Attr       { return slog.String(KeyStderr, s) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
