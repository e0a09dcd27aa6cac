package git

import (
	"context"
	"errors"
	"log/slog"

	derrors "git.home.luguber.info/inful/tdrdiff/internal/errors"
	"git.home.luguber.info/inful/tdrdiff/internal/logfields"
	"git.home.luguber.info/inful/tdrdiff/internal/retry"
)

// withRetry runs a network operation under policy, retrying transient
// failures only.
func withRetry(ctx context.Context, policy retry.Policy, logger *slog.Logger, op, url string, fn func(context.Context) error) error {
	return policy.Do(ctx, isTransientGitError,
		func(attempt int, err error) {
			logger.WarnContext(ctx, "Retrying git operation",
				slog.String("operation", op), logfields.URL(url),
				slog.Int("attempt", attempt), logfields.Error(err))
		}, fn)
}

// isTransientGitError reports whether err is worth another attempt.
// Authentication, missing repositories and bad protocols never are.
func isTransientGitError(err error) bool {
	if err == nil || isPermanentGitError(err) {
		return false
	}
	if errors.As(err, new(*RateLimitError)) || errors.As(err, new(*NetworkTimeoutError)) {
		return true
	}
	return derrors.IsRetryable(err)
}

func isPermanentGitError(err error) bool {
	return errors.As(err, new(*AuthError)) ||
		errors.As(err, new(*NotFoundError)) ||
		errors.As(err, new(*UnsupportedProtocolError)) ||
		errors.As(err, new(*RevisionError)) ||
		errors.Is(err, context.Canceled)
}
