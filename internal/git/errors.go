package git

import (
	"errors"
	"strings"

	derrors "git.home.luguber.info/inful/tdrdiff/internal/errors"
)

// GitError simplifies creating a git-scoped ClassifiedError.
func GitError(message string) *derrors.ErrorBuilder {
	return derrors.NewError(derrors.CategoryGit, message)
}

// ClassifyGitError translates backend errors into fatal ClassifiedErrors.
// Typed errors decide the category; anything else stays in the git category.
func ClassifyGitError(err error, op string, url string) error {
	if err == nil {
		return nil
	}
	if _, ok := derrors.AsClassified(err); ok {
		return err
	}

	builder := GitError("git "+op+" failed").
		WithCause(err).
		WithContext("op", op)
	if url != "" {
		builder.WithContext("url", url)
	}

	var (
		authErr  *AuthError
		nfErr    *NotFoundError
		protoErr *UnsupportedProtocolError
		rlErr    *RateLimitError
		toErr    *NetworkTimeoutError
		revErr   *RevisionError
	)
	switch {
	case errors.As(err, &authErr):
		builder.WithCategory(derrors.CategoryAuth)
	case errors.As(err, &nfErr):
		builder.WithCategory(derrors.CategoryNotFound)
	case errors.As(err, &protoErr):
		builder.WithCategory(derrors.CategoryConfig)
	case errors.As(err, &rlErr):
		builder.WithCategory(derrors.CategoryNetwork).RateLimit()
	case errors.As(err, &toErr):
		builder.WithCategory(derrors.CategoryNetwork).Retryable()
	case errors.As(err, &revErr):
		builder.WithContext("revision", revErr.Revision)
	case strings.Contains(strings.ToLower(err.Error()), "diverged"):
		builder.WithContext("diverged", true)
	}
	return builder.Build()
}
