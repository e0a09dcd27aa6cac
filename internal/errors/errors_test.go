package errors

import (
	"bytes"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"testing"
)

func TestClassifiedError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ClassifiedError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CategoryConfig, SeverityFatal, "configuration invalid"),
			expected: "config (fatal): configuration invalid",
		},
		{
			name:     "error with cause",
			err:      Wrap(fmt.Errorf("exit status 2"), CategoryDiff, SeverityError, "latexdiff failed"),
			expected: "diff (error): latexdiff failed: exit status 2",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := test.err.Error()
			if result != test.expected {
				t.Errorf("Error() = %q, want %q", result, test.expected)
			}
		})
	}
}

func TestClassifiedError_WithContext(t *testing.T) {
	err := New(CategoryGit, SeverityWarning, "clone failed").
		WithContext("url", "ssh://example").
		WithContext("revision", "HEAD~1")

	if err.Context["url"] != "ssh://example" {
		t.Errorf("Context[url] = %v", err.Context["url"])
	}
	if err.Context["revision"] != "HEAD~1" {
		t.Errorf("Context[revision] = %v", err.Context["revision"])
	}
}

func TestBuilder(t *testing.T) {
	cause := stdErrors.New("i/o timeout")
	err := NewError(CategoryGit, "git operation failed").
		WithCause(cause).
		WithCategory(CategoryNetwork).
		WithContext("op", "clone").
		Retryable().
		Build()

	if err.Category != CategoryNetwork || !err.Retryable || err.Severity != SeverityFatal {
		t.Fatalf("unexpected error %+v", err)
	}
	if !stdErrors.Is(err, cause) {
		t.Error("builder error should unwrap to cause")
	}

	rl := NewError(CategoryNetwork, "throttled").RateLimit().Build()
	if !rl.Retryable || !rl.RateLimit {
		t.Error("rate limit errors are retryable")
	}
}

func TestClassificationHelpersSeeThroughWrapping(t *testing.T) {
	inner := ToolNotFound("latexmk", stdErrors.New("not on PATH"))
	wrapped := fmt.Errorf("verify: %w", inner)

	if !IsCategory(wrapped, CategoryEnvironment) {
		t.Error("IsCategory should unwrap")
	}
	if !IsFatal(wrapped) {
		t.Error("tool errors are fatal")
	}
	if GetCategory(fmt.Errorf("plain")) != CategoryInternal {
		t.Error("unclassified errors default to internal")
	}
	if IsRetryable(wrapped) {
		t.Error("tool errors are not retryable")
	}
	if !IsRetryable(WrapRetryable(stdErrors.New("x"), CategoryNetwork, SeverityWarning, "net")) {
		t.Error("WrapRetryable should be retryable")
	}
}

func TestRecoverableStepErrors(t *testing.T) {
	for _, err := range []*ClassifiedError{
		ExportFailed("abc", stdErrors.New("exit 1")),
		DiffFailed(stdErrors.New("exit 1")),
		PDFBuildFailed(stdErrors.New("exit 12")),
		PDFMissing("/tmp/x.pdf"),
	} {
		if err.Severity == SeverityFatal {
			t.Errorf("%s should not be fatal", err.Category)
		}
	}
}

func TestCLIErrorAdapter(t *testing.T) {
	var out bytes.Buffer
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	code := -1
	a := NewCLIErrorAdapter(false, logger).
		WithWriter(&out).
		WithExit(func(c int) { code = c })

	a.HandleError(ToolTooOld("Git", "2.7", "2.9"))
	if code != 3 {
		t.Errorf("environment errors exit 3, got %d", code)
	}
	if out.String() != "Git version (2.7) is too low. Need at least 2.9\n" {
		t.Errorf("unexpected message %q", out.String())
	}

	tests := []struct {
		err  error
		code int
	}{
		{nil, 0},
		{fmt.Errorf("plain"), 1},
		{ValidationFailed("tag", "empty"), 2},
		{ConfigRequired("tag"), 7},
		{GitCloneError("ssh://x", stdErrors.New("denied")), 8},
		{PDFBuildFailed(stdErrors.New("x")), 11},
		{InternalError("oops", nil), 10},
	}
	for _, tc := range tests {
		if got := a.ExitCodeFor(tc.err); got != tc.code {
			t.Errorf("ExitCodeFor(%v) = %d, want %d", tc.err, got, tc.code)
		}
	}

	if got := a.FormatError(GitCloneError("ssh://x", stdErrors.New("denied"))); got != "git: repository clone failed" {
		t.Errorf("FormatError = %q", got)
	}
	if got := a.FormatError(fmt.Errorf("plain")); got != "Error: plain" {
		t.Errorf("FormatError = %q", got)
	}
}
