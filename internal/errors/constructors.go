package errors

import "fmt"

// Convenience functions for common error patterns

// Config errors

func ConfigRequired(field string) *ClassifiedError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *ClassifiedError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Environment errors

func ToolNotFound(tool string, cause error) *ClassifiedError {
	return Wrap(cause, CategoryEnvironment, SeverityFatal, "required tool not found").
		WithContext("tool", tool)
}

// ToolTooOld reports an outdated tool, e.g. "Git version (2.7) is too low.
// Need at least 2.9".
func ToolTooOld(tool, have, want string) *ClassifiedError {
	return New(CategoryEnvironment, SeverityFatal,
		fmt.Sprintf("%s version (%s) is too low. Need at least %s", tool, have, want)).
		WithContext("tool", tool).
		WithContext("have", have).
		WithContext("want", want)
}

// Pipeline step errors. Step failures after the checkouts are recoverable:
// the run continues and reports them.

func ExportFailed(revision string, cause error) *ClassifiedError {
	return Wrap(cause, CategoryExport, SeverityError, "export build failed").
		WithContext("revision", revision)
}

func DiffFailed(cause error) *ClassifiedError {
	return Wrap(cause, CategoryDiff, SeverityError, "latexdiff failed")
}

func PDFBuildFailed(cause error) *ClassifiedError {
	return Wrap(cause, CategoryBuild, SeverityError, "latexmk failed")
}

func PDFMissing(path string) *ClassifiedError {
	return New(CategoryDelivery, SeverityWarning, "PDF file not created").
		WithContext("path", path)
}

func WorkspaceError(operation string, cause error) *ClassifiedError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}

// Git errors

func GitCloneError(url string, cause error) *ClassifiedError {
	return Wrap(cause, CategoryGit, SeverityFatal, "repository clone failed").
		WithContext("url", url)
}

func GitCheckoutError(revision string, cause error) *ClassifiedError {
	return Wrap(cause, CategoryGit, SeverityFatal, "checkout failed").
		WithContext("revision", revision)
}

func GitResolveError(revision string, cause error) *ClassifiedError {
	return Wrap(cause, CategoryGit, SeverityFatal, "cannot resolve revision").
		WithContext("revision", revision)
}

// Internal errors

func InternalError(message string, cause error) *ClassifiedError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
