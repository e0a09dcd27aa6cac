// Package errors provides a lightweight structured error type (ClassifiedError)
// for category-based classification, retry semantics and CLI exit codes.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the category of a tdrdiff error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryAuth       ErrorCategory = "auth"

	// Host environment (missing or outdated external tools)
	CategoryEnvironment ErrorCategory = "environment"

	// External system integration errors
	CategoryNetwork  ErrorCategory = "network"
	CategoryGit      ErrorCategory = "git"
	CategoryNotFound ErrorCategory = "not_found"

	// Pipeline step errors
	CategoryExport     ErrorCategory = "export"
	CategoryDiff       ErrorCategory = "diff"
	CategoryBuild      ErrorCategory = "build"
	CategoryDelivery   ErrorCategory = "delivery"
	CategoryFileSystem ErrorCategory = "filesystem"

	// Runtime and infrastructure errors
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// ClassifiedError is a structured error with category, retryability, and context
type ClassifiedError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	RateLimit bool          `json:"rate_limit,omitempty"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for ClassifiedError
type ContextFields map[string]any

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new ClassifiedError
func New(category ErrorCategory, severity ErrorSeverity, message string) *ClassifiedError {
	return &ClassifiedError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new ClassifiedError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *ClassifiedError {
	return &ClassifiedError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// WrapRetryable creates a new retryable ClassifiedError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *ClassifiedError {
	e := Wrap(err, category, severity, message)
	e.Retryable = true
	return e
}

// AsClassified returns the first ClassifiedError in err's chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var ce *ClassifiedError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if ce, ok := AsClassified(err); ok {
		return ce.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if ce, ok := AsClassified(err); ok {
		return ce.Retryable
	}
	return false
}

// IsFatal reports whether err is classified with fatal severity.
func IsFatal(err error) bool {
	if ce, ok := AsClassified(err); ok {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not classified
func GetCategory(err error) ErrorCategory {
	if ce, ok := AsClassified(err); ok {
		return ce.Category
	}
	return CategoryInternal
}
