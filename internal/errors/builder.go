package errors

// ErrorBuilder assembles a ClassifiedError fluently.
type ErrorBuilder struct {
	err *ClassifiedError
}

// NewError starts a builder with fatal severity.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{err: New(category, SeverityFatal, message)}
}

func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.err.WithContext(key, value)
	return b
}

func (b *ErrorBuilder) WithCategory(c ErrorCategory) *ErrorBuilder {
	b.err.Category = c
	return b
}

func (b *ErrorBuilder) WithSeverity(s ErrorSeverity) *ErrorBuilder {
	b.err.Severity = s
	return b
}

// Retryable marks the error as transient.
func (b *ErrorBuilder) Retryable() *ErrorBuilder {
	b.err.Retryable = true
	return b
}

// RateLimit marks the error as transient and caused by remote throttling.
func (b *ErrorBuilder) RateLimit() *ErrorBuilder {
	b.err.Retryable = true
	b.err.RateLimit = true
	return b
}

func (b *ErrorBuilder) Build() *ClassifiedError {
	return b.err
}
