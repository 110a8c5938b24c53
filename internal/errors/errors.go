package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies a failure so callers can decide whether to retry,
// surface, or abort.
type ErrorType string

const (
	// Pipeline taxonomy
	ErrTypeAnalysisFailed     ErrorType = "analysis_failed"
	ErrTypeMultipleStatements ErrorType = "multiple_statements"
	ErrTypeSyntax             ErrorType = "syntax_error"
	ErrTypeUnknownIdentifier  ErrorType = "unknown_identifier"
	ErrTypeEmptyStatement     ErrorType = "empty_statement"
	ErrTypeExecution          ErrorType = "execution"
	ErrTypeRetryExhausted     ErrorType = "retry_exhausted"
	ErrTypeMutationDeclined   ErrorType = "mutation_declined"
	ErrTypeCancelled          ErrorType = "cancelled"

	// Collaborators and plumbing
	ErrTypeLLM        ErrorType = "llm"
	ErrTypeDatabase   ErrorType = "database"
	ErrTypeValidation ErrorType = "validation"
	ErrTypeConfig     ErrorType = "config"
	ErrTypeInternal   ErrorType = "internal"
)

// Error is a structured error with a type and optional suggestions
type Error struct {
	Type        ErrorType
	Message     string
	Cause       error
	Suggestions []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion adds a hint for resolving the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// New creates a structured error
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a structured error with a formatted message
func Newf(errType ErrorType, format string, args ...any) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with a type and message
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, errType ErrorType, format string, args ...any) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsType checks if an error (or anything it wraps) is of a specific type
func IsType(err error, errType ErrorType) bool {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// IsRetryable reports whether a failed attempt may be fed back to the
// analyzer as corrective feedback.
func IsRetryable(err error) bool {
	switch GetType(err) {
	case ErrTypeMultipleStatements,
		ErrTypeSyntax,
		ErrTypeUnknownIdentifier,
		ErrTypeEmptyStatement,
		ErrTypeExecution:
		return true
	default:
		return false
	}
}

// NewConfigError creates a configuration error with suggestions
func NewConfigError(message, field string) *Error {
	err := New(ErrTypeConfig, message)
	if field != "" {
		err.Message = fmt.Sprintf("%s (field: %s)", message, field)
	}

	return err.
		WithSuggestion("Check your configuration file syntax").
		WithSuggestion("Run with --help to see valid configuration options")
}

// As is errors.As, re-exported so callers need only this package
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is errors.Is, re-exported alongside As
func Is(err, target error) bool {
	return errors.Is(err, target)
}
