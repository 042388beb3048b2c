package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeInternal            ErrorType = "internal"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeMethodNotAllowed    ErrorType = "method_not_allowed"
	ErrorTypeBadRequest          ErrorType = "bad_request"
	ErrorTypeQuotaExceeded       ErrorType = "quota_exceeded"
	ErrorTypeStoreUnavailable    ErrorType = "store_unavailable"
	ErrorTypeUpstreamUnavailable ErrorType = "upstream_unavailable"
)

// Error represents a structured error with additional context.
//
// Message is the client-facing text rendered into the "error" field of the
// JSON body. Exception, when set, is rendered into the "exception" field.
type Error struct {
	Type      ErrorType
	Message   string
	Exception string
	Cause     error
	Details   map[string]any
}

// NewError creates a new structured error
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Details: make(map[string]any),
	}
}

// Newf creates a new structured error with a formatted message
func Newf(errType ErrorType, format string, args ...any) *Error {
	return NewError(errType, fmt.Sprintf(format, args...))
}

// WithCause adds the underlying cause to the error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithException attaches debugging text exposed as the "exception" field
func (e *Error) WithException(exception string) *Error {
	e.Exception = exception
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// HTTPStatusCode returns the appropriate HTTP status code for the error type
func (e *Error) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeBadRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrorTypeQuotaExceeded:
		return http.StatusTooManyRequests
	case ErrorTypeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Body returns the JSON document sent to the client
func (e *Error) Body() map[string]string {
	body := map[string]string{"error": e.Message}
	if e.Exception != "" {
		body["exception"] = e.Exception
	}
	return body
}

// IsType reports whether err carries a structured error of the given type
func IsType(err error, errType ErrorType) bool {
	var gwErr *Error
	if !stderrors.As(err, &gwErr) {
		return false
	}
	return gwErr.Type == errType
}

// As is errors.As, re-exported so callers need a single errors import
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
