package internal

import (
	"errors"
	"fmt"
)

// ErrorKind classifies run failures so callers can tell a credential problem
// from a transient outage from a bad request without parsing messages.
type ErrorKind string

const (
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindInvalidCredential ErrorKind = "invalid_credential"
	KindRateLimited       ErrorKind = "rate_limited"
	KindModelUnavailable  ErrorKind = "model_unavailable"
	KindTransientNetwork  ErrorKind = "transient_network_error"
	KindEvaluationParse   ErrorKind = "evaluation_parse_error"
	KindCancelled         ErrorKind = "cancelled_by_caller"
)

// Error is a classified error. It wraps an optional cause so errors.Is and
// errors.As keep working through the classification layer.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a classified error without a cause.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a classified error wrapping cause.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the classification of err, or false when err carries none.
func KindOf(err error) (ErrorKind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// IsTransient reports whether a kind is expected to resolve on retry.
func IsTransient(kind ErrorKind) bool {
	switch kind {
	case KindRateLimited, KindModelUnavailable, KindTransientNetwork:
		return true
	}
	return false
}
