package gateway

import (
	"errors"
	"fmt"

	"github.com/brunovalongo/fretepay-backend/pkg/enums"
)

// Error is a provider call failure. Transient failures (network, 5xx,
// provider-flagged retryable) may be retried; terminal ones (4xx,
// rejected split) must not.
type Error struct {
	Kind       enums.GatewayKind
	Op         string
	StatusCode int
	Message    string
	Transient  bool
	cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Kind, e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// NewTransientError marks a failure as retryable.
func NewTransientError(kind enums.GatewayKind, op string, statusCode int, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, StatusCode: statusCode, Message: message, Transient: true, cause: cause}
}

// NewTerminalError marks a failure as non-retryable.
func NewTerminalError(kind enums.GatewayKind, op string, statusCode int, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, StatusCode: statusCode, Message: message, cause: cause}
}

// IsTransient reports whether err is a retryable gateway failure.
func IsTransient(err error) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Transient
	}
	return false
}
