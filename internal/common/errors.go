// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy shared by every component of the engine.
var (
	// ErrUnauthenticated means no acting identity was supplied.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound means the referenced entity is absent or not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the caller is authenticated but lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalid means the input or a stored document is malformed.
	ErrInvalid = errors.New("invalid")
	// ErrStoreUnavailable means the backing store failed an I/O operation.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// FieldError reports which field of an input made it invalid.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrInvalid) match.
func (e *FieldError) Unwrap() error {
	return ErrInvalid
}

// Invalid builds a FieldError for the named field.
func Invalid(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

// InvalidField returns the offending field name when err is a FieldError.
func InvalidField(err error) (string, bool) {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Field, true
	}
	return "", false
}

// Unavailable wraps a backing store failure so callers can detect it with errors.Is.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a caller-driven retry.
// Only infrastructure failures qualify; business-logic failures are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
