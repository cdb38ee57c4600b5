// Package errors provides standardized domain errors that express business intent
// rather than infrastructure details. Every error carries a stable machine-readable
// code so API layers and operators can react without parsing messages.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors that can be used across all domain modules.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data (e.g., duplicate key).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the request lacks valid authentication credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the authorizer denied the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrSealed indicates the system is sealed and cannot perform the operation.
	ErrSealed = errors.New("sealed")

	// ErrRetryable indicates a transient failure that callers may retry.
	ErrRetryable = errors.New("retryable")
)

// CodedError pairs a stable machine-readable code with a wrapped cause.
// Messages must never contain key material, share values, or secret plaintext.
type CodedError struct {
	Code    string
	Message string
	cause   error
}

// Error returns "CODE: message".
func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As matching.
func (e *CodedError) Unwrap() error {
	return e.cause
}

// Coded creates a CodedError wrapping the given sentinel cause.
func Coded(code string, cause error, message string) error {
	return &CodedError{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the stable code from an error chain, or "INTERNAL" when
// the error carries no code.
func CodeOf(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return "INTERNAL"
}

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
