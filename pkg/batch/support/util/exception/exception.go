// Package exception provides the importer's error type and error classification.
//
// Errors fall into the categories the run coordinator acts on:
// precondition failures (fatal, nonzero exit), retryable write failures, and
// everything else. A BatchError records which module raised it so that log
// lines and the progress feed can show where a run stopped.
package exception

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPrecondition marks failures that must abort a run before any write:
	// unreadable input, invalid schema, unreachable table.
	ErrPrecondition = errors.New("precondition failed")
	// ErrInvalidSchema marks schema documents that cannot be loaded or validated.
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrStoreUnavailable marks a target table that cannot be described or reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNothingToDo is returned when an input has no data rows.
	ErrNothingToDo = errors.New("nothing to do")
)

// BatchError is an error raised while importing.
type BatchError struct {
	// Module is the component that raised the error (e.g. "schema", "writer", "partitioner").
	Module string
	// Message is a concise description of the failure.
	Message string
	// OriginalErr is the wrapped cause. It may be nil.
	OriginalErr error

	retryable bool
	fatal     bool
}

// NewBatchError creates a BatchError.
//
// Parameters:
//
//	module: The component raising the error.
//	message: The error message.
//	originalErr: The wrapped cause, or nil.
//	retryable: Whether a bounded retry may succeed.
//	fatal: Whether the run must stop.
func NewBatchError(module, message string, originalErr error, retryable, fatal bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		retryable:   retryable,
		fatal:       fatal,
	}
}

// NewBatchErrorf creates a non-retryable, non-fatal BatchError with a formatted message.
// If the last argument is an error it becomes the wrapped cause instead of a format argument.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var cause error
	if n := len(a); n > 0 {
		if err, ok := a[n-1].(error); ok && strings.Count(format, "%")-2*strings.Count(format, "%%") < n {
			cause = err
			a = a[:n-1]
		}
	}
	return NewBatchError(module, fmt.Sprintf(format, a...), cause, false, false)
}

// NewPreconditionError creates a fatal BatchError that matches ErrPrecondition
// as well as originalErr under errors.Is.
func NewPreconditionError(module, message string, originalErr error) *BatchError {
	wrapped := ErrPrecondition
	if originalErr != nil {
		wrapped = errors.Join(ErrPrecondition, originalErr)
	}
	return NewBatchError(module, message, wrapped, false, true)
}

// Error returns "[module] message: cause".
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Is and errors.As.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.retryable
}

// IsFatal returns whether this error must stop the run.
func (e *BatchError) IsFatal() bool {
	return e.fatal
}

// IsPrecondition reports whether err is, or wraps, a precondition failure.
func IsPrecondition(err error) bool {
	return err != nil && errors.Is(err, ErrPrecondition)
}

// IsRetryable reports whether err is worth another attempt. A BatchError's
// own flag wins; context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset")
}

// IsFatal reports whether err must stop the run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if IsPrecondition(err) {
		return true
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsFatal()
	}
	return false
}

// ExtractErrorMessage returns the BatchError message, or err.Error() for other errors.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
