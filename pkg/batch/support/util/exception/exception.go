// Package exception provides the error types shared by the batch engine.
// Errors are wrapped in a BatchError carrying the module that raised them, or in a
// ChunkError when they happen while a chunk is being read, transformed or written.
package exception

import (
	"errors"
	"fmt"
	"runtime"
)

// BatchError is an error raised by one of the batch modules.
type BatchError struct {
	// Module is the module where the error occurred (e.g. "reader", "writer", "config", "repository").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	isRetryable bool
	isSkippable bool
	// StackTrace is the stack at the time the error was created.
	StackTrace string
}

// NewBatchError creates a new BatchError.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf creates a new, non-retryable and non-skippable BatchError with a formatted message.
// If the last argument is an error it becomes OriginalErr and is not used for formatting.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	if len(a) > 0 {
		if err, ok := a[len(a)-1].(error); ok {
			originalErr = err
			a = a[:len(a)-1]
		}
	}
	return NewBatchError(module, fmt.Sprintf(format, a...), originalErr, false, false)
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Is / errors.As.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsBatchError reports whether err is, or wraps, a BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// OptimisticLockingFailureException is the name of the optimistic locking failure.
const OptimisticLockingFailureException = "OptimisticLockingFailureException"

// ErrOptimisticLockingFailure is returned when a versioned row was modified concurrently.
var ErrOptimisticLockingFailure = errors.New(OptimisticLockingFailureException)

// NewOptimisticLockingFailureException creates a BatchError wrapping ErrOptimisticLockingFailure.
func NewOptimisticLockingFailureException(module, message string, originalErr error) *BatchError {
	errToWrap := error(ErrOptimisticLockingFailure)
	if originalErr != nil {
		errToWrap = errors.Join(ErrOptimisticLockingFailure, originalErr)
	}
	return NewBatchError(module, message, errToWrap, false, false)
}

// IsOptimisticLockingFailure reports whether err is an optimistic locking failure.
func IsOptimisticLockingFailure(err error) bool {
	return err != nil && errors.Is(err, ErrOptimisticLockingFailure)
}

// ExtractErrorMessage returns the Message of a BatchError, or err.Error() for anything else.
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
