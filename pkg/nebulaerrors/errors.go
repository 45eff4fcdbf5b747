// Package nebulaerrors provides structured error handling for nebula-sync with rich context,
// stack traces, and error categorization. It enables consistent error handling
// patterns across the task engine and the connectors built on it.
//
// # Overview
//
// The nebulaerrors package extends Go's standard error handling with:
//   - Error categorization through ErrorType
//   - Structured context with key-value details
//   - Automatic stack trace capture
//   - Error wrapping with cause preservation
//   - Classification helpers used by the task exception handler
//
// # Basic Usage
//
//	// Create a new error
//	err := nebulaerrors.New(nebulaerrors.ErrorTypeValidation, "invalid record range")
//
//	// Add context
//	err = err.WithDetail("start", r.Start).
//	         WithDetail("end", r.End)
//
//	// Wrap existing errors
//	if err := loader.ProcessBatch(ctx, batch); err != nil {
//	    return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeStream, "batch processing failed").
//	        WithDetail("stream", stream.String())
//	}
//
// # Error Types
//
// Errors are categorized by type, which drives:
//   - Failure routing (stream-scoped vs sync-scoped)
//   - Monitoring and alerting labels
//   - Debugging and troubleshooting
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Create new
// instances or use WithDetail before sharing across goroutines.
package nebulaerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error, used for error handling strategies,
// monitoring, and failure routing.
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors and broken invariants
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents resource not found errors
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents malformed input or spilled data
	ErrorTypeData ErrorType = "data"
	// ErrorTypeFile represents local file operation errors
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeQueueClosed represents work offered to a closed queue
	ErrorTypeQueueClosed ErrorType = "queue_closed"
	// ErrorTypeStream represents a failure isolated to a single stream
	ErrorTypeStream ErrorType = "stream"
	// ErrorTypeSync represents a failure that aborts the whole sync
	ErrorTypeSync ErrorType = "sync"
	// ErrorTypeConnection represents connection errors raised by connectors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
)

// ErrQueueClosed is returned when work is offered to a queue or task runner
// that has already been closed. Callers may drop the work or log it.
var ErrQueueClosed = &Error{Type: ErrorTypeQueueClosed, Message: "queue closed"}

// Error represents a structured error with context, providing rich debugging
// information and enabling error routing decisions.
//
// Fields:
//   - Type: Categorizes the error for handling strategies
//   - Message: Human-readable error description
//   - Cause: The underlying error that caused this error
//   - Details: Key-value pairs providing additional context
//   - Stack: Call stack at the point of error creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack, capturing
// the function name, file path, and line number for debugging.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface, returning a formatted error message
// that includes the error type, message, and cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling compatibility with errors.Is
// and errors.As for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error, providing additional context
// for debugging and monitoring. This method can be chained for adding multiple details.
//
// Example:
//
//	err := nebulaerrors.New(ErrorTypeData, "malformed spilled record").
//	    WithDetail("path", path).
//	    WithDetail("line", lineNo)
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, automatically
// capturing the call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the original
// error as the cause. If the error is already a structured Error, its stack
// trace is preserved. Returns nil if the input error is nil.
//
// Example:
//
//	if err := f.Close(); err != nil {
//	    return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to close spill file").
//	        WithDetail("path", f.Name())
//	}
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) && len(existingErr.Stack) > 0 {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks if the error, or any error in its chain, is of the given type.
//
// Example:
//
//	if nebulaerrors.IsType(err, nebulaerrors.ErrorTypeQueueClosed) {
//	    // the sync is shutting down, drop the follow-up work
//	    return nil
//	}
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsQueueClosed reports whether err signals work offered to a closed queue.
func IsQueueClosed(err error) bool {
	return errors.Is(err, ErrQueueClosed) || IsType(err, ErrorTypeQueueClosed)
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
