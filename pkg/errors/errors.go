// Package errors provides typed errors for watercache
package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// ErrIllegalState indicates an operation invoked in the wrong lifecycle state
	ErrIllegalState ErrorType = iota
	// ErrValidation indicates an input validation error
	ErrValidation
	// ErrTick indicates a cached item failed during a tick pass
	ErrTick
	// ErrListener indicates a listener callback failed
	ErrListener
	// ErrInterrupted indicates a wait or sleep was cancelled
	ErrInterrupted
	// ErrWorker indicates the supervised worker died
	ErrWorker
	// ErrConfig indicates a configuration error
	ErrConfig
)

// Error is the base error type for all watercache errors
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", errorTypeString(e.Type), e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", errorTypeString(e.Type), e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error
func New(errType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	e.Context[key] = value
	return e
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var wcErr *Error
	if err == nil {
		return false
	}
	if errors.As(err, &wcErr) {
		return wcErr.Type == errType
	}
	return false
}

// IsFatal returns true if the error ends the component that raised it.
// Tick and listener failures are contained at their boundary and are not fatal.
func IsFatal(err error) bool {
	var wcErr *Error
	if !errors.As(err, &wcErr) {
		return false
	}

	switch wcErr.Type {
	case ErrWorker, ErrInterrupted:
		return true
	default:
		return false
	}
}

// Recovered converts a value returned by recover into an error.
func Recovered(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}

func errorTypeString(et ErrorType) string {
	switch et {
	case ErrIllegalState:
		return "ILLEGAL_STATE"
	case ErrValidation:
		return "VALIDATION"
	case ErrTick:
		return "TICK"
	case ErrListener:
		return "LISTENER"
	case ErrInterrupted:
		return "INTERRUPTED"
	case ErrWorker:
		return "WORKER"
	case ErrConfig:
		return "CONFIG"
	default:
		return "UNKNOWN"
	}
}

// Convenience functions for common errors

// IllegalStateError creates an illegal-state error
func IllegalStateError(message string, cause error) *Error {
	return New(ErrIllegalState, message, cause)
}

// ValidationError creates a validation error
func ValidationError(message string, cause error) *Error {
	return New(ErrValidation, message, cause)
}

// TickError creates a tick error carrying the failing item's cause
func TickError(message string, cause error) *Error {
	return New(ErrTick, message, cause)
}

// ListenerError creates a listener error
func ListenerError(message string, cause error) *Error {
	return New(ErrListener, message, cause)
}

// InterruptedError creates an interrupted-wait error
func InterruptedError(message string, cause error) *Error {
	return New(ErrInterrupted, message, cause)
}

// WorkerError creates a worker death error
func WorkerError(message string, cause error) *Error {
	return New(ErrWorker, message, cause)
}

// ConfigError creates a configuration error
func ConfigError(message string, cause error) *Error {
	return New(ErrConfig, message, cause)
}
