// Package errors provides the error classification used across the flowrt
// runtime. Errors are wrapped with the component and operation that produced
// them and carry a class that decides how the caller reacts: invalid errors
// reject an operation outright (a bad flow definition rejects the whole
// deploy), transient errors may be retried, and fatal errors stop processing.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Deploy validation errors. All of these reject a deploy as a whole;
	// the previously running graph is left untouched.
	ErrUnknownType       = errors.New("unknown node type")
	ErrDuplicateNodeID   = errors.New("duplicate node identifier")
	ErrDanglingWire      = errors.New("wire target not in deployed set")
	ErrInvalidDefinition = errors.New("invalid flow definition")

	// Runtime lifecycle errors
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrNodeClosed     = errors.New("node is closed")

	// Context store errors
	ErrKeyNotFound  = errors.New("key not found")
	ErrInvalidScope = errors.New("invalid context scope")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Connection errors
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionTimeout = errors.New("connection timeout")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsInvalid checks if an error is due to invalid input. Deploy rejections
// (malformed definitions, unknown types, dangling wires) are invalid-class.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrUnknownType) ||
		errors.Is(err, ErrDuplicateNodeID) ||
		errors.Is(err, ErrDanglingWire) ||
		errors.Is(err, ErrInvalidDefinition) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidScope)
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	return errors.Is(err, ErrNoConnection) ||
		errors.Is(err, ErrConnectionTimeout)
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return false
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if IsInvalid(err) {
		return ErrorInvalid
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	return ErrorTransient
}

// newClassified creates a new classified error.
// This is an internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}
