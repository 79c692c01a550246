package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeDecode     ErrorType = "decode"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeNavigation ErrorType = "navigation"
	ErrorTypeCancelled  ErrorType = "cancelled"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// Error represents a classified exporter error
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// Wrap creates a classified error around an underlying cause
func Wrap(errorType ErrorType, message string, err error) *Error {
	return &Error{Type: errorType, Message: message, Err: err}
}

// NewDecode creates a decode error for an unreadable response payload
func NewDecode(message string, err error) *Error {
	return &Error{Type: ErrorTypeDecode, Message: message, Err: err}
}

// NewStorage creates a storage error for a failed persistence operation
func NewStorage(message string, err error) *Error {
	return &Error{Type: ErrorTypeStorage, Message: message, Err: err}
}

// NewNavigation creates a navigation error for a failed browser operation
func NewNavigation(message string, err error) *Error {
	return &Error{Type: ErrorTypeNavigation, Message: message, Err: err}
}

// TypeOf returns the classified type of err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err is classified as the given type
func IsType(err error, errorType ErrorType) bool {
	return TypeOf(err) == errorType
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeNavigation:
		return true
	case ErrorTypeRateLimit:
		// Hard limits pause the session; retrying fast makes them worse.
		return false
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeDecode, ErrorTypeCancelled, ErrorTypeConfig:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return false
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}

// Sentinel errors shared across packages.
var (
	// ErrSessionCancelled reports a cooperative cancellation.
	ErrSessionCancelled = New(ErrorTypeCancelled, "session cancelled")
	// ErrNoTimelinePayload reports a response with no recognizable timeline shape.
	ErrNoTimelinePayload = New(ErrorTypeDecode, "no recognizable timeline payload")
	// ErrNoCredentials reports that no usable credentials could be resolved.
	ErrNoCredentials = New(ErrorTypeAuth, "no credentials available")
)
