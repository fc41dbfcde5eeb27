// Package llmerrors classifies decision-provider failures so retries, logs
// and metrics can tell a throttled key from a broken prompt.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of LLM errors.
type ErrorType int8

const (
	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded, overloaded).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, timeout).
	ErrorTypeTransient
	// ErrorTypeEmptyResponse represents a successful call that returned no text.
	ErrorTypeEmptyResponse
	// ErrorTypeAuth represents a rejected API key (401/403).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents a request the provider refuses as malformed.
	ErrorTypeBadPrompt
	// ErrorTypeUnknown represents default for unclassified errors.
	ErrorTypeUnknown
)

var typeNames = [...]string{
	ErrorTypeRateLimit:     "rate_limit",
	ErrorTypeTransient:     "transient",
	ErrorTypeEmptyResponse: "empty_response",
	ErrorTypeAuth:          "auth",
	ErrorTypeBadPrompt:     "bad_prompt",
	ErrorTypeUnknown:       "unknown",
}

// String returns the metric label of the error type.
func (et ErrorType) String() string {
	if et < 0 || int(et) >= len(typeNames) {
		return "invalid"
	}
	return typeNames[et]
}

// Error is a classified provider failure.
type Error struct {
	Err        error     // underlying SDK or transport error
	Message    string    // what the backend was doing
	Type       ErrorType // classification
	StatusCode int       // HTTP status, 0 when the call never got one
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	switch {
	case msg == "" && e.Err != nil:
		msg = e.Err.Error()
	case msg == "":
		msg = http.StatusText(e.StatusCode)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider error (%s, status %d): %s", e.Type, e.StatusCode, msg)
	}
	return fmt.Sprintf("provider error (%s): %s", e.Type, msg)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
// A bare deadline counts as transient.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTransient
	}
	return ErrorTypeUnknown
}

// NewError creates a new classified LLM error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewErrorWithCause creates a new classified LLM error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// TypeForStatus maps an HTTP status code onto an ErrorType.
func TypeForStatus(status int) ErrorType {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorTypeAuth
	case status == http.StatusBadRequest || status == http.StatusNotFound ||
		status == http.StatusRequestEntityTooLarge || status == http.StatusUnprocessableEntity:
		return ErrorTypeBadPrompt
	case status >= http.StatusInternalServerError:
		return ErrorTypeTransient
	default:
		return ErrorTypeUnknown
	}
}
