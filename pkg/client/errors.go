package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrTimeout is returned when a request exceeds its deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrDecode is returned when a response body is not valid JSON.
	ErrDecode = errors.New("response decode failed")

	// ErrRetryExhausted is returned when all ordinary retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrRecoveryExhausted is returned when extended recovery attempts are exhausted.
	ErrRecoveryExhausted = errors.New("recovery attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassRateLimit represents HTTP 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassUpstream represents non-200, non-429 HTTP responses.
	ErrorClassUpstream ErrorClass = "upstream"

	// ErrorClassDecode represents malformed response bodies.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassTimeout represents deadline-exceeded failures.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassNetwork represents other transport-level failures
	// (connection reset, DNS failure, ...).
	ErrorClassNetwork ErrorClass = "network"
)

// APIError represents an HTTP-level upstream failure with additional context.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("API %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("API %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Classify categorizes a transport failure for retry policy and observability.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	if errors.Is(err, ErrTimeout) {
		return ErrorClassTimeout
	}
	if errors.Is(err, ErrDecode) {
		return ErrorClassDecode
	}
	return ErrorClassNetwork
}
