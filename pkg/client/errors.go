package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when a bounded retry budget is spent.
	// Never returned under the default unlimited policy.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrInterrupted is returned when the context is cancelled during a
	// request or a backoff delay.
	ErrInterrupted = errors.New("interrupted")

	// ErrMalformedResponse is returned when a 2xx body cannot be parsed
	// into the expected envelope. Fatal: pagination needs a trustworthy
	// cursor field.
	ErrMalformedResponse = errors.New("malformed response")
)

// APIError represents a registry error with classification context.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("atlas %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("atlas %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Classify extracts the error class from an error chain. Errors with no
// classification (including nil) yield the empty class.
func Classify(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ""
}

// shouldRetry determines if an error class warrants another attempt.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx (auth failure, bad request, not found) will fail the
		// same way every time
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err would be retried by the client.
// Exposed for callers wrapping the transport with their own policy.
func IsRetryable(err error) bool {
	return shouldRetry(Classify(err))
}
