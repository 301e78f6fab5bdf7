package catalog

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrMalformedResponse is returned when the catalog payload does not
	// match the expected schema. Never retried.
	ErrMalformedResponse = errors.New("malformed catalog response")
)

// ErrorClass represents a classification of catalog request errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors (except 429).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents schema violations in the response body.
	ErrorClassDecode ErrorClass = "decode"
)

// APIError represents a catalog request error with classification context.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("catalog %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error class is transient and worth retrying.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassClient:
		// 4xx errors indicate a broken request; retrying cannot fix them
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassNetwork:
		return true
	case ErrorClassDecode:
		// Schema violations repeat deterministically
		return false
	default:
		return false
	}
}

// IsTransient reports whether err is a retryable catalog failure. Retry
// exhaustion and cancellation count as transient: the run fails but
// resume state stays valid for a later invocation.
func IsTransient(err error) bool {
	if errors.Is(err, ErrRetryExhausted) || errors.Is(err, ErrContextCancelled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return shouldRetry(apiErr.Class)
	}
	return false
}

// IsFatal reports whether err is an unrecoverable catalog failure.
func IsFatal(err error) bool {
	if errors.Is(err, ErrMalformedResponse) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !shouldRetry(apiErr.Class)
	}
	return false
}
