package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrTooRecentStartTime is returned when the API rejects an incremental
	// request because start_time falls within the last minute. Exports treat
	// it as a successful fetch with zero records.
	ErrTooRecentStartTime = errors.New("start_time too recent")

	// ErrContextCancelled is returned when the context is cancelled during a
	// retry backoff or rate-limit wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// ConfigError indicates a setup problem: bad credentials, unknown auth
// method, unknown target, malformed login URL, or a 4xx response other than
// rate limiting. It is never retried.
type ConfigError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error: %s: %v", e.Message, e.Err)
	}
	return "config error: " + e.Message
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// DataError indicates a response body that fails to decode as the expected
// structure, or a rate-limit hit during a preview fetch (previews fail fast
// instead of sleeping). It is never retried.
type DataError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error: %s: %v", e.Message, e.Err)
	}
	return "data error: " + e.Message
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *DataError) Unwrap() error {
	return e.Err
}

// APIError carries a raw non-success response for classification and
// diagnostics.
type APIError struct {
	StatusCode int
	Body       string

	// RetryAfter is the Retry-After header value in seconds, 0 when absent.
	RetryAfter int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("zendesk api error: status '%d', body '%s'", e.StatusCode, e.Body)
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsDataError reports whether err wraps a DataError.
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}
