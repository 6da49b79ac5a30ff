package noloco

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/payroll-sync/generic"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnauthorized is returned on HTTP 401. It wraps generic.ErrFatal so
	// a run stops at the first rejected call.
	ErrUnauthorized = fmt.Errorf("%w: noloco rejected the API token (401)", generic.ErrFatal)

	// ErrRetriesExhausted is returned when every attempt failed transiently.
	ErrRetriesExhausted = errors.New("noloco: retries exhausted")

	// ErrGraphQL is returned when the response carries an errors array.
	ErrGraphQL = errors.New("noloco: graphql error")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// HTTPStatusError is a non-200 response other than 401.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("noloco: HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// GraphQLError collects the messages of a failed query.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "noloco: graphql error: " + strings.Join(e.Messages, "; ")
}

func (e *GraphQLError) Unwrap() error {
	return ErrGraphQL
}

// RetryError is the last transient failure after all attempts.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("noloco: giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// IsRetryable returns true for failures the client retries: 429, 5xx,
// timeouts and connection errors.
func IsRetryable(err error) bool {
	var status *HTTPStatusError
	if errors.As(err, &status) {
		return status.Retryable()
	}
	var transport *transportError
	return errors.As(err, &transport)
}

// transportError marks a request that never got a response.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "noloco: request failed: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }
