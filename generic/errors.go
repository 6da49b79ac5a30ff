/*
errors.go - Centralized error types for the generic package

PURPOSE:
  Sentinel errors shared by the calendar, the paging helpers and the
  repository implementations. Domain packages wrap these with context.

USAGE:
    if errors.Is(err, generic.ErrNotFound) {
        // record disappeared between list and re-read
    }

SEE ALSO:
  - payroll/errors.go: Validation errors of the reconciliation engine
  - store/noloco/errors.go: Transport classification
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrReferenceNotMonday is returned when a calendar is anchored on a day
	// other than Monday.
	ErrReferenceNotMonday = errors.New("reference date is not a Monday")

	// ErrInvalidDate is returned when a date string cannot be read.
	ErrInvalidDate = errors.New("invalid date")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrFatal marks errors that must abort a whole run, such as rejected
	// credentials. Transports wrap it; the orchestrator checks for it.
	ErrFatal = errors.New("fatal platform error")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DateError reports the raw value that failed to parse.
type DateError struct {
	Value string
}

func (e *DateError) Error() string {
	return fmt.Sprintf("invalid date %q", e.Value)
}

func (e *DateError) Unwrap() error {
	return ErrInvalidDate
}

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// IsFatal returns true if the error must stop the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
