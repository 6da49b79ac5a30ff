/*
errors.go - Validation and reconciliation errors

PURPOSE:
  Errors raised while checking or writing one employee group. All of them
  are recovered by the orchestrator: the group is skipped or failed, the run
  continues, and the error text lands in the run summary.

  Only transport-level fatal errors (see store/noloco) abort a run.

USAGE:
    var dup *payroll.DuplicateClockPairError
    if errors.As(err, &dup) {
        log.Warn("duplicate shift", zap.Strings("ids", dup.TimesheetIDs))
    }

SEE ALSO:
  - validation.go: Where these are produced
  - generic/errors.go: Shared sentinels
*/
package payroll

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
	// ErrDuplicateClockPair is returned when two timesheets in one group share
	// the same clock-in and clock-out.
	ErrDuplicateClockPair = errors.New("duplicate clock in/out pair")

	// ErrDuplicatePayroll is returned when an (employee, period) slot already
	// has, or would get, more than one payroll record.
	ErrDuplicatePayroll = errors.New("duplicate payroll record")

	// ErrVerificationFailed is returned when a re-read record does not match
	// what was written.
	ErrVerificationFailed = errors.New("payroll verification failed")

	// ErrMissingEmployeePIN is returned for timesheets without an employee.
	ErrMissingEmployeePIN = errors.New("missing employee pin")

	// ErrEmptyGroup is returned when asked to create a record with no timesheets.
	ErrEmptyGroup = errors.New("empty timesheet group")

	// ErrRunInProgress is returned by TryRun while another run holds the lock.
	ErrRunInProgress = errors.New("a payroll run is already in progress")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateClockPairError names the colliding timesheets.
type DuplicateClockPairError struct {
	EmployeePIN  string
	ClockIn      string
	ClockOut     string
	TimesheetIDs []string
}

func (e *DuplicateClockPairError) Error() string {
	return fmt.Sprintf("employee %s: timesheets %s share clock pair %s|%s",
		e.EmployeePIN, strings.Join(e.TimesheetIDs, ", "), e.ClockIn, e.ClockOut)
}

func (e *DuplicateClockPairError) Unwrap() error {
	return ErrDuplicateClockPair
}

// DuplicatePayrollError names the slot and the records competing for it.
type DuplicatePayrollError struct {
	Key        RecordKey
	PayrollIDs []string
	Reason     string
}

func (e *DuplicatePayrollError) Error() string {
	msg := fmt.Sprintf("employee %s period %s", e.Key.EmployeePIN, e.Key.Period)
	if len(e.PayrollIDs) > 0 {
		msg += fmt.Sprintf(": records %s", strings.Join(e.PayrollIDs, ", "))
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *DuplicatePayrollError) Unwrap() error {
	return ErrDuplicatePayroll
}

// VerificationError lists every mismatch found on re-read.
type VerificationError struct {
	PayrollID  string
	Mismatches []string

	// Missing are expected ids absent from the record; Unexpected are ids
	// present that should not be.
	Missing    []string
	Unexpected []string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("payroll %s: %s", e.PayrollID, strings.Join(e.Mismatches, "; "))
}

func (e *VerificationError) Unwrap() error {
	return ErrVerificationFailed
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// IsValidation returns true for errors that skip a single group.
func IsValidation(err error) bool {
	return errors.Is(err, ErrDuplicateClockPair) ||
		errors.Is(err, ErrDuplicatePayroll) ||
		errors.Is(err, ErrVerificationFailed) ||
		errors.Is(err, ErrMissingEmployeePIN) ||
		errors.Is(err, ErrEmptyGroup)
}

// IsNotFound re-exports the shared predicate for callers of this package.
func IsNotFound(err error) bool {
	return generic.IsNotFound(err)
}
