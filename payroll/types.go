/*
types.go - Timesheets, payroll records and the approval flag

PURPOSE:
  The two platform tables the reconciler works on, reduced to the fields it
  needs. Raw transport values are parsed once by the repository; nothing
  downstream re-interprets them.

KEY CONCEPTS:
  Back-reference: Timesheet.PayrollRecordID. Empty means unlinked. This is
                  the source of truth for "is this timesheet linked".
  Relation set:   PayrollRecord.TimesheetIDs. A cached copy on the parent
                  side; it may be stale and is never trusted for decisions.
  Employee PIN:   Always a string. "0002" and "2" are different employees.

SEE ALSO:
  - snapshot.go: Rebuilds relation sets from back-references
  - engine.go: Reconciliation decisions over these types
*/
package payroll

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-sync/generic"
)

// =============================================================================
// APPROVAL - Tri-state flag set by managers at any time
// =============================================================================

// Approval is the parsed form of a timesheet's approved field.
type Approval int

const (
	ApprovalUnset Approval = iota
	ApprovalDenied
	ApprovalGranted
)

// ParseApproval reads the loosely-typed approved value. Only the boolean true
// or the string "true" (any case) count as approved; null and "" are unset,
// everything else is denied.
func ParseApproval(raw any) Approval {
	switch v := raw.(type) {
	case nil:
		return ApprovalUnset
	case bool:
		if v {
			return ApprovalGranted
		}
		return ApprovalDenied
	case *bool:
		if v == nil {
			return ApprovalUnset
		}
		return ParseApproval(*v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return ApprovalUnset
		}
		if strings.EqualFold(s, "true") {
			return ApprovalGranted
		}
		return ApprovalDenied
	default:
		return ApprovalDenied
	}
}

// IsApproved is the only predicate the engine uses.
func (a Approval) IsApproved() bool { return a == ApprovalGranted }

func (a Approval) String() string {
	switch a {
	case ApprovalGranted:
		return "approved"
	case ApprovalDenied:
		return "not_approved"
	default:
		return "unset"
	}
}

// =============================================================================
// TIMESHEET
// =============================================================================

// Timesheet is one shift from the clock-in system.
type Timesheet struct {
	ID          string
	EmployeePIN string
	Date        generic.TimePoint
	Approval    Approval
	Hours       decimal.Decimal

	// Literal timestamps as stored; duplicate detection compares these.
	ClockIn  string
	ClockOut string

	// Parsed instants; zero when missing or unreadable.
	ClockInAt  time.Time
	ClockOutAt time.Time

	PayrollRecordID string
}

func (t Timesheet) Approved() bool { return t.Approval.IsApproved() }

// Linked reports whether the back-reference is set.
func (t Timesheet) Linked() bool { return t.PayrollRecordID != "" }

// =============================================================================
// PAYROLL RECORD
// =============================================================================

const (
	PaymentMethodDirectDeposit = "DIRECT_DEPOSIT"
	StatusPending              = "PENDING"
)

// PayrollRecord is one employee's pay for one canonical period.
type PayrollRecord struct {
	ID            string
	EmployeePIN   string
	Period        generic.Period
	PayRate       decimal.Decimal
	PaymentMethod string
	Status        string

	// Cached relation as returned by the platform. May be stale.
	TimesheetIDs []string
}

// Key identifies the record's (employee, period) slot.
func (r PayrollRecord) Key() RecordKey {
	return RecordKey{EmployeePIN: r.EmployeePIN, Period: r.Period}
}

// NewPayrollRecord carries the fields of a record to create.
type NewPayrollRecord struct {
	EmployeePIN   string
	Period        generic.Period
	PayRate       decimal.Decimal
	PaymentMethod string
	Status        string
	TimesheetIDs  []string
}

// RecordKey is the uniqueness key: at most one record per employee and period.
type RecordKey struct {
	EmployeePIN string
	Period      generic.Period
}

func (k RecordKey) String() string {
	return k.EmployeePIN + "@" + k.Period.String()
}

// NormalizePIN trims a PIN without touching leading zeros.
func NormalizePIN(raw any) string {
	return generic.NormalizeID(raw)
}

// TotalHours sums hours worked.
func TotalHours(timesheets []Timesheet) decimal.Decimal {
	total := decimal.Zero
	for _, ts := range timesheets {
		total = total.Add(ts.Hours)
	}
	return total
}
