package payroll

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-sync/generic"
)

// =============================================================================
// REPOSITORY CONTRACTS - Implemented by store/noloco and store/memory
// =============================================================================

// TimesheetRepository reads timesheets and clears back-references.
type TimesheetRepository interface {
	ListTimesheets(ctx context.Context, filter generic.Filter) (generic.Page[Timesheet], error)

	// UnlinkTimesheet sets the timesheet's payroll back-reference to null.
	UnlinkTimesheet(ctx context.Context, id string) error
}

// PayrollRepository reads and writes payroll records.
type PayrollRepository interface {
	ListPayrollRecords(ctx context.Context, filter generic.Filter) (generic.Page[PayrollRecord], error)

	// GetPayrollRecord re-reads one record from the platform, relation
	// included. Returns generic.ErrNotFound when it does not exist.
	GetPayrollRecord(ctx context.Context, id string) (PayrollRecord, error)

	CreatePayrollRecord(ctx context.Context, rec NewPayrollRecord) (string, error)

	// SetPayrollTimesheets overwrites the record's relation set in one call.
	SetPayrollTimesheets(ctx context.Context, id string, timesheetIDs []string) (string, error)
}

// PayRateLookup returns an employee's current hourly rate. Unknown
// employees yield zero, not an error.
type PayRateLookup interface {
	PayRate(ctx context.Context, employeePIN string) (decimal.Decimal, error)
}

// Platform bundles everything a run needs from the hosted data platform.
type Platform interface {
	TimesheetRepository
	PayrollRepository
	PayRateLookup
}

// RunRecorder persists run history. Optional.
type RunRecorder interface {
	StartRun(ctx context.Context, summary *RunSummary) error
	FinishRun(ctx context.Context, summary *RunSummary) error

	// MarkProcessed records timesheets whose payroll write was verified.
	MarkProcessed(ctx context.Context, runID, payrollID string, timesheetIDs []string) error
}

// ListAllTimesheets drains the timesheet collection.
func ListAllTimesheets(ctx context.Context, repo TimesheetRepository, filter generic.Filter) ([]Timesheet, error) {
	return generic.CollectAll(ctx, repo.ListTimesheets, filter)
}

// ListAllPayrollRecords drains the payroll collection.
func ListAllPayrollRecords(ctx context.Context, repo PayrollRepository, filter generic.Filter) ([]PayrollRecord, error) {
	return generic.CollectAll(ctx, repo.ListPayrollRecords, filter)
}
