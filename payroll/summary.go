package payroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-sync/generic"
)

// =============================================================================
// RUN SUMMARY - What one run did, group by group
// =============================================================================

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Result is the fate of one (employee, period) slot in a run.
type Result string

const (
	ResultCreated   Result = "created"
	ResultUpdated   Result = "updated"
	ResultUnchanged Result = "unchanged"
	ResultSkipped   Result = "skipped" // validation refused the group
	ResultFailed    Result = "failed"  // a write or verification failed
	ResultPlanned   Result = "planned" // dry run: a write would have happened
)

// Pass says which sweep produced an outcome.
type Pass string

const (
	PassGroup  Pass = "group"
	PassOrphan Pass = "orphan"
)

// Outcome records one slot's result.
type Outcome struct {
	EmployeePIN string
	PayrollID   string
	Pass        Pass
	Action      Action
	Result      Result
	Target      []string
	Added       []string
	Removed     []string
	TotalHours  decimal.Decimal
	PayRate     decimal.Decimal
	Verified    bool
	Reason      string
}

// RunSummary is the full account of a run.
type RunSummary struct {
	RunID       string
	DryRun      bool
	Period      generic.Period
	PaymentDate generic.TimePoint
	StartedAt   time.Time
	FinishedAt  time.Time
	Status      RunStatus
	Error       string

	TimesheetsFetched int
	PayrollsFetched   int
	Qualifying        int

	Outcomes   []Outcome
	Advisories []Advisory
	Warnings   []string
}

// Counts tallies outcomes by result.
type Counts struct {
	Created   int
	Updated   int
	Unchanged int
	Skipped   int
	Failed    int
	Planned   int
}

// Writes is the number of records created or updated.
func (c Counts) Writes() int { return c.Created + c.Updated }

func (s *RunSummary) Counts() Counts {
	var c Counts
	for _, o := range s.Outcomes {
		switch o.Result {
		case ResultCreated:
			c.Created++
		case ResultUpdated:
			c.Updated++
		case ResultUnchanged:
			c.Unchanged++
		case ResultSkipped:
			c.Skipped++
		case ResultFailed:
			c.Failed++
		case ResultPlanned:
			c.Planned++
		}
	}
	return c
}

// Failures returns skipped and failed outcomes, in run order.
func (s *RunSummary) Failures() []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if o.Result == ResultSkipped || o.Result == ResultFailed {
			out = append(out, o)
		}
	}
	return out
}

// Duration is zero until the run finishes.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s *RunSummary) addOutcome(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
}

func (s *RunSummary) warn(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// String renders the summary for logs and plain-text mail.
func (s *RunSummary) String() string {
	var b strings.Builder
	c := s.Counts()

	fmt.Fprintf(&b, "Payroll run %s (%s)\n", s.RunID, s.Status)
	if s.DryRun {
		b.WriteString("DRY RUN: no records were written\n")
	}
	fmt.Fprintf(&b, "Period: %s to %s, payment date %s\n", s.Period.Start, s.Period.End, s.PaymentDate)
	fmt.Fprintf(&b, "Fetched: %d timesheets, %d payroll records; %d qualifying\n",
		s.TimesheetsFetched, s.PayrollsFetched, s.Qualifying)
	fmt.Fprintf(&b, "Created: %d  Updated: %d  Unchanged: %d  Skipped: %d  Failed: %d",
		c.Created, c.Updated, c.Unchanged, c.Skipped, c.Failed)
	if c.Planned > 0 {
		fmt.Fprintf(&b, "  Planned: %d", c.Planned)
	}
	b.WriteString("\n")

	if failures := s.Failures(); len(failures) > 0 {
		b.WriteString("Failures:\n")
		for _, o := range failures {
			fmt.Fprintf(&b, "  - %s [%s/%s] %s\n", o.EmployeePIN, o.Pass, o.Result, o.Reason)
		}
	}
	if len(s.Advisories) > 0 {
		fmt.Fprintf(&b, "Advisories: %d\n", len(s.Advisories))
		for _, a := range s.Advisories {
			fmt.Fprintf(&b, "  - %s %s timesheet %s: %s\n", a.Severity, a.EmployeePIN, a.TimesheetID, a.Message)
		}
	}
	for _, w := range s.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", s.Error)
	}
	return b.String()
}
