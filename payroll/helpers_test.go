package payroll_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// currentPeriod is the canonical period containing testNow.
var currentPeriod = generic.Period{
	Start: generic.MustParseDate("2026-01-12"),
	End:   generic.MustParseDate("2026-01-25"),
}

func testNow() time.Time {
	return time.Date(2026, time.January, 20, 15, 0, 0, 0, time.UTC)
}

func approved(id, pin, date, hours string) payroll.Timesheet {
	return payroll.Timesheet{
		ID:          id,
		EmployeePIN: pin,
		Date:        generic.MustParseDate(date),
		Approval:    payroll.ApprovalGranted,
		Hours:       decimal.RequireFromString(hours),
	}
}

func withApproval(ts payroll.Timesheet, a payroll.Approval) payroll.Timesheet {
	ts.Approval = a
	return ts
}

func withClock(ts payroll.Timesheet, in, out string) payroll.Timesheet {
	ts.ClockIn = in
	ts.ClockOut = out
	ts.ClockInAt, _ = generic.ParseTimestamp(in, time.UTC)
	ts.ClockOutAt, _ = generic.ParseTimestamp(out, time.UTC)
	return ts
}

func newPlatform(timesheets ...payroll.Timesheet) *memory.Platform {
	p := memory.New()
	for _, ts := range timesheets {
		p.AddTimesheet(ts)
	}
	return p
}

func newOrchestrator(t *testing.T, p payroll.Platform, rec payroll.RunRecorder, mutate ...func(*payroll.Options)) *payroll.Orchestrator {
	t.Helper()
	opts := payroll.Options{
		Calendar: generic.DefaultCalendar(),
		Location: time.UTC,
		Now:      testNow,
	}
	for _, m := range mutate {
		m(&opts)
	}
	return payroll.NewOrchestrator(p, rec, opts, zaptest.NewLogger(t))
}

func runOnce(t *testing.T, o *payroll.Orchestrator) *payroll.RunSummary {
	t.Helper()
	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return summary
}

// recordsFor returns every record for pin in the current period.
func recordsFor(p *memory.Platform, pin string) []payroll.PayrollRecord {
	var out []payroll.PayrollRecord
	for _, rec := range p.PayrollRecords() {
		if rec.EmployeePIN == pin && rec.Period.Equal(currentPeriod) {
			out = append(out, rec)
		}
	}
	return out
}

// fakeRecorder captures run history calls.
type fakeRecorder struct {
	mu        sync.Mutex
	started   []string
	finished  []*payroll.RunSummary
	processed map[string][]string // payroll id -> timesheet ids
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{processed: make(map[string][]string)}
}

func (f *fakeRecorder) StartRun(_ context.Context, s *payroll.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, s.RunID)
	return nil
}

func (f *fakeRecorder) FinishRun(_ context.Context, s *payroll.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, s)
	return nil
}

func (f *fakeRecorder) MarkProcessed(_ context.Context, _ string, payrollID string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[payrollID] = append(f.processed[payrollID], ids...)
	return nil
}
