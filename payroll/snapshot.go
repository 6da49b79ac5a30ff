package payroll

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/payroll-sync/generic"
)

// =============================================================================
// SNAPSHOT - One consistent read of both tables per run
// =============================================================================

// Snapshot holds every timesheet and payroll record fetched at the start of
// a run, indexed for the lookups the engine needs. Relation sets are rebuilt
// from timesheet back-references; cached relations on records are only used
// to report drift.
type Snapshot struct {
	Timesheets []Timesheet
	Payrolls   []PayrollRecord

	timesheetByID map[string]Timesheet
	linked        map[string][]string        // payroll id -> timesheet ids pointing at it
	byKey         map[string][]PayrollRecord // RecordKey.String()
}

// NewSnapshot indexes already-fetched rows.
func NewSnapshot(timesheets []Timesheet, payrolls []PayrollRecord) *Snapshot {
	s := &Snapshot{
		Timesheets:    timesheets,
		Payrolls:      payrolls,
		timesheetByID: make(map[string]Timesheet, len(timesheets)),
		linked:        make(map[string][]string),
		byKey:         make(map[string][]PayrollRecord),
	}
	for _, ts := range timesheets {
		s.timesheetByID[ts.ID] = ts
		if ts.Linked() {
			s.linked[ts.PayrollRecordID] = append(s.linked[ts.PayrollRecordID], ts.ID)
		}
	}
	for id := range s.linked {
		sort.Strings(s.linked[id])
	}
	for _, rec := range payrolls {
		k := rec.Key().String()
		s.byKey[k] = append(s.byKey[k], rec)
	}
	return s
}

// LoadSnapshot fetches both collections in full.
func LoadSnapshot(ctx context.Context, timesheets TimesheetRepository, payrolls PayrollRepository) (*Snapshot, error) {
	ts, err := ListAllTimesheets(ctx, timesheets, generic.Filter{})
	if err != nil {
		return nil, fmt.Errorf("fetch timesheets: %w", err)
	}
	recs, err := ListAllPayrollRecords(ctx, payrolls, generic.Filter{})
	if err != nil {
		return nil, fmt.Errorf("fetch payroll records: %w", err)
	}
	return NewSnapshot(ts, recs), nil
}

// Timesheet looks up a timesheet by id.
func (s *Snapshot) Timesheet(id string) (Timesheet, bool) {
	ts, ok := s.timesheetByID[id]
	return ts, ok
}

// Relation returns the ids of every timesheet whose back-reference points at
// payrollID, sorted.
func (s *Snapshot) Relation(payrollID string) []string {
	ids := s.linked[payrollID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// RecordsFor returns every record in the (employee, period) slot.
func (s *Snapshot) RecordsFor(key RecordKey) []PayrollRecord {
	return s.byKey[key.String()]
}

// RecordsInPeriod returns every record whose period equals p, ordered by
// employee then id.
func (s *Snapshot) RecordsInPeriod(p generic.Period) []PayrollRecord {
	var out []PayrollRecord
	for _, rec := range s.Payrolls {
		if rec.Period.Equal(p) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EmployeePIN != out[j].EmployeePIN {
			return out[i].EmployeePIN < out[j].EmployeePIN
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Drift compares a record's cached relation with the back-reference scan.
// missing are back-referenced ids absent from the cache; stale are cached ids
// whose timesheet no longer points back.
func (s *Snapshot) Drift(rec PayrollRecord) (missing, stale []string) {
	cached := generic.NewIDSet(rec.TimesheetIDs...)
	actual := generic.NewIDSet(s.Relation(rec.ID)...)
	return actual.Minus(cached), cached.Minus(actual)
}
