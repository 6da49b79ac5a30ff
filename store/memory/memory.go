// Package memory provides an in-memory stand-in for the hosted data platform.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
)

// =============================================================================
// MEMORY PLATFORM - In-memory implementation (for testing/dry runs)
// =============================================================================

// Platform implements payroll.Platform over maps. Paging uses the item
// offset as cursor.
//
// Like the hosted platform, writing a record's relation links every listed
// timesheet back to the record but does not clear back-references of ids
// dropped from the list unless PropagateShrink is set.
type Platform struct {
	mu sync.RWMutex

	timesheets     map[string]*payroll.Timesheet
	timesheetOrder []string
	payrolls       map[string]*payroll.PayrollRecord
	payrollOrder   []string
	rates          map[string]decimal.Decimal
	nextID         int

	// PageSize caps list pages; zero means the filter decides.
	PageSize int

	// PropagateShrink makes relation overwrites clear dropped back-references.
	PropagateShrink bool

	writes   Writes
	failures map[string]error
	tamper   func(*payroll.PayrollRecord)
}

// Writes counts mutations by kind.
type Writes struct {
	Creates int
	Updates int
	Unlinks int
}

// Total is the number of mutations of any kind.
func (w Writes) Total() int { return w.Creates + w.Updates + w.Unlinks }

func New() *Platform {
	return &Platform{
		timesheets: make(map[string]*payroll.Timesheet),
		payrolls:   make(map[string]*payroll.PayrollRecord),
		rates:      make(map[string]decimal.Decimal),
		failures:   make(map[string]error),
		nextID:     1000,
	}
}

// =============================================================================
// SEEDING AND INSPECTION
// =============================================================================

// AddTimesheet inserts or replaces a timesheet.
func (p *Platform) AddTimesheet(ts payroll.Timesheet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.timesheets[ts.ID]; !ok {
		p.timesheetOrder = append(p.timesheetOrder, ts.ID)
	}
	cp := ts
	p.timesheets[ts.ID] = &cp
}

// AddPayrollRecord inserts or replaces a record as-is. Back-references are
// not touched, so tests can build inconsistent states.
func (p *Platform) AddPayrollRecord(rec payroll.PayrollRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.payrolls[rec.ID]; !ok {
		p.payrollOrder = append(p.payrollOrder, rec.ID)
	}
	cp := rec
	cp.TimesheetIDs = append([]string(nil), rec.TimesheetIDs...)
	p.payrolls[rec.ID] = &cp
}

// SetPayRate sets an employee's rate for PayRate lookups.
func (p *Platform) SetPayRate(pin string, rate decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[pin] = rate
}

// SetApproval changes a timesheet's approval the way a manager would.
func (p *Platform) SetApproval(id string, a payroll.Approval) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ts, ok := p.timesheets[id]
	if !ok {
		return &generic.NotFoundError{Kind: "timesheet", ID: id}
	}
	ts.Approval = a
	return nil
}

// FailOn makes the named operation return err until cleared with a nil err.
// Operations: "create:<pin>", "update:<payroll id>", "unlink:<timesheet id>",
// "get:<payroll id>", "rate:<pin>", "list:timesheets", "list:payrolls".
func (p *Platform) FailOn(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

// TamperReads alters records returned by GetPayrollRecord, simulating a
// platform that did not persist what it acknowledged.
func (p *Platform) TamperReads(fn func(*payroll.PayrollRecord)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tamper = fn
}

// Writes returns the mutation counters.
func (p *Platform) Writes() Writes {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.writes
}

// ResetWrites zeroes the mutation counters.
func (p *Platform) ResetWrites() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = Writes{}
}

// Timesheet returns a copy of one timesheet.
func (p *Platform) Timesheet(id string) (payroll.Timesheet, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ts, ok := p.timesheets[id]
	if !ok {
		return payroll.Timesheet{}, false
	}
	return *ts, true
}

// PayrollRecords returns copies of every record in insertion order.
func (p *Platform) PayrollRecords() []payroll.PayrollRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]payroll.PayrollRecord, 0, len(p.payrollOrder))
	for _, id := range p.payrollOrder {
		out = append(out, copyRecord(p.payrolls[id]))
	}
	return out
}

// =============================================================================
// payroll.TimesheetRepository
// =============================================================================

func (p *Platform) ListTimesheets(_ context.Context, f generic.Filter) (generic.Page[payroll.Timesheet], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.failures["list:timesheets"]; err != nil {
		return generic.Page[payroll.Timesheet]{}, err
	}

	var all []payroll.Timesheet
	for _, id := range p.timesheetOrder {
		ts := p.timesheets[id]
		if f.EmployeePIN != "" && ts.EmployeePIN != f.EmployeePIN {
			continue
		}
		if f.ID != "" && ts.ID != f.ID {
			continue
		}
		all = append(all, *ts)
	}
	return paginate(all, f, p.PageSize)
}

func (p *Platform) UnlinkTimesheet(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures["unlink:"+id]; err != nil {
		return err
	}
	ts, ok := p.timesheets[id]
	if !ok {
		return &generic.NotFoundError{Kind: "timesheet", ID: id}
	}
	ts.PayrollRecordID = ""
	p.writes.Unlinks++
	return nil
}

// =============================================================================
// payroll.PayrollRepository
// =============================================================================

func (p *Platform) ListPayrollRecords(_ context.Context, f generic.Filter) (generic.Page[payroll.PayrollRecord], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.failures["list:payrolls"]; err != nil {
		return generic.Page[payroll.PayrollRecord]{}, err
	}

	var all []payroll.PayrollRecord
	for _, id := range p.payrollOrder {
		rec := p.payrolls[id]
		if f.EmployeePIN != "" && rec.EmployeePIN != f.EmployeePIN {
			continue
		}
		if f.ID != "" && rec.ID != f.ID {
			continue
		}
		all = append(all, copyRecord(rec))
	}
	return paginate(all, f, p.PageSize)
}

func (p *Platform) GetPayrollRecord(_ context.Context, id string) (payroll.PayrollRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.failures["get:"+id]; err != nil {
		return payroll.PayrollRecord{}, err
	}
	rec, ok := p.payrolls[id]
	if !ok {
		return payroll.PayrollRecord{}, &generic.NotFoundError{Kind: "payroll", ID: id}
	}
	out := copyRecord(rec)
	if p.tamper != nil {
		p.tamper(&out)
	}
	return out, nil
}

func (p *Platform) CreatePayrollRecord(_ context.Context, rec payroll.NewPayrollRecord) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures["create:"+rec.EmployeePIN]; err != nil {
		return "", err
	}
	for _, id := range rec.TimesheetIDs {
		if _, ok := p.timesheets[id]; !ok {
			return "", &generic.NotFoundError{Kind: "timesheet", ID: id}
		}
	}

	p.nextID++
	id := strconv.Itoa(p.nextID)
	p.payrolls[id] = &payroll.PayrollRecord{
		ID:            id,
		EmployeePIN:   rec.EmployeePIN,
		Period:        rec.Period,
		PayRate:       rec.PayRate,
		PaymentMethod: rec.PaymentMethod,
		Status:        rec.Status,
		TimesheetIDs:  generic.SortedIDs(rec.TimesheetIDs),
	}
	p.payrollOrder = append(p.payrollOrder, id)
	for _, tsID := range rec.TimesheetIDs {
		p.linkLocked(tsID, id)
	}
	p.writes.Creates++
	return id, nil
}

func (p *Platform) SetPayrollTimesheets(_ context.Context, id string, timesheetIDs []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures["update:"+id]; err != nil {
		return "", err
	}
	rec, ok := p.payrolls[id]
	if !ok {
		return "", &generic.NotFoundError{Kind: "payroll", ID: id}
	}
	for _, tsID := range timesheetIDs {
		if _, ok := p.timesheets[tsID]; !ok {
			return "", &generic.NotFoundError{Kind: "timesheet", ID: tsID}
		}
	}

	next := generic.NewIDSet(timesheetIDs...)
	if p.PropagateShrink {
		for _, tsID := range generic.NewIDSet(rec.TimesheetIDs...).Minus(next) {
			if ts := p.timesheets[tsID]; ts != nil && ts.PayrollRecordID == id {
				ts.PayrollRecordID = ""
			}
		}
	}
	rec.TimesheetIDs = next.Sorted()
	for _, tsID := range rec.TimesheetIDs {
		p.linkLocked(tsID, id)
	}
	p.writes.Updates++
	return id, nil
}

// linkLocked moves a timesheet to payrollID, dropping it from any other
// record's cached relation.
func (p *Platform) linkLocked(tsID, payrollID string) {
	ts := p.timesheets[tsID]
	if prev := ts.PayrollRecordID; prev != "" && prev != payrollID {
		if other := p.payrolls[prev]; other != nil {
			kept := other.TimesheetIDs[:0]
			for _, id := range other.TimesheetIDs {
				if id != tsID {
					kept = append(kept, id)
				}
			}
			other.TimesheetIDs = kept
		}
	}
	ts.PayrollRecordID = payrollID
}

// =============================================================================
// payroll.PayRateLookup
// =============================================================================

func (p *Platform) PayRate(_ context.Context, pin string) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.failures["rate:"+pin]; err != nil {
		return decimal.Zero, err
	}
	return p.rates[pin], nil
}

// =============================================================================
// HELPERS
// =============================================================================

func paginate[T any](all []T, f generic.Filter, maxSize int) (generic.Page[T], error) {
	size := f.PageSize()
	if maxSize > 0 && size > maxSize {
		size = maxSize
	}
	start := 0
	if f.After != "" {
		n, err := strconv.Atoi(f.After)
		if err != nil || n < 0 {
			return generic.Page[T]{}, fmt.Errorf("invalid cursor %q", f.After)
		}
		start = n
	}
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return generic.Page[T]{
		Items: all[start:end],
		PageInfo: generic.PageInfo{
			HasNextPage: end < len(all),
			EndCursor:   strconv.Itoa(end),
		},
	}, nil
}

func copyRecord(rec *payroll.PayrollRecord) payroll.PayrollRecord {
	out := *rec
	out.TimesheetIDs = append([]string(nil), rec.TimesheetIDs...)
	sort.Strings(out.TimesheetIDs)
	return out
}

var _ payroll.Platform = (*Platform)(nil)
