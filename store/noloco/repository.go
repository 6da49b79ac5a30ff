package noloco

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

type connection[T any] struct {
	Edges []struct {
		Node T `json:"node"`
	} `json:"edges"`
	PageInfo struct {
		HasNextPage bool    `json:"hasNextPage"`
		EndCursor   *string `json:"endCursor"`
	} `json:"pageInfo"`
}

func (c connection[T]) page() generic.PageInfo {
	info := generic.PageInfo{HasNextPage: c.PageInfo.HasNextPage}
	if c.PageInfo.EndCursor != nil {
		info.EndCursor = *c.PageInfo.EndCursor
	}
	return info
}

type idNode struct {
	ID any `json:"id"`
}

type timesheetNode struct {
	ID               any     `json:"id"`
	EmployeePin      any     `json:"employeePin"`
	TimesheetDate    *string `json:"timesheetDate"`
	Approved         any     `json:"approved"`
	ShiftHoursWorked any     `json:"shiftHoursWorked"`
	ClockDatetime    *string `json:"clockDatetime"`
	ClockOutDatetime *string `json:"clockOutDatetime"`
	PayrollRecord    *idNode `json:"payrollRecord"`
}

type payrollNode struct {
	ID                any                `json:"id"`
	EmployeeIDVal     any                `json:"employeeIdVal"`
	PayPeriodStart    *string            `json:"payPeriodStart"`
	PayPeriodEnd      *string            `json:"payPeriodEnd"`
	PayRate           any                `json:"payRate"`
	PaymentMethod     *string            `json:"paymentMethod"`
	Status            *string            `json:"status"`
	RelatedTimesheets connection[idNode] `json:"relatedTimesheets"`
}

type employeeNode struct {
	EmployeeIDVal any `json:"employeeIdVal"`
	PayRate       any `json:"payRate"`
}

// =============================================================================
// REPOSITORY
// =============================================================================

// Repository implements payroll.Platform on a Client.
type Repository struct {
	client *Client
	logger *zap.Logger
}

func NewRepository(client *Client, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{client: client, logger: logger}
}

func (r *Repository) pageSize(f generic.Filter) int {
	if f.First > 0 {
		return f.First
	}
	return r.client.cfg.PageSize
}

// ListTimesheets reads one page. PIN and id filters are applied client-side.
func (r *Repository) ListTimesheets(ctx context.Context, f generic.Filter) (generic.Page[payroll.Timesheet], error) {
	var data struct {
		Collection connection[timesheetNode] `json:"timesheetsCollection"`
	}
	q := collectionQuery("timesheetsCollection", timesheetFields, r.pageSize(f), f.After, "")
	if err := r.client.Query(ctx, q, &data); err != nil {
		return generic.Page[payroll.Timesheet]{}, fmt.Errorf("list timesheets: %w", err)
	}

	page := generic.Page[payroll.Timesheet]{PageInfo: data.Collection.page()}
	for _, e := range data.Collection.Edges {
		ts := r.toTimesheet(e.Node)
		if f.EmployeePIN != "" && ts.EmployeePIN != f.EmployeePIN {
			continue
		}
		if f.ID != "" && ts.ID != f.ID {
			continue
		}
		page.Items = append(page.Items, ts)
	}
	return page, nil
}

func (r *Repository) toTimesheet(n timesheetNode) payroll.Timesheet {
	loc := r.client.cfg.Location
	ts := payroll.Timesheet{
		ID:          generic.NormalizeID(n.ID),
		EmployeePIN: payroll.NormalizePIN(n.EmployeePin),
		Approval:    payroll.ParseApproval(n.Approved),
		Hours:       parseDecimal(n.ShiftHoursWorked),
		ClockIn:     deref(n.ClockDatetime),
		ClockOut:    deref(n.ClockOutDatetime),
	}
	if d, err := generic.ParseDate(deref(n.TimesheetDate)); err == nil {
		ts.Date = d
	} else if n.TimesheetDate != nil {
		r.logger.Warn("unreadable timesheet date",
			zap.String("timesheet_id", ts.ID), zap.String("value", *n.TimesheetDate))
	}
	ts.ClockInAt, _ = generic.ParseTimestamp(ts.ClockIn, loc)
	ts.ClockOutAt, _ = generic.ParseTimestamp(ts.ClockOut, loc)
	if n.PayrollRecord != nil {
		ts.PayrollRecordID = generic.NormalizeID(n.PayrollRecord.ID)
	}
	return ts
}

// UnlinkTimesheet sets payrollRecordId to null from the child side.
func (r *Repository) UnlinkTimesheet(ctx context.Context, id string) error {
	var data struct {
		Update *idNode `json:"updateTimesheets"`
	}
	if err := r.client.Mutate(ctx, unlinkTimesheetMutation(id), &data); err != nil {
		return fmt.Errorf("unlink timesheet %s: %w", id, err)
	}
	if data.Update == nil || generic.NormalizeID(data.Update.ID) == "" {
		return fmt.Errorf("unlink timesheet %s: no id returned", id)
	}
	return nil
}

// ListPayrollRecords reads one page of payroll records.
func (r *Repository) ListPayrollRecords(ctx context.Context, f generic.Filter) (generic.Page[payroll.PayrollRecord], error) {
	where := ""
	if f.ID != "" {
		where = idEquals(f.ID)
	}
	var data struct {
		Collection connection[payrollNode] `json:"payrollCollection"`
	}
	q := collectionQuery("payrollCollection", payrollFields, r.pageSize(f), f.After, where)
	if err := r.client.Query(ctx, q, &data); err != nil {
		return generic.Page[payroll.PayrollRecord]{}, fmt.Errorf("list payroll records: %w", err)
	}

	page := generic.Page[payroll.PayrollRecord]{PageInfo: data.Collection.page()}
	for _, e := range data.Collection.Edges {
		rec := r.toPayroll(e.Node)
		if f.EmployeePIN != "" && rec.EmployeePIN != f.EmployeePIN {
			continue
		}
		if f.ID != "" && rec.ID != f.ID {
			continue
		}
		page.Items = append(page.Items, rec)
	}
	return page, nil
}

func (r *Repository) toPayroll(n payrollNode) payroll.PayrollRecord {
	rec := payroll.PayrollRecord{
		ID:            generic.NormalizeID(n.ID),
		EmployeePIN:   payroll.NormalizePIN(n.EmployeeIDVal),
		PayRate:       parseDecimal(n.PayRate),
		PaymentMethod: deref(n.PaymentMethod),
		Status:        deref(n.Status),
	}
	// Boundaries are written as local midnight and may come back in UTC.
	loc := r.client.cfg.Location
	rec.Period.Start, _ = generic.ParseDateIn(deref(n.PayPeriodStart), loc)
	rec.Period.End, _ = generic.ParseDateIn(deref(n.PayPeriodEnd), loc)

	ids := make([]string, 0, len(n.RelatedTimesheets.Edges))
	for _, e := range n.RelatedTimesheets.Edges {
		ids = append(ids, generic.NormalizeID(e.Node.ID))
	}
	rec.TimesheetIDs = generic.SortedIDs(ids)
	return rec
}

// GetPayrollRecord re-reads one record by id.
func (r *Repository) GetPayrollRecord(ctx context.Context, id string) (payroll.PayrollRecord, error) {
	page, err := r.ListPayrollRecords(ctx, generic.Filter{First: 1, ID: id})
	if err != nil {
		return payroll.PayrollRecord{}, err
	}
	if len(page.Items) == 0 {
		return payroll.PayrollRecord{}, &generic.NotFoundError{Kind: "payroll", ID: id}
	}
	return page.Items[0], nil
}

// CreatePayrollRecord writes a new record with its initial relation.
func (r *Repository) CreatePayrollRecord(ctx context.Context, rec payroll.NewPayrollRecord) (string, error) {
	loc := r.client.cfg.Location
	m := createPayrollMutation(
		rec.EmployeePIN,
		rec.Period.Start.MidnightIn(loc).Format(timeLayoutISO),
		rec.Period.End.MidnightIn(loc).Format(timeLayoutISO),
		rec.PayRate.String(),
		rec.PaymentMethod,
		rec.Status,
		rec.TimesheetIDs,
	)
	var data struct {
		Create *idNode `json:"createPayroll"`
	}
	if err := r.client.Mutate(ctx, m, &data); err != nil {
		return "", err
	}
	if data.Create == nil {
		return "", nil
	}
	return generic.NormalizeID(data.Create.ID), nil
}

// SetPayrollTimesheets overwrites relatedTimesheetsId.
func (r *Repository) SetPayrollTimesheets(ctx context.Context, id string, timesheetIDs []string) (string, error) {
	var data struct {
		Update *idNode `json:"updatePayroll"`
	}
	if err := r.client.Mutate(ctx, updatePayrollMutation(id, timesheetIDs), &data); err != nil {
		return "", err
	}
	if data.Update == nil {
		return "", nil
	}
	return generic.NormalizeID(data.Update.ID), nil
}

// PayRate scans the employees collection for pin. Unknown employees and
// unreadable rates yield zero.
func (r *Repository) PayRate(ctx context.Context, pin string) (decimal.Decimal, error) {
	fetch := func(ctx context.Context, f generic.Filter) (generic.Page[employeeNode], error) {
		var data struct {
			Collection connection[employeeNode] `json:"employeesCollection"`
		}
		q := collectionQuery("employeesCollection", employeeFields, r.pageSize(f), f.After, "")
		if err := r.client.Query(ctx, q, &data); err != nil {
			return generic.Page[employeeNode]{}, fmt.Errorf("list employees: %w", err)
		}
		page := generic.Page[employeeNode]{PageInfo: data.Collection.page()}
		for _, e := range data.Collection.Edges {
			page.Items = append(page.Items, e.Node)
		}
		return page, nil
	}

	it := generic.NewIterator(fetch, generic.Filter{})
	for it.Next(ctx) {
		emp := it.Item()
		if payroll.NormalizePIN(emp.EmployeeIDVal) == pin {
			return parseDecimal(emp.PayRate), nil
		}
	}
	if err := it.Err(); err != nil {
		return decimal.Zero, err
	}
	r.logger.Warn("employee not found for pay rate", zap.String("employee_pin", pin))
	return decimal.Zero, nil
}

var _ payroll.Platform = (*Repository)(nil)

// =============================================================================
// HELPERS
// =============================================================================

const timeLayoutISO = "2006-01-02T15:04:05-07:00"

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// parseDecimal reads numbers that may arrive as JSON numbers or strings.
// Anything unreadable is zero.
func parseDecimal(raw any) decimal.Decimal {
	var s string
	switch v := raw.(type) {
	case nil:
		return decimal.Zero
	case json.Number:
		s = v.String()
	case string:
		s = strings.TrimSpace(v)
	case float64:
		return decimal.NewFromFloat(v)
	default:
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
