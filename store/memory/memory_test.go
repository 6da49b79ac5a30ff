package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/store/memory"
)

func seed(p *memory.Platform, ids ...string) {
	for _, id := range ids {
		p.AddTimesheet(payroll.Timesheet{
			ID: id, EmployeePIN: "0002", Date: generic.MustParseDate("2026-01-13"),
			Approval: payroll.ApprovalGranted, Hours: decimal.NewFromInt(8),
		})
	}
}

func newRecord() payroll.NewPayrollRecord {
	return payroll.NewPayrollRecord{
		EmployeePIN: "0002",
		Period: generic.Period{
			Start: generic.MustParseDate("2026-01-12"),
			End:   generic.MustParseDate("2026-01-25"),
		},
		PayRate: decimal.RequireFromString("15.50"),
	}
}

func TestListTimesheets_Pages(t *testing.T) {
	p := memory.New()
	p.PageSize = 2
	seed(p, "t1", "t2", "t3")

	all, err := generic.CollectAll[payroll.Timesheet](context.Background(), p.ListTimesheets, generic.Filter{})
	require.NoError(t, err)

	ids := make([]string, len(all))
	for i, ts := range all {
		ids[i] = ts.ID
	}
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids)
}

func TestCreatePayrollRecord_LinksTimesheets(t *testing.T) {
	ctx := context.Background()
	p := memory.New()
	seed(p, "t1", "t2")

	rec := newRecord()
	rec.TimesheetIDs = []string{"t2", "t1"}
	id, err := p.CreatePayrollRecord(ctx, rec)
	require.NoError(t, err)

	got, err := p.GetPayrollRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, got.TimesheetIDs)

	ts, _ := p.Timesheet("t1")
	assert.Equal(t, id, ts.PayrollRecordID)
	assert.Equal(t, 1, p.Writes().Creates)
}

func TestSetPayrollTimesheets_ShrinkLeavesBackReference(t *testing.T) {
	ctx := context.Background()

	for _, propagate := range []bool{false, true} {
		p := memory.New()
		p.PropagateShrink = propagate
		seed(p, "t1", "t2")

		rec := newRecord()
		rec.TimesheetIDs = []string{"t1", "t2"}
		id, err := p.CreatePayrollRecord(ctx, rec)
		require.NoError(t, err)

		_, err = p.SetPayrollTimesheets(ctx, id, []string{"t1"})
		require.NoError(t, err)

		ts, _ := p.Timesheet("t2")
		if propagate {
			assert.Empty(t, ts.PayrollRecordID)
		} else {
			// The relation shrinks but the dropped child still points back.
			assert.Equal(t, id, ts.PayrollRecordID)
		}
	}
}

func TestMoveTimesheet_DropsFromPreviousRecord(t *testing.T) {
	ctx := context.Background()
	p := memory.New()
	seed(p, "t1", "t2")

	first := newRecord()
	first.TimesheetIDs = []string{"t1", "t2"}
	a, err := p.CreatePayrollRecord(ctx, first)
	require.NoError(t, err)

	second := newRecord()
	second.TimesheetIDs = []string{"t2"}
	_, err = p.CreatePayrollRecord(ctx, second)
	require.NoError(t, err)

	rec, err := p.GetPayrollRecord(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, rec.TimesheetIDs)
}

func TestFailOn(t *testing.T) {
	ctx := context.Background()
	p := memory.New()
	boom := errors.New("boom")

	p.FailOn("rate:0002", boom)
	_, err := p.PayRate(ctx, "0002")
	assert.ErrorIs(t, err, boom)

	p.FailOn("rate:0002", nil)
	rate, err := p.PayRate(ctx, "0002")
	require.NoError(t, err)
	assert.True(t, rate.IsZero())

	_, err = p.GetPayrollRecord(ctx, "404")
	assert.True(t, generic.IsNotFound(err))
}
