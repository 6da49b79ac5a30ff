package noloco_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/store/noloco"
)

func newRepository(t *testing.T, api *fakeAPI) *noloco.Repository {
	t.Helper()
	return noloco.NewRepository(newClient(t, api), zaptest.NewLogger(t))
}

func TestRepository_ListTimesheetsFollowsCursor(t *testing.T) {
	// GIVEN: Two pages of timesheets with mixed field encodings
	api := &fakeAPI{replies: []reply{
		{status: 200, body: `{"data":{"timesheetsCollection":{
			"edges":[
				{"node":{"id":11,"employeePin":"0002","timesheetDate":"2026-01-13T00:00:00.000Z","approved":true,
					"shiftHoursWorked":8.5,"clockDatetime":"2026-01-13T09:00:00Z","clockOutDatetime":"2026-01-13T17:30:00Z",
					"payrollRecord":{"id":"900"}}},
				{"node":{"id":"12","employeePin":" 0003 ","timesheetDate":"1/14/2026","approved":"false",
					"shiftHoursWorked":"7.25","clockDatetime":null,"clockOutDatetime":null,"payrollRecord":null}}
			],
			"pageInfo":{"hasNextPage":true,"endCursor":"c1"}}}}`},
		{status: 200, body: `{"data":{"timesheetsCollection":{
			"edges":[{"node":{"id":13,"employeePin":"0002","timesheetDate":"2026-01-15","approved":null,"shiftHoursWorked":null}}],
			"pageInfo":{"hasNextPage":false,"endCursor":null}}}}`},
	}}
	repo := newRepository(t, api)

	// WHEN: The collection is drained
	all, err := payroll.ListAllTimesheets(context.Background(), repo, generic.Filter{})

	// THEN: Every node is normalized and the cursor was passed on
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, "11", all[0].ID)
	assert.Equal(t, "0002", all[0].EmployeePIN)
	assert.Equal(t, "2026-01-13", all[0].Date.String())
	assert.True(t, all[0].Approved())
	assert.True(t, decimal.RequireFromString("8.5").Equal(all[0].Hours))
	assert.Equal(t, "900", all[0].PayrollRecordID)
	assert.Equal(t, time.Date(2026, 1, 13, 17, 30, 0, 0, time.UTC), all[0].ClockOutAt.UTC())

	assert.Equal(t, "12", all[1].ID)
	assert.Equal(t, "0003", all[1].EmployeePIN)
	assert.Equal(t, "2026-01-14", all[1].Date.String())
	assert.Equal(t, payroll.ApprovalDenied, all[1].Approval)
	assert.True(t, decimal.RequireFromString("7.25").Equal(all[1].Hours))
	assert.False(t, all[1].Linked())

	assert.Equal(t, payroll.ApprovalUnset, all[2].Approval)
	assert.True(t, all[2].Hours.IsZero())

	require.Equal(t, 2, api.calls())
	assert.Contains(t, api.query(0), "timesheetsCollection(first: 100)")
	assert.Contains(t, api.query(1), `after: "c1"`)
}

func TestRepository_ListPayrollRecordsReadsRelation(t *testing.T) {
	api := &fakeAPI{replies: []reply{
		{status: 200, body: `{"data":{"payrollCollection":{
			"edges":[{"node":{"id":900,"employeeIdVal":"0002","payPeriodStart":"2026-01-12T04:00:00.000Z",
				"payPeriodEnd":"2026-01-25T04:00:00.000Z","payRate":"15.50","paymentMethod":"DIRECT_DEPOSIT","status":"PENDING",
				"relatedTimesheets":{"edges":[{"node":{"id":12}},{"node":{"id":11}}]}}}],
			"pageInfo":{"hasNextPage":false}}}}`},
	}}
	repo := newRepository(t, api)

	records, err := payroll.ListAllPayrollRecords(context.Background(), repo, generic.Filter{})

	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "900", rec.ID)
	assert.Equal(t, "0002", rec.EmployeePIN)
	assert.Equal(t, "[2026-01-12, 2026-01-25]", rec.Period.String())
	assert.True(t, decimal.RequireFromString("15.5").Equal(rec.PayRate))
	assert.Equal(t, []string{"11", "12"}, rec.TimesheetIDs)
}

func TestRepository_GetPayrollRecord(t *testing.T) {
	t.Run("filters by id", func(t *testing.T) {
		api := &fakeAPI{replies: []reply{
			{status: 200, body: `{"data":{"payrollCollection":{
				"edges":[{"node":{"id":"900","employeeIdVal":"0002","relatedTimesheets":{"edges":[]}}}],
				"pageInfo":{"hasNextPage":false}}}}`},
		}}
		repo := newRepository(t, api)

		rec, err := repo.GetPayrollRecord(context.Background(), "900")

		require.NoError(t, err)
		assert.Equal(t, "900", rec.ID)
		assert.Contains(t, api.query(0), "where: {id: {equals: 900}}")
	})

	t.Run("missing record", func(t *testing.T) {
		api := &fakeAPI{replies: []reply{
			{status: 200, body: `{"data":{"payrollCollection":{"edges":[],"pageInfo":{"hasNextPage":false}}}}`},
		}}
		repo := newRepository(t, api)

		_, err := repo.GetPayrollRecord(context.Background(), "901")

		assert.True(t, generic.IsNotFound(err))
	})
}

func TestRepository_CreatePayrollRecord(t *testing.T) {
	// GIVEN: A platform in a fixed-offset zone
	api := &fakeAPI{replies: []reply{{status: 200, body: `{"data":{"createPayroll":{"id":901}}}`}}}
	srvClient := newClient(t, api)
	cfg := srvClient.Config()
	cfg.Location = time.FixedZone("AST", -4*60*60)
	client, err := noloco.NewClient(cfg, nil, nil)
	require.NoError(t, err)
	repo := noloco.NewRepository(client, nil)

	// WHEN: A record is created
	id, err := repo.CreatePayrollRecord(context.Background(), payroll.NewPayrollRecord{
		EmployeePIN:   "0002",
		Period:        generic.Period{Start: generic.MustParseDate("2026-01-12"), End: generic.MustParseDate("2026-01-25")},
		PayRate:       decimal.RequireFromString("15.50"),
		PaymentMethod: payroll.PaymentMethodDirectDeposit,
		Status:        payroll.StatusPending,
		TimesheetIDs:  []string{"11", "12"},
	})

	// THEN: The mutation carries local-midnight boundaries and the relation
	require.NoError(t, err)
	assert.Equal(t, "901", id)
	m := api.query(0)
	assert.Contains(t, m, "createPayroll(")
	assert.Contains(t, m, `employeeIdVal: "0002"`)
	assert.Contains(t, m, `payPeriodStart: "2026-01-12T00:00:00-04:00"`)
	assert.Contains(t, m, `payPeriodEnd: "2026-01-25T00:00:00-04:00"`)
	assert.Contains(t, m, "payRate: 15.5")
	assert.Contains(t, m, "paymentMethod: DIRECT_DEPOSIT")
	assert.Contains(t, m, "status: PENDING")
	assert.Contains(t, m, `relatedTimesheetsId: ["11", "12"]`)
}

func TestRepository_PeriodRoundTripEastOfUTC(t *testing.T) {
	// GIVEN: A business timezone ahead of UTC and a platform that echoes
	// stored datetimes back in UTC
	api := &fakeAPI{replies: []reply{
		{status: 200, body: `{"data":{"createPayroll":{"id":901}}}`},
		{status: 200, body: `{"data":{"payrollCollection":{
			"edges":[{"node":{"id":901,"employeeIdVal":"0002","payPeriodStart":"2026-01-11T23:00:00.000Z",
				"payPeriodEnd":"2026-01-24T23:00:00.000Z","relatedTimesheets":{"edges":[]}}}],
			"pageInfo":{"hasNextPage":false}}}}`},
	}}
	cfg := newClient(t, api).Config()
	cfg.Location = time.FixedZone("CET", 60*60)
	client, err := noloco.NewClient(cfg, nil, nil)
	require.NoError(t, err)
	repo := noloco.NewRepository(client, nil)
	period := generic.Period{Start: generic.MustParseDate("2026-01-12"), End: generic.MustParseDate("2026-01-25")}

	// WHEN: A record is created and re-read
	id, err := repo.CreatePayrollRecord(context.Background(), payroll.NewPayrollRecord{
		EmployeePIN: "0002", Period: period, TimesheetIDs: []string{"11"},
	})
	require.NoError(t, err)
	rec, err := repo.GetPayrollRecord(context.Background(), id)

	// THEN: The local-midnight boundary reads back as the same day
	require.NoError(t, err)
	assert.Contains(t, api.query(0), `payPeriodStart: "2026-01-12T00:00:00+01:00"`)
	assert.True(t, rec.Period.Equal(period), "got %s", rec.Period)
	assert.Equal(t, payroll.RecordKey{EmployeePIN: "0002", Period: period}, rec.Key())
}

func TestRepository_SetPayrollTimesheetsEscapesIDs(t *testing.T) {
	api := &fakeAPI{replies: []reply{{status: 200, body: `{"data":{"updatePayroll":{"id":"900"}}}`}}}
	repo := newRepository(t, api)

	id, err := repo.SetPayrollTimesheets(context.Background(), "900", []string{`a"b`, "c"})

	require.NoError(t, err)
	assert.Equal(t, "900", id)
	assert.Contains(t, api.query(0), `relatedTimesheetsId: ["a\"b", "c"]`)
}

func TestRepository_SetPayrollTimesheetsWithoutID(t *testing.T) {
	api := &fakeAPI{replies: []reply{{status: 200, body: `{"data":{"updatePayroll":null}}`}}}
	repo := newRepository(t, api)

	id, err := repo.SetPayrollTimesheets(context.Background(), "900", nil)

	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Contains(t, api.query(0), "relatedTimesheetsId: []")
}

func TestRepository_UnlinkTimesheet(t *testing.T) {
	api := &fakeAPI{replies: []reply{{status: 200, body: `{"data":{"updateTimesheets":{"id":12}}}`}}}
	repo := newRepository(t, api)

	require.NoError(t, repo.UnlinkTimesheet(context.Background(), "12"))
	assert.Contains(t, api.query(0), `updateTimesheets(id: "12", payrollRecordId: null)`)
}

func TestRepository_PayRate(t *testing.T) {
	pages := func() []reply {
		return []reply{
			{status: 200, body: `{"data":{"employeesCollection":{
				"edges":[{"node":{"employeeIdVal":"0001","payRate":20}}],
				"pageInfo":{"hasNextPage":true,"endCursor":"e1"}}}}`},
			{status: 200, body: `{"data":{"employeesCollection":{
				"edges":[{"node":{"employeeIdVal":"0002","payRate":"15.50"}}],
				"pageInfo":{"hasNextPage":false}}}}`},
		}
	}

	t.Run("found on a later page", func(t *testing.T) {
		api := &fakeAPI{replies: pages()}
		repo := newRepository(t, api)

		rate, err := repo.PayRate(context.Background(), "0002")

		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("15.50").Equal(rate))
		assert.Equal(t, 2, api.calls())
	})

	t.Run("unknown employee is zero", func(t *testing.T) {
		api := &fakeAPI{replies: pages()}
		repo := newRepository(t, api)

		rate, err := repo.PayRate(context.Background(), "0099")

		require.NoError(t, err)
		assert.True(t, rate.IsZero())
	})
}
