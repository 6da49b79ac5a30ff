package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func summaryAt(id string, started time.Time) *payroll.RunSummary {
	return &payroll.RunSummary{
		RunID: id,
		Period: generic.Period{
			Start: generic.MustParseDate("2026-01-12"),
			End:   generic.MustParseDate("2026-01-25"),
		},
		PaymentDate: generic.MustParseDate("2026-01-26"),
		StartedAt:   started,
		Status:      payroll.RunRunning,
	}
}

func TestStore_RunLifecycle(t *testing.T) {
	// GIVEN: A run that starts, then finishes with outcomes and advisories
	store := newStore(t)
	ctx := context.Background()
	started := time.Date(2026, 1, 20, 15, 0, 0, 0, time.UTC)
	s := summaryAt("run-1", started)

	require.NoError(t, store.StartRun(ctx, s))

	running, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, payroll.RunRunning, running.Status)
	assert.Nil(t, running.FinishedAt)

	s.Status = payroll.RunCompleted
	s.FinishedAt = started.Add(90 * time.Second)
	s.TimesheetsFetched = 5
	s.PayrollsFetched = 2
	s.Qualifying = 3
	s.Warnings = []string{"timesheet t9 has no employee PIN"}
	s.Outcomes = []payroll.Outcome{
		{
			EmployeePIN: "0002", PayrollID: "900", Pass: payroll.PassGroup,
			Action: payroll.ActionCreate, Result: payroll.ResultCreated,
			Target: []string{"t1", "t2"}, Added: []string{"t1", "t2"},
			TotalHours: decimal.RequireFromString("24.5"), PayRate: decimal.RequireFromString("15.50"),
			Verified: true,
		},
		{
			EmployeePIN: "0003", Pass: payroll.PassGroup, Result: payroll.ResultSkipped,
			TotalHours: decimal.Zero, PayRate: decimal.Zero, Reason: "duplicate clock pair",
		},
	}
	s.Advisories = []payroll.Advisory{{
		Kind: payroll.AdvisoryOpenClockIn, Severity: payroll.SeverityUrgent,
		TimesheetID: "t7", EmployeePIN: "0004", Date: generic.MustParseDate("2026-01-19"),
		ClockIn: time.Date(2026, 1, 19, 22, 0, 0, 0, time.UTC), Duration: 17 * time.Hour,
		Message: "clocked in 17h ago with no clock-out",
	}}

	// WHEN: The run finishes
	require.NoError(t, store.FinishRun(ctx, s))

	// THEN: Counts, outcomes and advisories round-trip
	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, payroll.RunCompleted, run.Status)
	assert.Equal(t, "[2026-01-12, 2026-01-25]", run.Period.String())
	assert.Equal(t, "2026-01-26", run.PaymentDate.String())
	assert.Equal(t, 1, run.Counts.Created)
	assert.Equal(t, 1, run.Counts.Skipped)
	assert.Equal(t, 3, run.Qualifying)
	assert.Equal(t, s.Warnings, run.Warnings)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, 90*time.Second, run.FinishedAt.Sub(run.StartedAt))

	outcomes, err := store.ListOutcomes(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "900", outcomes[0].PayrollID)
	assert.Equal(t, []string{"t1", "t2"}, outcomes[0].Target)
	assert.True(t, outcomes[0].PayRate.Equal(decimal.RequireFromString("15.5")))
	assert.True(t, outcomes[0].Verified)
	assert.Equal(t, payroll.ResultSkipped, outcomes[1].Result)
	assert.Nil(t, outcomes[1].Target)
	assert.Equal(t, "duplicate clock pair", outcomes[1].Reason)

	advisories, err := store.ListAdvisories(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, advisories, 1)
	assert.Equal(t, payroll.SeverityUrgent, advisories[0].Severity)
	assert.Equal(t, 17*time.Hour, advisories[0].Duration)
	assert.Equal(t, "2026-01-19", advisories[0].Date.String())
}

func TestStore_FinishRunTwiceReplacesChildren(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	s := summaryAt("run-1", time.Now().UTC())
	s.Outcomes = []payroll.Outcome{{EmployeePIN: "0002", Pass: payroll.PassGroup, Result: payroll.ResultUnchanged}}

	require.NoError(t, store.FinishRun(ctx, s))
	require.NoError(t, store.FinishRun(ctx, s))

	outcomes, err := store.ListOutcomes(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		s := summaryAt(id, base.Add(time.Duration(i)*time.Hour))
		s.Status = payroll.RunCompleted
		if id == "b" {
			s.Status = payroll.RunFailed
			s.Error = "fetch timesheets: boom"
		}
		require.NoError(t, store.FinishRun(ctx, s))
	}

	all, err := store.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)

	failed, err := store.ListRuns(ctx, string(payroll.RunFailed), 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "fetch timesheets: boom", failed[0].Error)

	limited, err := store.ListRuns(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStore_GetRunNotFound(t *testing.T) {
	store := newStore(t)

	_, err := store.GetRun(context.Background(), "missing")

	assert.True(t, generic.IsNotFound(err))
}

func TestStore_MarkProcessed(t *testing.T) {
	// GIVEN: Two timesheets verified under one payroll record
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.MarkProcessed(ctx, "run-1", "900", []string{"t1", "t2"}))

	// THEN: Both are processed, others are not
	ok, err := store.IsProcessed(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.IsProcessed(ctx, "t3")
	require.NoError(t, err)
	assert.False(t, ok)

	// WHEN: A later run relinks t2
	require.NoError(t, store.MarkProcessed(ctx, "run-2", "901", []string{"t2"}))

	// THEN: The latest link wins
	p, err := store.GetProcessed(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "901", p.PayrollID)
	assert.Equal(t, "run-2", p.RunID)
}
