/*
handlers_test.go - Tests for the status API

Tests for:
- Period lookup and health
- Triggering a run and reading it back from history
- Error statuses (400, 404, 409)
*/
package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/payroll-sync/api"
	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/store/memory"
	"github.com/warp/payroll-sync/store/sqlite"
)

func fixedNow() time.Time {
	return time.Date(2026, time.January, 20, 15, 0, 0, 0, time.UTC)
}

type testServer struct {
	*httptest.Server
	platform *memory.Platform
	history  *sqlite.Store
}

func newTestServer(t *testing.T, trigger api.Trigger) *testServer {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	platform := memory.New()
	platform.AddTimesheet(payroll.Timesheet{
		ID: "t1", EmployeePIN: "0002", Date: generic.MustParseDate("2026-01-13"),
		Approval: payroll.ApprovalGranted, Hours: decimal.RequireFromString("8"),
	})
	platform.AddTimesheet(payroll.Timesheet{
		ID: "t2", EmployeePIN: "0002", Date: generic.MustParseDate("2026-01-14"),
		Approval: payroll.ApprovalGranted, Hours: decimal.RequireFromString("7.5"),
	})
	platform.SetPayRate("0002", decimal.RequireFromString("15.50"))

	logger := zaptest.NewLogger(t)
	if trigger == nil {
		orch := payroll.NewOrchestrator(platform, store, payroll.Options{
			Calendar: generic.DefaultCalendar(),
			Location: time.UTC,
			Now:      fixedNow,
		}, logger)
		trigger = api.NewRunner(orch, nil, logger)
	}

	h := api.NewHandler(store, trigger, generic.DefaultCalendar(), time.UTC, logger)
	h.Now = fixedNow
	srv := httptest.NewServer(api.NewRouter(h, []string{"*"}))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, platform: platform, history: store}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// =============================================================================
// PERIOD
// =============================================================================

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	var health api.HealthResponse
	status := getJSON(t, srv.URL+"/api/health", &health)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "2026-01-12", health.CurrentPeriod.Start)
	assert.Equal(t, "2026-01-25", health.CurrentPeriod.End)
	assert.Empty(t, health.NextRun)
}

func TestHealth_ReportsNextScheduledRun(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	h := api.NewHandler(store, nil, generic.DefaultCalendar(), time.UTC, nil)
	h.Now = fixedNow
	h.NextRun = func() time.Time { return fixedNow().Add(time.Hour) }
	srv := httptest.NewServer(api.NewRouter(h, nil))
	defer srv.Close()

	var health api.HealthResponse
	getJSON(t, srv.URL+"/api/health", &health)

	assert.Equal(t, "2026-01-20T16:00:00Z", health.NextRun)
}

func TestGetPeriod(t *testing.T) {
	srv := newTestServer(t, nil)

	t.Run("explicit date", func(t *testing.T) {
		var p api.PeriodDTO
		status := getJSON(t, srv.URL+"/api/period?date=2026-01-27", &p)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "2026-01-26", p.Start)
		assert.Equal(t, "2026-02-08", p.End)
		assert.Equal(t, "2026-02-09", p.PaymentDate)
		assert.Equal(t, 1, p.CycleIndex)
	})

	t.Run("before the reference cycle", func(t *testing.T) {
		var p api.PeriodDTO
		status := getJSON(t, srv.URL+"/api/period?date=1/1/2026", &p)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "2025-12-29", p.Start)
		assert.Equal(t, "2026-01-11", p.End)
		assert.Equal(t, -1, p.CycleIndex)
	})

	t.Run("defaults to today", func(t *testing.T) {
		var p api.PeriodDTO
		getJSON(t, srv.URL+"/api/period", &p)
		assert.Equal(t, "2026-01-20", p.Date)
	})

	t.Run("invalid date", func(t *testing.T) {
		var e api.ErrorResponse
		status := getJSON(t, srv.URL+"/api/period?date=next-tuesday", &e)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Invalid date", e.Error)
	})
}

// =============================================================================
// RUNS
// =============================================================================

func TestTriggerRun_ThenReadHistory(t *testing.T) {
	// GIVEN: Two approved, unlinked timesheets for one employee
	srv := newTestServer(t, nil)

	// WHEN: A run is triggered over HTTP
	var detail api.RunDetailDTO
	status := postJSON(t, srv.URL+"/api/runs", &detail)

	// THEN: One payroll record is created and the run is in history
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "completed", detail.Status)
	assert.Equal(t, 1, detail.Created)
	require.Len(t, detail.Outcomes, 1)
	assert.Equal(t, "0002", detail.Outcomes[0].EmployeePIN)
	assert.Equal(t, []string{"t1", "t2"}, detail.Outcomes[0].Timesheets)
	assert.Equal(t, "15.5", detail.Outcomes[0].TotalHours)
	assert.Equal(t, "15.50", detail.Outcomes[0].PayRate)
	assert.Len(t, srv.platform.PayrollRecords(), 1)

	var runs []api.RunDTO
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/runs", &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, detail.ID, runs[0].ID)

	var stored api.RunDetailDTO
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/runs/"+detail.ID, &stored))
	assert.Equal(t, detail.Outcomes, stored.Outcomes)
	assert.Empty(t, stored.Advisories)

	processed, err := srv.history.IsProcessed(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestListRuns_FilterValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	var runs []api.RunDTO
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/runs?status=failed", &runs))
	assert.Empty(t, runs)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/runs?status=exploded", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/runs?limit=-1", nil))
}

func TestGetRun_NotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	var e api.ErrorResponse
	status := getJSON(t, srv.URL+"/api/runs/does-not-exist", &e)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Run not found", e.Error)
}

type busyTrigger struct{}

func (busyTrigger) Trigger(context.Context) (*payroll.RunSummary, error) {
	return nil, payroll.ErrRunInProgress
}

func TestTriggerRun_Conflict(t *testing.T) {
	srv := newTestServer(t, busyTrigger{})

	var e api.ErrorResponse
	status := postJSON(t, srv.URL+"/api/runs", &e)

	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "A payroll run is already in progress", e.Error)
}
