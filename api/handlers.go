/*
handlers.go - HTTP handlers for the payroll sync status API

PURPOSE:
  Lets operators see the current pay period, browse run history and
  trigger a batch run without shell access to the host.

ENDPOINTS:
  GET    /api/health           Liveness, current period, next scheduled run
  GET    /api/period?date=     Canonical period for a date (default today)
  GET    /api/runs?status=     Run history, newest first
  GET    /api/runs/{id}        One run with outcomes and advisories
  POST   /api/runs             Run a batch now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input
  - 404: Run not found
  - 409: A run is already in progress
  - 500: Internal errors

SEE ALSO:
  - dto.go: Response data structures
  - runner.go: Guarded run + publish
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// History is the read side of the run history store.
type History interface {
	ListRuns(ctx context.Context, status string, limit int) ([]sqlite.RunRecord, error)
	GetRun(ctx context.Context, id string) (*sqlite.RunRecord, error)
	ListOutcomes(ctx context.Context, runID string) ([]sqlite.OutcomeRecord, error)
	ListAdvisories(ctx context.Context, runID string) ([]payroll.Advisory, error)
}

// Trigger starts one run unless another is active.
type Trigger interface {
	Trigger(ctx context.Context) (*payroll.RunSummary, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	History  History
	Trigger  Trigger
	Calendar generic.BiweeklyCalendar
	Location *time.Location

	// Now is injectable for tests.
	Now func() time.Time

	// NextRun reports the next scheduled run; nil when nothing is scheduled.
	NextRun func() time.Time

	logger *zap.Logger
}

// NewHandler creates a handler. trigger may be nil to disable POST /api/runs.
func NewHandler(history History, trigger Trigger, cal generic.BiweeklyCalendar, loc *time.Location, logger *zap.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		History:  history,
		Trigger:  trigger,
		Calendar: cal,
		Location: loc,
		Now:      time.Now,
		logger:   logger,
	}
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := h.Now().In(h.Location)
	resp := HealthResponse{
		Status:        "ok",
		Time:          now.Format(time.RFC3339),
		CurrentPeriod: toPeriodDTO(h.Calendar, generic.DayOf(now)),
	}
	if h.NextRun != nil {
		if next := h.NextRun(); !next.IsZero() {
			resp.NextRun = next.In(h.Location).Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPeriod returns the canonical period for ?date= or today.
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	date := generic.DayOf(h.Now().In(h.Location))
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		d, err := generic.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		date = d
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(h.Calendar, date))
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// ListRuns returns run history, optionally filtered by status.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch payroll.RunStatus(status) {
	case "", payroll.RunRunning, payroll.RunCompleted, payroll.RunFailed:
	default:
		writeError(w, http.StatusBadRequest, "Invalid status", errors.New("status must be running, completed or failed"))
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.History.ListRuns(r.Context(), status, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRun returns one run with its outcomes and advisories.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	run, err := h.History.GetRun(ctx, id)
	if generic.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "Run not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get run", err)
		return
	}

	outcomes, err := h.History.ListOutcomes(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get outcomes", err)
		return
	}
	advisories, err := h.History.ListAdvisories(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get advisories", err)
		return
	}

	plain := make([]payroll.Outcome, len(outcomes))
	for i, o := range outcomes {
		plain[i] = o.Outcome
	}
	writeJSON(w, http.StatusOK, RunDetailDTO{
		RunDTO:     toRunDTO(*run),
		Outcomes:   toOutcomeDTOs(plain),
		Advisories: toAdvisoryDTOs(advisories),
	})
}

// TriggerRun runs one batch and returns its summary. The run outlives a
// disconnected client.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if h.Trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "Runs are not enabled on this server", nil)
		return
	}

	summary, err := h.Trigger.Trigger(context.WithoutCancel(r.Context()))
	if errors.Is(err, payroll.ErrRunInProgress) {
		writeError(w, http.StatusConflict, "A payroll run is already in progress", err)
		return
	}
	if summary == nil {
		writeError(w, http.StatusInternalServerError, "Run failed to start", err)
		return
	}
	if err != nil {
		h.logger.Warn("triggered run failed", zap.String("run_id", summary.RunID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, summaryToDetail(summary))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
