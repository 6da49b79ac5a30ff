/*
dto.go - Data Transfer Objects for API responses

PURPOSE:
  Defines the JSON structures for the status API. These types decouple the
  payroll model from the external contract: decimals become strings,
  dates become YYYY-MM-DD, and empty lists render as [] rather than null.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Response: Wrappers

TYPES:
  Period:   PeriodDTO
  Runs:     RunDTO, RunDetailDTO, OutcomeDTO, AdvisoryDTO
  Health:   HealthResponse
  Errors:   ErrorResponse

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/store/sqlite"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// PeriodDTO describes the canonical period containing Date.
type PeriodDTO struct {
	Date        string `json:"date"`
	Start       string `json:"start"`
	End         string `json:"end"`
	PaymentDate string `json:"payment_date"`
	CycleIndex  int    `json:"cycle_index"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status        string    `json:"status"`
	Time          string    `json:"time"`
	CurrentPeriod PeriodDTO `json:"current_period"`
	NextRun       string    `json:"next_run,omitempty"`
}

// RunDTO is one run without its outcomes.
type RunDTO struct {
	ID                string   `json:"id"`
	DryRun            bool     `json:"dry_run"`
	Status            string   `json:"status"`
	PeriodStart       string   `json:"period_start"`
	PeriodEnd         string   `json:"period_end"`
	PaymentDate       string   `json:"payment_date"`
	TimesheetsFetched int      `json:"timesheets_fetched"`
	PayrollsFetched   int      `json:"payrolls_fetched"`
	Qualifying        int      `json:"qualifying"`
	Created           int      `json:"created"`
	Updated           int      `json:"updated"`
	Unchanged         int      `json:"unchanged"`
	Skipped           int      `json:"skipped"`
	Failed            int      `json:"failed"`
	Planned           int      `json:"planned"`
	Warnings          []string `json:"warnings"`
	Error             string   `json:"error,omitempty"`
	StartedAt         string   `json:"started_at"`
	FinishedAt        string   `json:"finished_at,omitempty"`
}

// OutcomeDTO is one employee slot's result.
type OutcomeDTO struct {
	EmployeePIN string   `json:"employee_pin"`
	PayrollID   string   `json:"payroll_id,omitempty"`
	Pass        string   `json:"pass"`
	Action      string   `json:"action,omitempty"`
	Result      string   `json:"result"`
	Timesheets  []string `json:"timesheets"`
	Added       []string `json:"added"`
	Removed     []string `json:"removed"`
	TotalHours  string   `json:"total_hours"`
	PayRate     string   `json:"pay_rate"`
	Verified    bool     `json:"verified"`
	Reason      string   `json:"reason,omitempty"`
}

// AdvisoryDTO is a long-shift or open clock-in finding.
type AdvisoryDTO struct {
	Kind        string  `json:"kind"`
	Severity    string  `json:"severity"`
	TimesheetID string  `json:"timesheet_id"`
	EmployeePIN string  `json:"employee_pin"`
	Date        string  `json:"date,omitempty"`
	ClockIn     string  `json:"clock_in,omitempty"`
	Hours       float64 `json:"hours"`
	Message     string  `json:"message"`
}

// RunDetailDTO is a run with outcomes and advisories.
type RunDetailDTO struct {
	RunDTO
	Outcomes   []OutcomeDTO  `json:"outcomes"`
	Advisories []AdvisoryDTO `json:"advisories"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPeriodDTO(cal generic.BiweeklyCalendar, date generic.TimePoint) PeriodDTO {
	p := cal.PeriodFor(date)
	return PeriodDTO{
		Date:        date.String(),
		Start:       p.Start.String(),
		End:         p.End.String(),
		PaymentDate: cal.PaymentDate(p.End).String(),
		CycleIndex:  cal.CycleIndex(date),
	}
}

func toRunDTO(r sqlite.RunRecord) RunDTO {
	dto := RunDTO{
		ID:                r.ID,
		DryRun:            r.DryRun,
		Status:            string(r.Status),
		PeriodStart:       r.Period.Start.String(),
		PeriodEnd:         r.Period.End.String(),
		PaymentDate:       r.PaymentDate.String(),
		TimesheetsFetched: r.TimesheetsFetched,
		PayrollsFetched:   r.PayrollsFetched,
		Qualifying:        r.Qualifying,
		Created:           r.Counts.Created,
		Updated:           r.Counts.Updated,
		Unchanged:         r.Counts.Unchanged,
		Skipped:           r.Counts.Skipped,
		Failed:            r.Counts.Failed,
		Planned:           r.Counts.Planned,
		Warnings:          nonNil(r.Warnings),
		Error:             r.Error,
		StartedAt:         r.StartedAt.Format(time.RFC3339),
	}
	if r.FinishedAt != nil {
		dto.FinishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	return dto
}

// summaryToDetail renders a run that just finished in this process.
func summaryToDetail(s *payroll.RunSummary) RunDetailDTO {
	c := s.Counts()
	rec := sqlite.RunRecord{
		ID:                s.RunID,
		DryRun:            s.DryRun,
		Period:            s.Period,
		PaymentDate:       s.PaymentDate,
		Status:            s.Status,
		Error:             s.Error,
		TimesheetsFetched: s.TimesheetsFetched,
		PayrollsFetched:   s.PayrollsFetched,
		Qualifying:        s.Qualifying,
		Counts:            c,
		Warnings:          s.Warnings,
		StartedAt:         s.StartedAt,
	}
	if !s.FinishedAt.IsZero() {
		finished := s.FinishedAt
		rec.FinishedAt = &finished
	}
	return RunDetailDTO{
		RunDTO:     toRunDTO(rec),
		Outcomes:   toOutcomeDTOs(s.Outcomes),
		Advisories: toAdvisoryDTOs(s.Advisories),
	}
}

func toOutcomeDTOs(outcomes []payroll.Outcome) []OutcomeDTO {
	dtos := make([]OutcomeDTO, 0, len(outcomes))
	for _, o := range outcomes {
		dtos = append(dtos, OutcomeDTO{
			EmployeePIN: o.EmployeePIN,
			PayrollID:   o.PayrollID,
			Pass:        string(o.Pass),
			Action:      string(o.Action),
			Result:      string(o.Result),
			Timesheets:  nonNil(o.Target),
			Added:       nonNil(o.Added),
			Removed:     nonNil(o.Removed),
			TotalHours:  o.TotalHours.String(),
			PayRate:     o.PayRate.StringFixed(2),
			Verified:    o.Verified,
			Reason:      o.Reason,
		})
	}
	return dtos
}

func toAdvisoryDTOs(advisories []payroll.Advisory) []AdvisoryDTO {
	dtos := make([]AdvisoryDTO, 0, len(advisories))
	for _, a := range advisories {
		dto := AdvisoryDTO{
			Kind:        string(a.Kind),
			Severity:    string(a.Severity),
			TimesheetID: a.TimesheetID,
			EmployeePIN: a.EmployeePIN,
			Hours:       a.Duration.Hours(),
			Message:     a.Message,
		}
		if !a.Date.IsZero() {
			dto.Date = a.Date.String()
		}
		if !a.ClockIn.IsZero() {
			dto.ClockIn = a.ClockIn.Format(time.RFC3339)
		}
		dtos = append(dtos, dto)
	}
	return dtos
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
