package payroll

import (
	"fmt"
	"sort"
	"time"

	"github.com/warp/payroll-sync/generic"
)

// AdvisoryKind names an advisory check.
type AdvisoryKind string

const (
	AdvisoryLongShift   AdvisoryKind = "long_shift"
	AdvisoryOpenClockIn AdvisoryKind = "open_clock_in"
)

// Severity grades an advisory for the report.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityUrgent   Severity = "urgent"
	SeverityCritical Severity = "critical"
)

// Advisory is a finding for human follow-up. Advisories never block writes.
type Advisory struct {
	Kind        AdvisoryKind
	Severity    Severity
	TimesheetID string
	EmployeePIN string
	Date        generic.TimePoint
	ClockIn     time.Time
	Duration    time.Duration
	Message     string
}

// AdvisoryConfig sets the thresholds.
type AdvisoryConfig struct {
	MaxShift         time.Duration
	OpenClockInAfter time.Duration
}

func DefaultAdvisoryConfig() AdvisoryConfig {
	return AdvisoryConfig{MaxShift: 8 * time.Hour, OpenClockInAfter: 8 * time.Hour}
}

// CheckAdvisories reports shifts longer than MaxShift among timesheets dated
// inside period, and clock-ins left open longer than OpenClockInAfter as of
// now among all timesheets. An open clock-in stays reported after its period
// closes.
func CheckAdvisories(timesheets []Timesheet, period generic.Period, now time.Time, cfg AdvisoryConfig) []Advisory {
	var out []Advisory
	for _, ts := range timesheets {
		if ts.ClockInAt.IsZero() {
			continue
		}

		if !ts.ClockOutAt.IsZero() {
			d := ts.ClockOutAt.Sub(ts.ClockInAt)
			if period.Contains(ts.Date) && cfg.MaxShift > 0 && d > cfg.MaxShift {
				out = append(out, Advisory{
					Kind:        AdvisoryLongShift,
					Severity:    longShiftSeverity(d),
					TimesheetID: ts.ID,
					EmployeePIN: ts.EmployeePIN,
					Date:        ts.Date,
					ClockIn:     ts.ClockInAt,
					Duration:    d,
					Message:     fmt.Sprintf("shift of %.1fh exceeds %s", d.Hours(), cfg.MaxShift),
				})
			}
			continue
		}

		if ts.ClockOut != "" {
			// Clock-out present but unreadable; nothing to measure.
			continue
		}
		open := now.Sub(ts.ClockInAt)
		if cfg.OpenClockInAfter > 0 && open > cfg.OpenClockInAfter {
			out = append(out, Advisory{
				Kind:        AdvisoryOpenClockIn,
				Severity:    openClockInSeverity(open),
				TimesheetID: ts.ID,
				EmployeePIN: ts.EmployeePIN,
				Date:        ts.Date,
				ClockIn:     ts.ClockInAt,
				Duration:    open,
				Message:     fmt.Sprintf("clocked in %.1fh ago with no clock-out", open.Hours()),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].EmployeePIN != out[j].EmployeePIN {
			return out[i].EmployeePIN < out[j].EmployeePIN
		}
		return out[i].TimesheetID < out[j].TimesheetID
	})
	return out
}

func longShiftSeverity(d time.Duration) Severity {
	switch {
	case d > 16*time.Hour:
		return SeverityCritical
	case d > 12*time.Hour:
		return SeverityUrgent
	default:
		return SeverityWarning
	}
}

func openClockInSeverity(d time.Duration) Severity {
	switch {
	case d > 24*time.Hour:
		return SeverityCritical
	case d > 16*time.Hour:
		return SeverityUrgent
	default:
		return SeverityWarning
	}
}
