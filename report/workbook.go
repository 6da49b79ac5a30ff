/*
Package report turns a finished run into a workbook and a summary email.

PURPOSE:
  Operators read runs from the Excel workbook and the email, not from
  logs. Publishing is best-effort: nothing here changes a run's outcome.

SHEETS:
  Summary     Period, payment date, fetched counts and result counts
  Outcomes    One row per employee slot, in run order
  Failures    Skipped and failed slots with the reason
  Advisories  Long shifts and open clock-ins

SEE ALSO:
  - mail.go: Summary email
  - publish.go: Save and send after a run
*/
package report

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/warp/payroll-sync/payroll"
)

const (
	SheetSummary    = "Summary"
	SheetOutcomes   = "Outcomes"
	SheetFailures   = "Failures"
	SheetAdvisories = "Advisories"
)

var outcomeHeader = []any{
	"Employee PIN", "Pass", "Action", "Result", "Payroll ID",
	"Timesheets", "Added", "Removed", "Total Hours", "Pay Rate", "Gross Estimate", "Verified", "Reason",
}

var failureHeader = []any{"Employee PIN", "Pass", "Result", "Payroll ID", "Reason"}

var advisoryHeader = []any{
	"Severity", "Kind", "Employee PIN", "Timesheet ID", "Date", "Clock In", "Hours", "Message",
}

// BuildWorkbook lays out a run summary. The caller closes the file.
func BuildWorkbook(s *payroll.RunSummary) (*excelize.File, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", SheetSummary)
	for _, name := range []string{SheetOutcomes, SheetFailures, SheetAdvisories} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	w := &sheetWriter{f: f, header: bold}
	w.summary(s)
	w.outcomes(s)
	w.failures(s)
	w.advisories(s)
	if w.err != nil {
		f.Close()
		return nil, w.err
	}
	return f, nil
}

// WriteWorkbook writes the run workbook as .xlsx to out.
func WriteWorkbook(s *payroll.RunSummary, out io.Writer) error {
	f, err := BuildWorkbook(s)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(out)
}

// sheetWriter keeps the first error so layout code stays linear.
type sheetWriter struct {
	f      *excelize.File
	header int
	err    error
}

func (w *sheetWriter) row(sheet string, n int, values []any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetSheetRow(sheet, cell, &values)
}

func (w *sheetWriter) headerRow(sheet string, values []any) {
	w.row(sheet, 1, values)
	if w.err != nil {
		return
	}
	last, err := excelize.CoordinatesToCellName(len(values), 1)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetCellStyle(sheet, "A1", last, w.header)
}

func (w *sheetWriter) summary(s *payroll.RunSummary) {
	c := s.Counts()
	status := string(s.Status)
	if s.DryRun {
		status += " (dry run)"
	}
	rows := [][]any{
		{"Run ID", s.RunID},
		{"Status", status},
		{"Period Start", s.Period.Start.String()},
		{"Period End", s.Period.End.String()},
		{"Payment Date", s.PaymentDate.String()},
		{"Started", s.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Duration (s)", s.Duration().Seconds()},
		{"Timesheets Fetched", s.TimesheetsFetched},
		{"Payroll Records Fetched", s.PayrollsFetched},
		{"Qualifying Timesheets", s.Qualifying},
		{"Created", c.Created},
		{"Updated", c.Updated},
		{"Unchanged", c.Unchanged},
		{"Skipped", c.Skipped},
		{"Failed", c.Failed},
		{"Planned", c.Planned},
		{"Advisories", len(s.Advisories)},
	}
	if s.Error != "" {
		rows = append(rows, []any{"Error", s.Error})
	}
	for _, warning := range s.Warnings {
		rows = append(rows, []any{"Warning", warning})
	}
	for i, r := range rows {
		w.row(SheetSummary, i+1, r)
	}
	if w.err == nil {
		w.err = w.f.SetCellStyle(SheetSummary, "A1", fmt.Sprintf("A%d", len(rows)), w.header)
	}
	if w.err == nil {
		w.err = w.f.SetColWidth(SheetSummary, "A", "B", 26)
	}
}

func (w *sheetWriter) outcomes(s *payroll.RunSummary) {
	w.headerRow(SheetOutcomes, outcomeHeader)
	for i, o := range s.Outcomes {
		hours, _ := o.TotalHours.Float64()
		rate, _ := o.PayRate.Float64()
		gross, _ := o.TotalHours.Mul(o.PayRate).Round(2).Float64()
		w.row(SheetOutcomes, i+2, []any{
			o.EmployeePIN, string(o.Pass), string(o.Action), string(o.Result), o.PayrollID,
			strings.Join(o.Target, ", "), strings.Join(o.Added, ", "), strings.Join(o.Removed, ", "),
			hours, rate, gross, o.Verified, o.Reason,
		})
	}
}

func (w *sheetWriter) failures(s *payroll.RunSummary) {
	w.headerRow(SheetFailures, failureHeader)
	for i, o := range s.Failures() {
		w.row(SheetFailures, i+2, []any{
			o.EmployeePIN, string(o.Pass), string(o.Result), o.PayrollID, o.Reason,
		})
	}
}

func (w *sheetWriter) advisories(s *payroll.RunSummary) {
	w.headerRow(SheetAdvisories, advisoryHeader)
	for i, a := range s.Advisories {
		clockIn := ""
		if !a.ClockIn.IsZero() {
			clockIn = a.ClockIn.Format("2006-01-02 15:04")
		}
		w.row(SheetAdvisories, i+2, []any{
			string(a.Severity), string(a.Kind), a.EmployeePIN, a.TimesheetID, a.Date.String(),
			clockIn, roundHours(a.Duration.Hours()), a.Message,
		})
	}
}

func roundHours(h float64) float64 {
	return math.Round(h*100) / 100
}
