package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The window a payroll record covers
// =============================================================================

// Period is an inclusive range of calendar days [Start, End].
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the day is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return !t.IsZero() && t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Equal compares boundaries day by day.
func (p Period) Equal(other Period) bool {
	return p.Start.Equal(other.Start) && p.End.Equal(other.End)
}

// Days returns the number of days in the period, both ends included.
func (p Period) Days() int {
	return DaysBetween(p.Start, p.End) + 1
}

// Validate rejects periods whose end is before their start.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() || p.End.Before(p.Start) {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, p)
	}
	return nil
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// NextPeriod returns the period following this one
func (p Period) NextPeriod() Period {
	newStart := p.End.AddDays(1)
	return Period{Start: newStart, End: newStart.AddDays(DaysBetween(p.Start, p.End))}
}

// PreviousPeriod returns the period before this one
func (p Period) PreviousPeriod() Period {
	newEnd := p.Start.AddDays(-1)
	return Period{Start: newEnd.AddDays(-DaysBetween(p.Start, p.End)), End: newEnd}
}

// =============================================================================
// BI-WEEKLY CALENDAR - Determines which pay period a date falls into
// =============================================================================

const biweeklyCycleDays = 14

// DefaultReferenceMonday anchors cycle 0 of the bi-weekly calendar.
var DefaultReferenceMonday = NewTimePoint(2026, time.January, 12)

// BiweeklyCalendar splits time into fixed, non-overlapping 14-day
// Monday-Sunday windows counted from a reference Monday.
type BiweeklyCalendar struct {
	Reference TimePoint
}

// NewBiweeklyCalendar validates that the reference day is a Monday.
func NewBiweeklyCalendar(reference TimePoint) (BiweeklyCalendar, error) {
	if reference.IsZero() || reference.Weekday() != time.Monday {
		return BiweeklyCalendar{}, fmt.Errorf("%w: %s is a %s", ErrReferenceNotMonday, reference, reference.Weekday())
	}
	return BiweeklyCalendar{Reference: reference}, nil
}

// DefaultCalendar is the calendar anchored at DefaultReferenceMonday.
func DefaultCalendar() BiweeklyCalendar {
	return BiweeklyCalendar{Reference: DefaultReferenceMonday}
}

// PeriodFor returns the period that contains the given date. Dates before the
// reference map to negative cycles.
func (c BiweeklyCalendar) PeriodFor(date TimePoint) Period {
	monday := date.MondayOfWeek()
	cycle := floorDiv(DaysBetween(c.Reference, monday), biweeklyCycleDays)
	start := c.Reference.AddDays(cycle * biweeklyCycleDays)
	return Period{Start: start, End: start.AddDays(biweeklyCycleDays - 1)}
}

// CycleIndex returns the cycle number of the period containing date.
func (c BiweeklyCalendar) CycleIndex(date TimePoint) int {
	return floorDiv(DaysBetween(c.Reference, date.MondayOfWeek()), biweeklyCycleDays)
}

// PaymentDate returns the first Monday strictly after periodEnd. A Monday end
// advances a full week.
func (c BiweeklyCalendar) PaymentDate(periodEnd TimePoint) TimePoint {
	return NextMondayAfter(periodEnd)
}

// NextMondayAfter returns the first Monday strictly after d.
func NextMondayAfter(d TimePoint) TimePoint {
	days := (int(time.Monday) - int(d.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return d.AddDays(days)
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
