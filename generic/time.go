package generic

import (
	"strings"
	"time"
)

// =============================================================================
// TIME POINT - Calendar day abstraction (payroll works in whole days)
// =============================================================================

// TimePoint is a calendar day, stored as midnight UTC so that day arithmetic
// never crosses a DST boundary. The zero value means "no date".
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf returns the calendar day of t as seen in t's own location.
func DayOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar day in loc.
func Today(loc *time.Location) TimePoint {
	if loc == nil {
		loc = time.UTC
	}
	return DayOf(time.Now().In(loc))
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	if tp.IsZero() {
		return ""
	}
	return tp.Time.Format(DateLayout)
}

// MidnightIn returns local midnight of the day in loc, e.g. for writing period
// boundaries as ISO datetimes in the business timezone.
func (tp TimePoint) MidnightIn(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(tp.Year(), tp.Month(), tp.Day(), 0, 0, 0, 0, loc)
}

// MondayOfWeek returns the Monday on or before tp.
func (tp TimePoint) MondayOfWeek() TimePoint {
	// time.Weekday counts from Sunday; shift so Monday is 0.
	offset := (int(tp.Weekday()) + 6) % 7
	return tp.AddDays(-offset)
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

const DateLayout = "2006-01-02"

// dateLayouts lists the date spellings the platform has been seen to return.
var dateLayouts = []string{DateLayout, "1/2/2006"}

// timestampLayouts are tried in order; layouts without an offset are read in
// the caller's location.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

func DaysBetween(from, to TimePoint) int { return int(to.Time.Sub(from.Time).Hours() / 24) }

// ParseDate reads a bare date, the date part of an ISO datetime, or an
// M/D/YYYY string. The date part of a datetime is taken literally, without
// converting its offset.
func ParseDate(s string) (TimePoint, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return TimePoint{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DayOf(t), nil
		}
	}
	return TimePoint{}, &DateError{Value: s}
}

// ParseDateIn reads a stored day. Datetimes are converted to loc before the
// day is taken, so a UTC rendering of local midnight keeps its local date.
// Bare dates and M/D/YYYY fall back to ParseDate.
func ParseDateIn(s string, loc *time.Location) (TimePoint, error) {
	if strings.ContainsRune(s, 'T') {
		if t, ok := ParseTimestamp(s, loc); ok {
			if loc == nil {
				loc = time.UTC
			}
			return DayOf(t.In(loc)), nil
		}
	}
	return ParseDate(s)
}

// MustParseDate is ParseDate for constants and tests.
func MustParseDate(s string) TimePoint {
	tp, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

// NormalizeDate returns s as YYYY-MM-DD when it parses, otherwise the trimmed
// input, so two spellings of the same day compare equal.
func NormalizeDate(s string) string {
	tp, err := ParseDate(s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return tp.String()
}

// ParseTimestamp reads a clock timestamp. Values without an offset are
// interpreted in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
