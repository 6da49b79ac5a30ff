package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-sync/generic"
)

// =============================================================================
// BI-WEEKLY CALENDAR
// =============================================================================

func TestPeriodFor_ReferenceMonday(t *testing.T) {
	// GIVEN: The default calendar
	cal := generic.DefaultCalendar()
	ref := generic.DefaultReferenceMonday

	// WHEN: Asking for the period of the reference day
	p := cal.PeriodFor(ref)

	// THEN: The period starts on the reference and spans 14 days
	assert.Equal(t, "2026-01-12", p.Start.String())
	assert.Equal(t, "2026-01-25", p.End.String())
	assert.Equal(t, 14, p.Days())
	assert.Equal(t, time.Sunday, p.End.Weekday())
}

func TestPeriodFor_Boundaries(t *testing.T) {
	cal := generic.DefaultCalendar()
	ref := generic.DefaultReferenceMonday
	current := cal.PeriodFor(ref)

	tests := []struct {
		name string
		day  generic.TimePoint
		want generic.Period
	}{
		{"last day of period", ref.AddDays(13), current},
		{"mid period wednesday", ref.AddDays(9), current},
		{"first day of next period", ref.AddDays(14), current.NextPeriod()},
		{"day before reference", ref.AddDays(-1), current.PreviousPeriod()},
		{"fourteen days before reference", ref.AddDays(-14), current.PreviousPeriod()},
		{"fifteen days before reference", ref.AddDays(-15), current.PreviousPeriod().PreviousPeriod()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cal.PeriodFor(tt.day)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
			assert.True(t, got.Contains(tt.day))
			assert.Equal(t, time.Monday, got.Start.Weekday())
		})
	}
}

func TestPeriodFor_NegativeCycles(t *testing.T) {
	cal := generic.DefaultCalendar()

	// 2025-12-31 is a Wednesday in the week of Monday 2025-12-29,
	// which belongs to the cycle starting 2025-12-29.
	p := cal.PeriodFor(generic.MustParseDate("2025-12-31"))
	assert.Equal(t, "2025-12-29", p.Start.String())
	assert.Equal(t, "2026-01-11", p.End.String())
	assert.Equal(t, -1, cal.CycleIndex(generic.MustParseDate("2025-12-31")))

	// Far past dates still land on Mondays aligned to the reference.
	far := cal.PeriodFor(generic.MustParseDate("2020-06-17"))
	assert.Equal(t, time.Monday, far.Start.Weekday())
	assert.Equal(t, 0, generic.DaysBetween(far.Start, generic.DefaultReferenceMonday)%14)
}

func TestPeriodFor_EveryDayBelongsToExactlyOnePeriod(t *testing.T) {
	cal := generic.DefaultCalendar()
	start := generic.MustParseDate("2025-11-01")

	for i := 0; i < 120; i++ {
		day := start.AddDays(i)
		p := cal.PeriodFor(day)
		require.True(t, p.Contains(day), "day %s outside %s", day, p)
		require.False(t, p.NextPeriod().Contains(day))
		require.False(t, p.PreviousPeriod().Contains(day))
	}
}

func TestNewBiweeklyCalendar_RejectsNonMonday(t *testing.T) {
	_, err := generic.NewBiweeklyCalendar(generic.MustParseDate("2026-01-13"))
	require.ErrorIs(t, err, generic.ErrReferenceNotMonday)

	cal, err := generic.NewBiweeklyCalendar(generic.MustParseDate("2026-01-26"))
	require.NoError(t, err)
	assert.Equal(t, "2026-01-26", cal.PeriodFor(generic.MustParseDate("2026-02-01")).Start.String())
}

func TestPaymentDate_StrictlyAfterEnd(t *testing.T) {
	cal := generic.DefaultCalendar()

	tests := []struct {
		end  string
		want string
	}{
		{"2026-01-25", "2026-01-26"}, // Sunday end
		{"2026-01-26", "2026-02-02"}, // Monday end advances a full week
		{"2026-01-28", "2026-02-02"}, // Wednesday
		{"2026-01-31", "2026-02-02"}, // Saturday
	}

	for _, tt := range tests {
		t.Run(tt.end, func(t *testing.T) {
			end := generic.MustParseDate(tt.end)
			got := cal.PaymentDate(end)
			assert.Equal(t, tt.want, got.String())
			assert.True(t, got.After(end))
			assert.Equal(t, time.Monday, got.Weekday())
		})
	}
}

func TestPeriod_Validate(t *testing.T) {
	ok := generic.Period{Start: generic.MustParseDate("2026-01-12"), End: generic.MustParseDate("2026-01-25")}
	assert.NoError(t, ok.Validate())

	bad := generic.Period{Start: ok.End, End: ok.Start}
	assert.ErrorIs(t, bad.Validate(), generic.ErrInvalidPeriod)
	assert.ErrorIs(t, generic.Period{}.Validate(), generic.ErrInvalidPeriod)
}

// =============================================================================
// DATE PARSING
// =============================================================================

func TestParseDate_Formats(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-01-14", "2026-01-14"},
		{" 2026-01-14 ", "2026-01-14"},
		{"2026-01-14T00:00:00.000Z", "2026-01-14"},
		{"2026-01-14T04:00:00-04:00", "2026-01-14"},
		{"1/14/2026", "2026-01-14"},
		{"01/05/2026", "2026-01-05"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := generic.ParseDate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
			assert.Equal(t, tt.want, generic.NormalizeDate(tt.in))
		})
	}
}

func TestParseDate_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "yesterday", "2026-13-01", "14/14/2026"} {
		_, err := generic.ParseDate(in)
		assert.ErrorIs(t, err, generic.ErrInvalidDate, "input %q", in)
	}

	var dateErr *generic.DateError
	_, err := generic.ParseDate("nope")
	require.ErrorAs(t, err, &dateErr)
	assert.Equal(t, "nope", dateErr.Value)
	assert.Equal(t, "nope", generic.NormalizeDate(" nope "))
}

func TestParseTimestamp(t *testing.T) {
	loc, err := time.LoadLocation("America/Puerto_Rico")
	require.NoError(t, err)

	withOffset, ok := generic.ParseTimestamp("2026-01-14T08:00:00Z", loc)
	require.True(t, ok)
	assert.Equal(t, time.UTC, withOffset.Location())

	naive, ok := generic.ParseTimestamp("2026-01-14 08:00:00", loc)
	require.True(t, ok)
	assert.Equal(t, 12, naive.UTC().Hour())

	_, ok = generic.ParseTimestamp("", loc)
	assert.False(t, ok)
	_, ok = generic.ParseTimestamp("later", loc)
	assert.False(t, ok)
}

func TestParseDateIn(t *testing.T) {
	east := time.FixedZone("CET", 60*60)
	west := time.FixedZone("AST", -4*60*60)

	// Local midnight rendered in UTC keeps its local day
	d, err := generic.ParseDateIn("2026-01-11T23:00:00.000Z", east)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-12", d.String())

	d, err = generic.ParseDateIn("2026-01-12T04:00:00Z", west)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-12", d.String())

	d, err = generic.ParseDateIn("2026-01-12T00:00:00+01:00", east)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-12", d.String())

	// Bare dates are not shifted
	d, err = generic.ParseDateIn("1/12/2026", east)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-12", d.String())

	_, err = generic.ParseDateIn("soon", east)
	assert.ErrorIs(t, err, generic.ErrInvalidDate)
}

func TestMidnightIn(t *testing.T) {
	loc, err := time.LoadLocation("America/Puerto_Rico")
	require.NoError(t, err)

	got := generic.MustParseDate("2026-01-12").MidnightIn(loc)
	assert.Equal(t, "2026-01-12T00:00:00-04:00", got.Format(time.RFC3339))
}
