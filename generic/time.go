package generic

import (
	"math"
	"time"
)

// =============================================================================
// TIME POINT - Calendar day used as journal key
// =============================================================================

type TimePoint struct {
	Time time.Time
}

// NewTimePoint returns the given calendar day at midnight UTC.
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf truncates t to its calendar day, keeping t's location.
func DayOf(t time.Time) TimePoint {
	return TimePoint{Time: Midnight(t)}
}

func (tp TimePoint) Before(other TimePoint) bool { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool  { return SameDay(tp.Time, other.Time) }
func (tp TimePoint) After(other TimePoint) bool  { return tp.Time.After(other.Time) }
func (tp TimePoint) IsZero() bool                { return tp.Time.IsZero() }
func (tp TimePoint) String() string              { return tp.Time.Format(DateLayout) }

// =============================================================================
// DATE MATH - Business days, weekends and expiry windows
// =============================================================================

// DateLayout is the wire and display format for calendar days.
const DateLayout = "2006-01-02"

const day = 24 * time.Hour

// Midnight normalizes t to the start of its day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay compares calendar dates, ignoring the time of day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsWeekend reports whether t falls on a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// BusinessDaysBetween counts the Monday-Friday days in [start, end]
// inclusive. Both ends are normalized to midnight first; an inverted
// range yields 0.
func BusinessDaysBetween(start, end time.Time) int {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	count := 0
	for d := Midnight(start); !d.After(Midnight(end)); d = d.AddDate(0, 0, 1) {
		if !IsWeekend(d) {
			count++
		}
	}
	return count
}

// DateRange expands [start, end] into one entry per calendar day.
func DateRange(start, end time.Time) []time.Time {
	var days []time.Time
	for d := Midnight(start); !d.After(Midnight(end)); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// DaysUntil is the ceiling of (date - now) in whole days. Negative for
// dates in the past.
func DaysUntil(date, now time.Time) int {
	return int(math.Ceil(float64(date.Sub(now)) / float64(day)))
}

// IsWithinThreshold reports whether date is between now and
// thresholdDays from now.
func IsWithinThreshold(date time.Time, thresholdDays int, now time.Time) bool {
	d := DaysUntil(date, now)
	return d >= 0 && d <= thresholdDays
}

// SpansOverlap is the inclusive interval overlap test on calendar dates.
func SpansOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !Midnight(aStart).After(Midnight(bEnd)) && !Midnight(aEnd).Before(Midnight(bStart))
}

// =============================================================================
// COMPANY DAYS - Holidays and blackout dates
// =============================================================================

type DayKind string

const (
	DayHoliday  DayKind = "holiday"
	DayBlackout DayKind = "blackout"
)

// CompanyDay is a company-wide calendar entry: a holiday that does not
// count against balances, or a blackout date on which leave is refused.
type CompanyDay struct {
	ID   string
	Date time.Time
	Name string
	Kind DayKind
}

// Dates projects days onto their calendar dates.
func Dates(days []CompanyDay) []time.Time {
	out := make([]time.Time, len(days))
	for i, d := range days {
		out[i] = d.Date
	}
	return out
}

// ContainsDay reports whether any of days shares a calendar date with t.
func ContainsDay(days []time.Time, t time.Time) bool {
	for _, d := range days {
		if SameDay(d, t) {
			return true
		}
	}
	return false
}
