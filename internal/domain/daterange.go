package domain

import (
	"fmt"
	"time"
)

// DateRange is a closed interval of civil dates: both Start and End count as
// whole days. Both bounds are normalised to midnight UTC.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange builds a DateRange from two dates, dropping any time-of-day.
// Returns ErrValidation when start is after end.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: Day(start), End: Day(end)}
	if r.Start.After(r.End) {
		return DateRange{}, fmt.Errorf("%w: start date %s is after end date %s",
			ErrValidation, r.Start.Format(DateLayout), r.End.Format(DateLayout))
	}
	return r, nil
}

// DateLayout is the wire format for civil dates.
const DateLayout = "2006-01-02"

// Day truncates t to its calendar date at midnight UTC.
// The calendar date is read in t's own location, so a local "2024-01-05 23:00"
// stays on the 5th.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Overlaps reports whether the two closed intervals share at least one day.
// Both inputs must already satisfy start <= end.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}

// InclusiveDayCount returns end - start + 1 in days, or 0 when end is
// before start.
func InclusiveDayCount(start, end time.Time) int {
	s, e := Day(start), Day(end)
	if e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

// Overlaps reports whether r and o share at least one day.
func (r DateRange) Overlaps(o DateRange) bool {
	return Overlaps(r.Start, r.End, o.Start, o.End)
}

// Clip returns the intersection of r with period, or false when they are
// disjoint. Neither input is modified.
func (r DateRange) Clip(period DateRange) (DateRange, bool) {
	start := r.Start
	if period.Start.After(start) {
		start = period.Start
	}
	end := r.End
	if period.End.Before(end) {
		end = period.End
	}
	if start.After(end) {
		return DateRange{}, false
	}
	return DateRange{Start: start, End: end}, true
}

// Days returns the inclusive number of days covered by r.
func (r DateRange) Days() int {
	return InclusiveDayCount(r.Start, r.End)
}

// String renders r as "2006-01-02..2006-01-02".
func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}
