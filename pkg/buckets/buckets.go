// Package buckets decides how a date range is sliced into time buckets
// and maps timestamps onto bucket keys and chart labels.
package buckets

import (
	"errors"
	"fmt"
	"time"
)

// Granularity is the bucket size used to group events for a time series.
type Granularity int

const (
	// Hour buckets one calendar day into 24 slices.
	Hour Granularity = iota
	// Day buckets by UTC calendar date.
	Day
	// Week buckets by the Monday of the ISO week.
	Week
	// Month buckets by calendar month.
	Month
)

// String returns the groupBy value used in API responses.
func (g Granularity) String() string {
	switch g {
	case Hour:
		return "hour"
	case Day:
		return "date"
	case Week:
		return "week"
	case Month:
		return "month"
	default:
		return "date"
	}
}

// Bucket identifies one time slice within an aggregation pass.
// Key is unique per (timestamp, granularity) pair and sorts
// lexicographically in chronological order.
type Bucket struct {
	Granularity Granularity
	Key         string
	Label       string
	Date        time.Time
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ErrBadRange is returned when a requested date range is unparseable
// or ends before it starts.
var ErrBadRange = errors.New("invalid date range")

// DefaultMaxLookbackDays bounds ad-hoc explicit-range queries.
const DefaultMaxLookbackDays = 60

// PlanRange selects a granularity from the elapsed whole days of a range.
func PlanRange(from, to time.Time) Granularity {
	days := int(to.Sub(from).Hours() / 24)
	switch {
	case days <= 1:
		return Hour
	case days <= 90:
		return Day
	case days <= 365:
		return Week
	default:
		return Month
	}
}

// ForPeriod translates a named period keyword into a fixed window and
// granularity relative to now (UTC).
func ForPeriod(period string, now time.Time) (from, to time.Time, g Granularity, err error) {
	now = now.UTC()
	switch period {
	case "today":
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 0, 1).Add(-time.Second), Hour, nil
	case "week":
		return now.AddDate(0, 0, -7), now, Day, nil
	case "month":
		return now.AddDate(0, 0, -30), now, Day, nil
	case "year":
		return now.AddDate(-1, 0, 0), now, Month, nil
	default:
		return time.Time{}, time.Time{}, Day, fmt.Errorf("unknown period %q", period)
	}
}

// Resolve maps a timestamp onto its bucket at the given granularity.
// It is a pure function: identical inputs always produce the identical
// key, which is what makes accumulation into a key-indexed map safe.
func Resolve(ts time.Time, g Granularity) Bucket {
	ts = ts.UTC()
	switch g {
	case Hour:
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		return Bucket{
			Granularity: Hour,
			Key:         fmt.Sprintf("%s_%02d", day.Format(DateLayout), ts.Hour()),
			Label:       fmt.Sprintf("%02d:00", ts.Hour()),
			Date:        day,
		}
	case Week:
		monday := isoWeekStart(ts)
		return Bucket{
			Granularity: Week,
			Key:         monday.Format(DateLayout),
			Label:       "Week of " + monday.Format("Jan 2"),
			Date:        monday,
		}
	case Month:
		first := time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Bucket{
			Granularity: Month,
			Key:         first.Format("2006-01"),
			Label:       first.Format("Jan 2006"),
			Date:        first,
		}
	default:
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		return Bucket{
			Granularity: Day,
			Key:         day.Format(DateLayout),
			Label:       day.Format("Jan 2"),
			Date:        day,
		}
	}
}

// isoWeekStart returns the Monday of the week containing ts.
func isoWeekStart(ts time.Time) time.Time {
	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return day.AddDate(0, 0, -offset)
}

// ParseRange parses and validates an explicit date range. Ordering is
// never silently fixed: a range that ends before it starts is rejected.
func ParseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from, err := time.Parse(DateLayout, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: bad date_from %q", ErrBadRange, fromStr)
	}
	to, err := time.Parse(DateLayout, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: bad date_to %q", ErrBadRange, toStr)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date_to %s before date_from %s", ErrBadRange, toStr, fromStr)
	}
	return from, to, nil
}

// ClampRange limits a range to at most maxDays from its start. The end
// date is clamped forward from the start, never the other way around.
// The second return reports whether clamping occurred so callers can
// surface the effective range to the user.
func ClampRange(from, to time.Time, maxDays int) (time.Time, bool) {
	if maxDays <= 0 {
		maxDays = DefaultMaxLookbackDays
	}
	limit := from.AddDate(0, 0, maxDays)
	if to.After(limit) {
		return limit, true
	}
	return to, false
}
