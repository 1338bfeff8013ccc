package interval

import "time"

// Granularity is the time resolution of an aggregate window.
type Granularity string

const (
	GranularityMinute    Granularity = "minute"
	GranularityTenMinute Granularity = "ten_minute"
	GranularityHour      Granularity = "hour"
	GranularityDay       Granularity = "day"
)

// RollingGranularities are the fixed-length windows closed by cursor
// comparison. Day follows its own calendar-date rule.
var RollingGranularities = []Granularity{
	GranularityMinute,
	GranularityTenMinute,
	GranularityHour,
}

// IsValid checks if the granularity is one of the supported values.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityMinute, GranularityTenMinute, GranularityHour, GranularityDay:
		return true
	default:
		return false
	}
}

// Length returns the window length for the rolling granularities.
// Day windows are bounded by calendar dates, not a fixed duration.
func (g Granularity) Length() time.Duration {
	switch g {
	case GranularityMinute:
		return time.Minute
	case GranularityTenMinute:
		return 10 * time.Minute
	case GranularityHour:
		return time.Hour
	default:
		return 0
	}
}

// Floor truncates t down to the nearest window boundary of g, in t's
// wall-clock location.
func (g Granularity) Floor(t time.Time) time.Time {
	switch g {
	case GranularityMinute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
	case GranularityTenMinute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()-t.Minute()%10, 0, 0, t.Location())
	case GranularityHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	case GranularityDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	default:
		return time.Time{}
	}
}

// LastClosedStart returns the start of the most recently fully elapsed
// window of g ending strictly before now's in-progress window.
// For now = 12:34:56 and g = minute that is 12:33:00.
func (g Granularity) LastClosedStart(now time.Time) time.Time {
	return g.Floor(now).Add(-g.Length())
}

// PreviousDayStart returns midnight of the calendar day before now's.
func PreviousDayStart(now time.Time) time.Time {
	return GranularityDay.Floor(now).AddDate(0, 0, -1)
}

// WindowEnd returns the inclusive end of a window: start + length - 1s.
// Expressing windows as inclusive [start, end] pairs keeps an event landing
// exactly on a boundary out of two adjacent windows.
func (g Granularity) WindowEnd(start time.Time) time.Time {
	if g == GranularityDay {
		return start.AddDate(0, 0, 1).Add(-time.Second)
	}
	return start.Add(g.Length() - time.Second)
}
