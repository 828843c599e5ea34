package domain

import "time"

// MonthStart returns the first instant of t's month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last microsecond of t's month in UTC. Items opened
// mid-period default their end to this instant so End.Day() is the last
// calendar day of the month.
func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, 0).Add(-time.Microsecond)
}

// MonthDays returns the number of calendar days in t's month.
func MonthDays(t time.Time) int {
	return MonthEnd(t).Day()
}

// PreviousMonth returns the first day of the month before t.
func PreviousMonth(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, -1, 0)
}

// FullHours counts hours between start and end, rounding any partial hour up.
func FullHours(start, end time.Time) int64 {
	return ceilDiv(end.Sub(start), time.Hour)
}

// FullDays counts days between start and end, rounding any partial day up.
func FullDays(start, end time.Time) int64 {
	return ceilDiv(end.Sub(start), 24*time.Hour)
}

func ceilDiv(d, unit time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	full := int64(d / unit)
	if d%unit > 0 {
		full++
	}
	return full
}
