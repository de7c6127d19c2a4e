package core

import "time"

// NewDate builds a calendar date at midnight UTC. All schedule math in
// the engine operates on dates normalized this way.
func NewDate(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// DateOnly truncates a timestamp to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysInMonth returns the number of days in the given month.
// Day zero of the following month is the last day of this one.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// StepMonths advances n calendar months from anchor's month and resolves
// the day of month: the literal last day when useLastDay is set, otherwise
// day clamped to the target month's length (day 31 in April becomes
// April 30). Resolving against the anchor each time, instead of walking
// from the previous occurrence, keeps a day-31 schedule from drifting
// down to 28 after February.
func StepMonths(anchor time.Time, n int, day int, useLastDay bool) time.Time {
	months := anchor.Year()*12 + int(anchor.Month()) - 1 + n
	year, month := months/12, time.Month(months%12+1)
	last := DaysInMonth(year, month)
	d := day
	if useLastDay || d > last {
		d = last
	}
	if d < 1 {
		d = 1
	}
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween returns the whole number of calendar months from a's
// month to b's month, ignoring days. Negative when b precedes a.
func MonthsBetween(a, b time.Time) int {
	return (b.Year()*12 + int(b.Month())) - (a.Year()*12 + int(a.Month()))
}
