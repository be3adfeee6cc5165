// Package billing keeps recurring bills current and reports the ones coming
// due.
//
// This file holds the calendar arithmetic. Recurring bills repeat monthly on
// the day of month of their due date; months without that day use their last
// day instead.
package billing

import "time"

// startOfDay truncates t to midnight UTC.
func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// addMonths moves t forward by n calendar months keeping the day of month,
// clamped to the last day of the target month.
func addMonths(t time.Time, n int) time.Time {
	t = t.UTC()
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	lastDay := time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return first.AddDate(0, 0, day-1)
}

// NextDue returns the first monthly occurrence of due that falls on or after
// the day of now. A due date that is not yet past is returned unchanged.
func NextDue(due, now time.Time) time.Time {
	today := startOfDay(now)
	if !startOfDay(due).Before(today) {
		return due
	}
	months := (today.Year()-due.Year())*12 + int(today.Month()) - int(due.Month())
	next := addMonths(due, months)
	if startOfDay(next).Before(today) {
		next = addMonths(due, months+1)
	}
	return next
}
