package service

import (
	"time"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

// PercentChange returns the change from prev to cur in percent.
// It is 0 when prev is 0, whatever cur is.
func PercentChange(cur, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}

// MonthWindows returns the current month to date, [first-of-month, now),
// and the whole previous month, [first-of-previous, first-of-month).
// Both windows are computed in UTC.
func MonthWindows(now time.Time) (current, previous model.TimeRange) {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	current = model.TimeRange{From: first, To: now}
	previous = model.TimeRange{From: first.AddDate(0, -1, 0), To: first}
	return current, previous
}
