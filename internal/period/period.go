// Package period derives calendar month report windows.
// Everything here is pure: identical inputs always yield identical periods,
// which is what makes re-running a month idempotent.
package period

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/sitereport/sitereport/internal/model"
)

// ErrInvalidMonth is returned for a malformed or out-of-range month override.
var ErrInvalidMonth = errors.New("invalid report month")

var monthPattern = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// Compute returns the period for the month override, or for the calendar month
// preceding ref's UTC month when override is empty.
func Compute(ref time.Time, override string) (model.MonthPeriod, error) {
	if override != "" {
		start, err := Parse(override)
		if err != nil {
			return model.MonthPeriod{}, err
		}
		return forMonth(start), nil
	}

	ref = ref.UTC()
	current := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	return forMonth(current.AddDate(0, -1, 0)), nil
}

// Parse validates a YYYY-MM month key and returns the first day of that month.
func Parse(monthKey string) (time.Time, error) {
	m := monthPattern.FindStringSubmatch(monthKey)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q must be YYYY-MM", ErrInvalidMonth, monthKey)
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("%w: month %02d out of range 01-12", ErrInvalidMonth, month)
	}
	if year < 1 {
		return time.Time{}, fmt.Errorf("%w: year %04d out of range", ErrInvalidMonth, year)
	}

	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

// forMonth builds the period whose report month starts at start.
func forMonth(start time.Time) model.MonthPeriod {
	prev := start.AddDate(0, -1, 0)
	return model.MonthPeriod{
		MonthKey:         start.Format(model.MonthKeyLayout),
		Start:            start,
		EndExclusive:     start.AddDate(0, 1, 0),
		PrevMonthKey:     prev.Format(model.MonthKeyLayout),
		PrevStart:        prev,
		PrevEndExclusive: start,
	}
}

// Next returns the period of the month following p.
func Next(p model.MonthPeriod) model.MonthPeriod {
	return forMonth(p.EndExclusive)
}

// Weeks partitions the report month into consecutive 7-day windows starting at
// day 1. The final window is truncated at the month boundary.
func Weeks(p model.MonthPeriod) []model.WeekWindow {
	weeks := make([]model.WeekWindow, 0, 5)
	for start, n := p.Start, 1; start.Before(p.EndExclusive); n++ {
		end := start.AddDate(0, 0, 7)
		if end.After(p.EndExclusive) {
			end = p.EndExclusive
		}
		weeks = append(weeks, model.WeekWindow{
			Label:        weekLabel(n, start, end),
			Start:        start,
			EndExclusive: end,
		})
		start = end
	}
	return weeks
}

func weekLabel(n int, start, endExclusive time.Time) string {
	last := endExclusive.AddDate(0, 0, -1)
	return fmt.Sprintf("Week %d (%s - %s)", n, start.Format("Jan 2"), last.Format("Jan 2"))
}

// MonthLabel returns a human readable label such as "January 2026" rendered in
// the client's timezone. The label is taken from the month's midday so that
// negative UTC offsets never roll it back into the previous month.
func MonthLabel(p model.MonthPeriod, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	midday := time.Date(p.Start.Year(), p.Start.Month(), 1, 12, 0, 0, 0, loc)
	return midday.Format("January 2006")
}
