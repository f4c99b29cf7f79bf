// Package model defines domain entities for the application.
package model

import "time"

const (
	// MonthKeyLayout is the canonical layout of a report month (YYYY-MM).
	MonthKeyLayout = "2006-01"
	// DateLayout is the layout used for day-granular upstream queries.
	DateLayout = "2006-01-02"
)

// MonthPeriod describes the calendar month a report covers plus the month
// immediately before it, used for delta computation.
// All boundaries are UTC midnight; end boundaries are exclusive.
type MonthPeriod struct {
	MonthKey     string    `json:"month_key"`
	Start        time.Time `json:"start"`
	EndExclusive time.Time `json:"end_exclusive"`

	PrevMonthKey     string    `json:"prev_month_key"`
	PrevStart        time.Time `json:"prev_start"`
	PrevEndExclusive time.Time `json:"prev_end_exclusive"`
}

// DateRange is an inclusive range of calendar dates for day-granular queries.
type DateRange struct {
	From string // YYYY-MM-DD
	To   string // YYYY-MM-DD, inclusive
}

// DateTimeRange is a half-open range of instants for event-level queries.
type DateTimeRange struct {
	From  string // RFC3339, inclusive
	Until string // RFC3339, exclusive
}

// Current returns the inclusive date range of the report month.
func (p MonthPeriod) Current() DateRange {
	return DateRange{
		From: p.Start.Format(DateLayout),
		To:   p.EndExclusive.AddDate(0, 0, -1).Format(DateLayout),
	}
}

// Previous returns the inclusive date range of the preceding month.
func (p MonthPeriod) Previous() DateRange {
	return DateRange{
		From: p.PrevStart.Format(DateLayout),
		To:   p.PrevEndExclusive.AddDate(0, 0, -1).Format(DateLayout),
	}
}

// CurrentDateTimes returns the datetime-bounded variant of the report month.
func (p MonthPeriod) CurrentDateTimes() DateTimeRange {
	return DateTimeRange{
		From:  p.Start.Format(time.RFC3339),
		Until: p.EndExclusive.Format(time.RFC3339),
	}
}

// PreviousDateTimes returns the datetime-bounded variant of the preceding month.
func (p MonthPeriod) PreviousDateTimes() DateTimeRange {
	return DateTimeRange{
		From:  p.PrevStart.Format(time.RFC3339),
		Until: p.PrevEndExclusive.Format(time.RFC3339),
	}
}

// Days returns the number of calendar days in the report month.
func (p MonthPeriod) Days() int {
	return int(p.EndExclusive.Sub(p.Start).Hours() / 24)
}

// Contains reports whether the given date falls within the report month.
func (p MonthPeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.EndExclusive)
}

// WeekWindow is a window of at most seven days inside a report month.
type WeekWindow struct {
	Label        string    `json:"label"`
	Start        time.Time `json:"start"`
	EndExclusive time.Time `json:"end_exclusive"`
}

// Days returns the number of days in the window.
func (w WeekWindow) Days() int {
	return int(w.EndExclusive.Sub(w.Start).Hours() / 24)
}
