package model

import "time"

// DailyTrafficPoint is one day of zone traffic.
// A period never holds two points for the same date.
type DailyTrafficPoint struct {
	Date     time.Time `json:"date"` // UTC date (time component zeroed)
	Requests int64     `json:"requests"`
	Uniques  int64     `json:"uniques"`
	Bytes    int64     `json:"bytes"`
}

// TrafficTotals holds summed counters over a period.
type TrafficTotals struct {
	Requests int64 `json:"requests"`
	Uniques  int64 `json:"uniques"`
	Bytes    int64 `json:"bytes"`
}

// MetricWithDelta compares a value against the preceding period.
// DeltaPercent is nil when the change is undefined (previous zero, current not).
type MetricWithDelta struct {
	Current      int64    `json:"current"`
	Previous     int64    `json:"previous"`
	DeltaPercent *float64 `json:"delta_percent"`
}

// WeeklyTrafficRow sums daily traffic over a WeekWindow.
type WeeklyTrafficRow struct {
	Label    string    `json:"label"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"` // inclusive last day
	Requests int64     `json:"requests"`
	Uniques  int64     `json:"uniques"`
	Bytes    int64     `json:"bytes"`
}

// PathCount is the request count for one request path.
type PathCount struct {
	Path     string `json:"path"`
	Requests int64  `json:"requests"`
}

// TrafficSnapshot is the traffic section of a report.
type TrafficSnapshot struct {
	Requests MetricWithDelta     `json:"requests"`
	Uniques  MetricWithDelta     `json:"uniques"`
	Bytes    MetricWithDelta     `json:"bytes"`
	Daily    []DailyTrafficPoint `json:"daily"`
	Weekly   []WeeklyTrafficRow  `json:"weekly"`
	TopPaths []PathCount         `json:"top_paths"`
}
