package aggregate

import (
	"math"
	"sort"
	"strings"

	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/period"
)

// WithDelta compares current against previous. The delta is 0 when both are
// zero and nil when only previous is zero; otherwise it is the percentage
// change rounded to one decimal.
func WithDelta(current, previous int64) model.MetricWithDelta {
	m := model.MetricWithDelta{Current: current, Previous: previous}
	switch {
	case previous == 0 && current == 0:
		zero := 0.0
		m.DeltaPercent = &zero
	case previous == 0:
	default:
		pct := float64(current-previous) / float64(previous) * 100
		pct = math.Round(pct*10) / 10
		m.DeltaPercent = &pct
	}
	return m
}

// Totals sums daily points.
func Totals(points []model.DailyTrafficPoint) model.TrafficTotals {
	var t model.TrafficTotals
	for _, p := range points {
		t.Requests += p.Requests
		t.Uniques += p.Uniques
		t.Bytes += p.Bytes
	}
	return t
}

// WeeklyRows sums daily points into the month's week windows. Points outside
// the month are ignored; weeks with no data yield zero rows.
func WeeklyRows(p model.MonthPeriod, points []model.DailyTrafficPoint) []model.WeeklyTrafficRow {
	weeks := period.Weeks(p)
	rows := make([]model.WeeklyTrafficRow, len(weeks))
	for i, w := range weeks {
		rows[i] = model.WeeklyTrafficRow{
			Label: w.Label,
			Start: w.Start,
			End:   w.EndExclusive.AddDate(0, 0, -1),
		}
	}
	for _, pt := range points {
		for i, w := range weeks {
			if !pt.Date.Before(w.Start) && pt.Date.Before(w.EndExclusive) {
				rows[i].Requests += pt.Requests
				rows[i].Uniques += pt.Uniques
				rows[i].Bytes += pt.Bytes
				break
			}
		}
	}
	return rows
}

var botMarkers = strings.NewReplacer("_", "", "-", "", " ", "")

// normalizeLabel lowercases and trims a source or action label.
func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// isBotSource reports whether a normalized source is bot management or rate
// limiting.
func isBotSource(source string) bool {
	compact := botMarkers.Replace(source)
	return strings.Contains(compact, "bot") || strings.Contains(compact, "ratelimit")
}

// SummarizeSecurity rolls firewall groups up into a SecuritySnapshot. Labels
// are matched case-insensitively; categories are ranked by count descending
// with ties kept in first-seen order.
func SummarizeSecurity(groups []model.FirewallEventGroup, topN int) model.SecuritySnapshot {
	snap := model.SecuritySnapshot{TopCategories: []model.CategoryCount{}}

	index := make(map[string]int, len(groups))
	var categories []model.CategoryCount
	for _, g := range groups {
		source := normalizeLabel(g.Source)
		action := normalizeLabel(g.Action)

		snap.TotalFirewallActions += g.Count
		if isBotSource(source) {
			snap.BotActions += g.Count
		}

		key := source + "/" + action
		if i, ok := index[key]; ok {
			categories[i].Count += g.Count
			continue
		}
		index[key] = len(categories)
		categories = append(categories, model.CategoryCount{
			Category: key,
			Source:   source,
			Action:   action,
			Count:    g.Count,
		})
	}

	sort.SliceStable(categories, func(i, j int) bool { return categories[i].Count > categories[j].Count })
	if topN > 0 && len(categories) > topN {
		categories = categories[:topN]
	}
	snap.TopCategories = append(snap.TopCategories, categories...)
	return snap
}

// DedupeURLs trims URLs and drops blanks and repeats, keeping first-seen order.
func DedupeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// TruncateWarning shortens a warning to at most limit runes.
func TruncateWarning(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}
