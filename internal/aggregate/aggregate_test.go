package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitereport/sitereport/internal/metrics"
	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/period"
	"github.com/sitereport/sitereport/internal/source"
	"github.com/sitereport/sitereport/internal/testutil"
)

func TestWithDelta(t *testing.T) {
	tests := []struct {
		name      string
		current   int64
		previous  int64
		wantDelta *float64
	}{
		{"both zero", 0, 0, floatPtr(0)},
		{"previous zero", 5, 0, nil},
		{"growth", 150, 100, floatPtr(50)},
		{"decline", 50, 100, floatPtr(-50)},
		{"rounded", 1, 3, floatPtr(-66.7)},
		{"to zero", 0, 40, floatPtr(-100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := WithDelta(tt.current, tt.previous)
			assert.Equal(t, tt.current, m.Current)
			assert.Equal(t, tt.previous, m.Previous)
			assert.Equal(t, tt.wantDelta, m.DeltaPercent)
		})
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestWeeklyRows(t *testing.T) {
	p, err := period.Compute(time.Time{}, "2026-02")
	require.NoError(t, err)

	points := testutil.DailySeries(p.Start, 28, 2800)
	rows := WeeklyRows(p, points)

	require.Len(t, rows, 4)
	var total int64
	for _, r := range rows {
		assert.Equal(t, int64(700), r.Requests)
		total += r.Requests
	}
	assert.Equal(t, int64(2800), total)
	assert.Equal(t, p.Start, rows[0].Start)
	assert.Equal(t, p.EndExclusive.AddDate(0, 0, -1), rows[3].End)
}

func TestWeeklyRows_SparseDays(t *testing.T) {
	p, err := period.Compute(time.Time{}, "2026-01")
	require.NoError(t, err)

	points := []model.DailyTrafficPoint{
		{Date: p.Start.AddDate(0, 0, 30), Requests: 9},
	}
	rows := WeeklyRows(p, points)
	require.Len(t, rows, 5)
	for _, r := range rows[:4] {
		assert.Zero(t, r.Requests)
	}
	assert.Equal(t, int64(9), rows[4].Requests)
}

func TestSummarizeSecurity(t *testing.T) {
	groups := []model.FirewallEventGroup{
		{Source: "waf", Action: "block", Count: 10},
		{Source: "BotManagement", Action: "managed_challenge", Count: 20},
		{Source: "rateLimit", Action: "block", Count: 10},
		{Source: "WAF", Action: "Block", Count: 5},
		{Source: "firewallrules", Action: "log", Count: 10},
		{Source: "country", Action: "block", Count: 1},
	}

	snap := SummarizeSecurity(groups, 3)
	assert.Equal(t, int64(56), snap.TotalFirewallActions)
	assert.Equal(t, int64(30), snap.BotActions)

	require.Len(t, snap.TopCategories, 3)
	assert.Equal(t, "botmanagement/managed_challenge", snap.TopCategories[0].Category)
	assert.Equal(t, "waf/block", snap.TopCategories[1].Category)
	assert.Equal(t, int64(15), snap.TopCategories[1].Count)
	// Ties keep first-seen order.
	assert.Equal(t, "ratelimit/block", snap.TopCategories[2].Category)
}

func TestSummarizeSecurity_Empty(t *testing.T) {
	snap := SummarizeSecurity(nil, 5)
	assert.Zero(t, snap.TotalFirewallActions)
	assert.NotNil(t, snap.TopCategories)
	assert.Empty(t, snap.TopCategories)
}

func TestDedupeURLs(t *testing.T) {
	got := DedupeURLs([]string{"https://a/", " https://b/ ", "https://a/", "", "https://b/"})
	assert.Equal(t, []string{"https://a/", "https://b/"}, got)
}

func TestTruncateWarning(t *testing.T) {
	assert.Equal(t, "short", TruncateWarning("short", 10))
	assert.Equal(t, "abcdefg...", TruncateWarning(strings.Repeat("abcdefghij", 3), 10))
	assert.Len(t, []rune(TruncateWarning(strings.Repeat("é", 400), 300)), 300)
}

type fixture struct {
	traffic  *testutil.FakeTraffic
	security *testutil.FakeSecurity
	perf     *testutil.FakePerformance
	period   model.MonthPeriod
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p, err := period.Compute(time.Time{}, "2026-01")
	require.NoError(t, err)

	return &fixture{
		traffic: &testutil.FakeTraffic{
			Points: map[string][]model.DailyTrafficPoint{
				p.Current().From:  testutil.DailySeries(p.Start, 31, 10000),
				p.Previous().From: testutil.DailySeries(p.PrevStart, 31, 8000),
			},
			Paths: []model.PathCount{{Path: "/", Requests: 4000}, {Path: "/pricing", Requests: 900}},
		},
		security: &testutil.FakeSecurity{Result: source.SecurityResult{Groups: []model.FirewallEventGroup{
			{Source: "waf", Action: "block", Count: 12},
		}}},
		perf:   &testutil.FakePerformance{Score: 90},
		period: p,
	}
}

func (f *fixture) aggregator(rec metrics.Recorder) *Aggregator {
	return New(f.traffic, f.security, f.perf, DefaultOptions(), nil, rec)
}

func TestAggregator_Run(t *testing.T) {
	f := newFixture(t)
	client := testutil.NewTestClient("demo-client")
	client.PerformanceURLs = append(client.PerformanceURLs, "https://example.com/")

	rec := metrics.NewInMemory()
	res, err := f.aggregator(rec).Run(context.Background(), client, f.period)
	require.NoError(t, err)

	assert.Equal(t, int64(10000), res.Traffic.Requests.Current)
	assert.Equal(t, int64(8000), res.Traffic.Requests.Previous)
	require.NotNil(t, res.Traffic.Requests.DeltaPercent)
	assert.Equal(t, 25.0, *res.Traffic.Requests.DeltaPercent)
	assert.Len(t, res.Traffic.Daily, 31)
	assert.Len(t, res.Traffic.Weekly, 5)
	assert.Len(t, res.Traffic.TopPaths, 2)

	assert.Equal(t, int64(12), res.Security.TotalFirewallActions)

	assert.Equal(t, []string{"https://example.com/", "https://example.com/pricing"}, f.perf.Probed)
	assert.Len(t, res.Performance.Results, 2)
	assert.Empty(t, res.Warnings)

	snap := rec.Snapshot()
	assert.Equal(t, uint64(2), snap.SourceCalls[source.NameTraffic])
	assert.Equal(t, uint64(1), snap.SourceCalls[source.NameSecurity])
}

func TestAggregator_SecurityDegrades(t *testing.T) {
	f := newFixture(t)
	f.security.Result = source.SecurityResult{Failure: fmt.Errorf("%w: HTTP 503", source.ErrUpstream)}

	rec := metrics.NewInMemory()
	res, err := f.aggregator(rec).Run(context.Background(), testutil.NewTestClient("demo-client"), f.period)
	require.NoError(t, err)

	assert.Zero(t, res.Security.TotalFirewallActions)
	assert.Equal(t, []model.CategoryCount{}, res.Security.TopCategories)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "security")

	assert.Equal(t, int64(10000), res.Traffic.Requests.Current)
	assert.Len(t, res.Performance.Results, 2)
	assert.Equal(t, uint64(1), rec.Snapshot().SourceFailures["security/degraded"])
}

func TestAggregator_SecurityReduced(t *testing.T) {
	f := newFixture(t)
	f.security.Result = source.SecurityResult{
		Groups:  []model.FirewallEventGroup{{Source: source.SourceAll, Action: "block", Count: 3}},
		Reduced: true,
	}

	res, err := f.aggregator(nil).Run(context.Background(), testutil.NewTestClient("demo-client"), f.period)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Security.TotalFirewallActions)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "grouped by action only")
}

func TestAggregator_TrafficFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.traffic.DailyErr = fmt.Errorf("%w: HTTP 500", source.ErrUpstream)

	_, err := f.aggregator(nil).Run(context.Background(), testutil.NewTestClient("demo-client"), f.period)
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrUpstream)
	assert.Contains(t, err.Error(), "traffic")
}

func TestAggregator_AuthIsFatal(t *testing.T) {
	f := newFixture(t)
	f.security.Err = fmt.Errorf("%w: HTTP 403", source.ErrAuth)

	_, err := f.aggregator(nil).Run(context.Background(), testutil.NewTestClient("demo-client"), f.period)
	require.ErrorIs(t, err, source.ErrAuth)
}

func TestAggregator_PerformanceAuthIsFatal(t *testing.T) {
	f := newFixture(t)
	f.perf.Err = fmt.Errorf("mobile probe for https://example.com/: %w: HTTP 403", source.ErrAuth)

	res, err := f.aggregator(nil).Run(context.Background(), testutil.NewTestClient("demo-client"), f.period)
	require.ErrorIs(t, err, source.ErrAuth)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "performance")
}

func TestAggregator_TopPathsDegrade(t *testing.T) {
	f := newFixture(t)
	f.traffic.PathsErr = errors.New("timeout")

	res, err := f.aggregator(nil).Run(context.Background(), testutil.NewTestClient("demo-client"), f.period)
	require.NoError(t, err)
	assert.Equal(t, []model.PathCount{}, res.Traffic.TopPaths)
	require.Len(t, res.Warnings, 1)
	assert.True(t, strings.HasPrefix(res.Warnings[0], "top_paths:"))
}

func TestAggregator_PerformanceProbeIsolation(t *testing.T) {
	f := newFixture(t)
	f.perf.Fail = map[string]model.Device{"https://example.com/pricing": model.DeviceDesktop}

	res, err := f.aggregator(nil).Run(context.Background(), testutil.NewTestClient("demo-client"), f.period)
	require.NoError(t, err)

	pricing := res.Performance.Results[1]
	assert.False(t, pricing.Mobile.IsEmpty())
	assert.True(t, pricing.Desktop.IsEmpty())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "https://example.com/pricing")
	assert.Contains(t, res.Warnings[0], "desktop")
}

func TestAggregator_TruncatesWarnings(t *testing.T) {
	f := newFixture(t)
	f.traffic.PathsErr = errors.New(strings.Repeat("x", 1000))

	agg := New(f.traffic, f.security, f.perf, Options{MaxWarningLength: 50}, nil, nil)
	res, err := agg.Run(context.Background(), testutil.NewTestClient("demo-client"), f.period)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Len(t, res.Warnings[0], 50)
}

func TestAggregator_NoPerformanceURLs(t *testing.T) {
	f := newFixture(t)
	client := testutil.NewTestClient("demo-client")
	client.PerformanceURLs = nil

	res, err := f.aggregator(nil).Run(context.Background(), client, f.period)
	require.NoError(t, err)
	assert.Empty(t, f.perf.Probed)
	assert.Equal(t, []model.PageSpeedResult{}, res.Performance.Results)
}
