package snapshot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitereport/sitereport/internal/aggregate"
	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/period"
	"github.com/sitereport/sitereport/internal/testutil"
)

func testResult(p model.MonthPeriod) *aggregate.Result {
	daily := testutil.DailySeries(p.Start, 31, 10000)
	return &aggregate.Result{
		Traffic: model.TrafficSnapshot{
			Requests: aggregate.WithDelta(10000, 8000),
			Daily:    daily,
			Weekly:   aggregate.WeeklyRows(p, daily),
			TopPaths: []model.PathCount{},
		},
		Security:    aggregate.SummarizeSecurity(nil, 5),
		Performance: model.PerformanceSnapshot{Results: []model.PageSpeedResult{}},
		Warnings:    []string{"security: data unavailable"},
	}
}

func TestBuild(t *testing.T) {
	p, err := period.Compute(time.Time{}, "2026-01")
	require.NoError(t, err)
	client := testutil.NewTestClient("demo-client")
	client.Timezone = "America/New_York"

	generated := time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC)
	snap := Build(client, p, testResult(p), generated)

	assert.Equal(t, model.SnapshotSchemaVersion, snap.SchemaVersion)
	assert.Equal(t, "demo-client", snap.ClientID)
	assert.Equal(t, "zone-demo-client", snap.ZoneID)
	assert.Equal(t, "2026-01", snap.MonthKey)
	assert.Equal(t, "January 2026", snap.MonthLabel)
	assert.Equal(t, "America/New_York", snap.Timezone)
	assert.Equal(t, generated, snap.GeneratedAt)
	assert.Equal(t, []string{"security: data unavailable"}, snap.Warnings)
}

func TestBuild_DefaultTimezone(t *testing.T) {
	p, err := period.Compute(time.Time{}, "2026-01")
	require.NoError(t, err)
	client := testutil.NewTestClient("demo-client")
	client.Timezone = ""

	snap := Build(client, p, testResult(p), time.Now())
	assert.Equal(t, "UTC", snap.Timezone)
}

func TestBuild_Deterministic(t *testing.T) {
	p, err := period.Compute(time.Time{}, "2026-01")
	require.NoError(t, err)
	client := testutil.NewTestClient("demo-client")
	res := testResult(p)

	first := Build(client, p, res, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	second := Build(client, p, res, time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
	second.GeneratedAt = first.GeneratedAt

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestBuild_CopiesWarnings(t *testing.T) {
	p, err := period.Compute(time.Time{}, "2026-01")
	require.NoError(t, err)
	res := testResult(p)

	snap := Build(testutil.NewTestClient("demo-client"), p, res, time.Now())
	res.Warnings[0] = "mutated"
	assert.Equal(t, "security: data unavailable", snap.Warnings[0])
}
