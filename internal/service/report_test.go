package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitereport/sitereport/internal/cache"
	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/period"
)

type fakeCache struct {
	mu      sync.Mutex
	records map[string]*model.SnapshotRecord
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{records: make(map[string]*model.SnapshotRecord)}
}

func (c *fakeCache) GetSnapshot(ctx context.Context, clientID, monthKey string) (*model.SnapshotRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[clientID+"/"+monthKey]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return rec, nil
}

func (c *fakeCache) SetSnapshot(ctx context.Context, rec *model.SnapshotRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.ClientID+"/"+rec.ReportMonth] = rec
	return nil
}

func (c *fakeCache) DeleteSnapshot(ctx context.Context, clientID, monthKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.records, clientID+"/"+monthKey)
	return nil
}

func TestGetReport_ReadsThroughCache(t *testing.T) {
	e := newTestEnv(t)
	fc := newFakeCache()
	e.gen.deps.Cache = fc
	ctx := context.Background()

	_, err := e.gen.Generate(ctx, e.request("2026-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, fc.deletes)

	rec, err := e.gen.GetReport(ctx, "demo-client", "2026-01")
	require.NoError(t, err)
	assert.Equal(t, "reports/demo-client/2026-01.pdf", rec.Artifacts.PDF)
	assert.Equal(t, 1, e.snapshots.Gets)

	_, err = e.gen.GetReport(ctx, "demo-client", "2026-01")
	require.NoError(t, err)
	assert.Equal(t, 1, e.snapshots.Gets, "second read should hit the cache")
}

func TestGetReport_Errors(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		client string
		month  string
		want   error
	}{
		{"unknown client", "nope", "2026-01", ErrUnknownClient},
		{"bad month", "demo-client", "2026-00", period.ErrInvalidMonth},
		{"not generated", "demo-client", "2025-11", ErrReportNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.gen.GetReport(ctx, tt.client, tt.month)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestListReports(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	months, err := e.gen.ListReports(ctx, "demo-client")
	require.NoError(t, err)
	assert.Equal(t, []string{}, months)

	for _, m := range []string{"2025-12", "2026-01"} {
		_, err := e.gen.Generate(ctx, e.request(m))
		require.NoError(t, err)
	}

	months, err = e.gen.ListReports(ctx, "demo-client")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-01", "2025-12"}, months)

	_, err = e.gen.ListReports(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownClient)
}

func TestRunHistory(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	first, err := e.gen.Generate(ctx, e.request("2026-01"))
	require.NoError(t, err)
	e.converter.Err = errors.New("converter down")
	_, err = e.gen.Generate(ctx, e.request("2026-01"))
	require.Error(t, err)

	runs, err := e.gen.ListRuns(ctx, "demo-client", "2026-01", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	statuses := []model.RunStatus{runs[0].Status, runs[1].Status}
	assert.ElementsMatch(t, []model.RunStatus{model.RunStatusSuccess, model.RunStatusFailed}, statuses)

	limited, err := e.gen.ListRuns(ctx, "demo-client", "2026-01", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	empty, err := e.gen.ListRuns(ctx, "demo-client", "2025-06", 0)
	require.NoError(t, err)
	assert.Equal(t, []*model.ReportRun{}, empty)

	run, err := e.gen.GetRun(ctx, first.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuccess, run.Status)
	assert.Equal(t, first.Keys.PDF, run.PDFKey)

	_, err = e.gen.GetRun(ctx, "01HMISSING")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = e.gen.ListRuns(ctx, "demo-client", "2026-13", 0)
	assert.ErrorIs(t, err, period.ErrInvalidMonth)
}
