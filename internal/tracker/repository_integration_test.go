//go:build integration

package tracker

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/testutil"
)

func newRunTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err, "connect pool")
	t.Cleanup(pool.Close)

	unlock, err := testutil.AcquireDBLock(ctx, pool)
	require.NoError(t, err, "acquire db lock")
	t.Cleanup(func() { _ = unlock() })

	require.NoError(t, testutil.ResetSchema(ctx, pool, "000002_report_runs"), "reset schema")

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err, "open db")
	t.Cleanup(func() { _ = db.Close() })

	return ctx, NewRepository(db)
}

func TestIntegrationRuns_Lifecycle(t *testing.T) {
	ctx, repo := newRunTestEnv(t)
	tr := New(repo, nil, nil, nil)

	run := tr.Begin(ctx, "demo-client", "2026-01", model.TriggerScheduled)
	keys := model.ArtifactKeys{HTML: "reports/demo-client/2026-01.html", PDF: "reports/demo-client/2026-01.pdf"}
	require.NoError(t, run.Finish(ctx, Outcome{Keys: keys, WarningCount: 1}))

	got, err := repo.GetRun(ctx, run.ID())
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuccess, got.Status)
	assert.Equal(t, keys.HTML, got.HTMLKey)
	assert.Equal(t, keys.PDF, got.PDFKey)
	assert.Equal(t, 1, got.WarningCount)
	assert.NotNil(t, got.FinishedAt)
}

func TestIntegrationRuns_FinishWithoutStart(t *testing.T) {
	ctx, repo := newRunTestEnv(t)

	finished := time.Now().UTC()
	run := &model.ReportRun{
		ID:          "01HZZZZZZZZZZZZZZZZZZZZZZZ",
		ClientID:    "demo-client",
		ReportMonth: "2026-01",
		Trigger:     model.TriggerManual,
		Status:      model.RunStatusFailed,
		StartedAt:   finished.Add(-time.Minute),
		FinishedAt:  &finished,
		Error:       "traffic: upstream request failed",
	}
	require.NoError(t, repo.FinishRun(ctx, run))

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, run.Error, got.Error)

	// A terminal row is never rewritten.
	run.Status = model.RunStatusSuccess
	require.NoError(t, repo.FinishRun(ctx, run))
	got, err = repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
}

func TestIntegrationRuns_NotFound(t *testing.T) {
	ctx, repo := newRunTestEnv(t)

	_, err := repo.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
