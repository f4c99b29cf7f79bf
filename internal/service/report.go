package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sitereport/sitereport/internal/cache"
	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/period"
	"github.com/sitereport/sitereport/internal/repository"
	"github.com/sitereport/sitereport/internal/tracker"
)

// GetReport returns the stored snapshot row for a client month, reading
// through the cache when one is configured.
func (g *Generator) GetReport(ctx context.Context, clientID, monthKey string) (*model.SnapshotRecord, error) {
	if _, err := g.Client(clientID); err != nil {
		return nil, err
	}
	if _, err := period.Parse(monthKey); err != nil {
		return nil, err
	}

	if g.deps.Cache != nil {
		rec, err := g.deps.Cache.GetSnapshot(ctx, clientID, monthKey)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			g.logger.Warn("snapshot cache read failed", "client_id", clientID, "month", monthKey, "error", err)
		}
	}

	rec, err := g.deps.Snapshots.GetSnapshot(ctx, clientID, monthKey)
	if errors.Is(err, repository.ErrSnapshotNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrReportNotFound, clientID, monthKey)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	if g.deps.Cache != nil {
		if err := g.deps.Cache.SetSnapshot(ctx, rec); err != nil {
			g.logger.Warn("failed to cache snapshot", "client_id", clientID, "month", monthKey, "error", err)
		}
	}
	return rec, nil
}

// ListReports returns the months with a stored report for a client, newest
// first.
func (g *Generator) ListReports(ctx context.Context, clientID string) ([]string, error) {
	if _, err := g.Client(clientID); err != nil {
		return nil, err
	}
	months, err := g.deps.Snapshots.ListSnapshotMonths(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if months == nil {
		months = []string{}
	}
	return months, nil
}

// DefaultRunLimit is the page size of ListRuns when none is given.
const DefaultRunLimit = 20

// MaxRunLimit caps the page size of ListRuns.
const MaxRunLimit = 100

// ListRuns returns the newest runs of a client month.
func (g *Generator) ListRuns(ctx context.Context, clientID, monthKey string, limit int) ([]*model.ReportRun, error) {
	if _, err := g.Client(clientID); err != nil {
		return nil, err
	}
	if _, err := period.Parse(monthKey); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	limit = min(limit, MaxRunLimit)

	if g.deps.Runs == nil {
		return []*model.ReportRun{}, nil
	}
	runs, err := g.deps.Runs.ListRuns(ctx, clientID, monthKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if runs == nil {
		runs = []*model.ReportRun{}
	}
	return runs, nil
}

// GetRun returns one run by id.
func (g *Generator) GetRun(ctx context.Context, id string) (*model.ReportRun, error) {
	if g.deps.Runs == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	run, err := g.deps.Runs.GetRun(ctx, id)
	if errors.Is(err, tracker.ErrRunNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	return run, nil
}
