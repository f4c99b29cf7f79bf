// Package aggregate fans out to the upstream sources for one report month and
// merges their results into report sections.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sitereport/sitereport/internal/config"
	"github.com/sitereport/sitereport/internal/metrics"
	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/source"
)

const (
	// DefaultTopCategories is the default security ranking size.
	DefaultTopCategories = 5
	// DefaultTopPaths is the default top path count.
	DefaultTopPaths = 10
	// DefaultMaxWarningLength bounds each warning in runes.
	DefaultMaxWarningLength = 300
)

// TrafficSource provides zone traffic.
type TrafficSource interface {
	Daily(ctx context.Context, zoneID string, r model.DateRange) ([]model.DailyTrafficPoint, error)
	TopPaths(ctx context.Context, zoneID string, r model.DateTimeRange, limit int) ([]model.PathCount, error)
}

// SecuritySource provides firewall event counts.
type SecuritySource interface {
	Fetch(ctx context.Context, zoneID string, r model.DateTimeRange) (source.SecurityResult, error)
}

// PerformanceSource probes page performance. Only rejected credentials are
// returned as an error; other probe failures come back as warnings.
type PerformanceSource interface {
	Fetch(ctx context.Context, urls []string) (source.PerformanceResult, error)
}

// Options tunes aggregation output sizes.
type Options struct {
	TopCategories    int
	TopPaths         int
	MaxWarningLength int
}

// DefaultOptions returns the default Options.
func DefaultOptions() Options {
	return Options{
		TopCategories:    DefaultTopCategories,
		TopPaths:         DefaultTopPaths,
		MaxWarningLength: DefaultMaxWarningLength,
	}
}

// Result bundles the aggregated report sections and warnings.
type Result struct {
	Traffic     model.TrafficSnapshot
	Security    model.SecuritySnapshot
	Performance model.PerformanceSnapshot
	Warnings    []string
}

// Aggregator runs the sources for a client and month.
type Aggregator struct {
	traffic     TrafficSource
	security    SecuritySource
	performance PerformanceSource
	opts        Options
	logger      *slog.Logger
	metrics     metrics.Recorder
}

// New creates an Aggregator. A nil performance source disables probing.
func New(traffic TrafficSource, security SecuritySource, performance PerformanceSource, opts Options, logger *slog.Logger, recorder metrics.Recorder) *Aggregator {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		traffic:     traffic,
		security:    security,
		performance: performance,
		opts:        opts,
		logger:      logger.With("component", "aggregator"),
		metrics:     recorder,
	}
}

// Run fetches and merges all sections. Current and previous traffic are read
// first and any failure there aborts; top paths, security and performance are
// then read concurrently and degrade into warnings unless credentials were
// rejected.
func (a *Aggregator) Run(ctx context.Context, client config.Client, p model.MonthPeriod) (*Result, error) {
	logger := a.logger.With("client_id", client.ID, "month", p.MonthKey)

	var current, previous []model.DailyTrafficPoint
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = a.daily(gctx, client.ZoneID, p.Current())
		return err
	})
	g.Go(func() error {
		var err error
		previous, err = a.daily(gctx, client.ZoneID, p.Previous())
		return err
	})
	if err := g.Wait(); err != nil {
		a.metrics.IncSourceFailure(source.NameTraffic, "fatal")
		return nil, fmt.Errorf("%s: %w", source.NameTraffic, err)
	}

	var (
		paths    []model.PathCount
		pathsErr error
		sec      source.SecurityResult
		perf     source.PerformanceResult
	)
	urls := DedupeURLs(client.PerformanceURLs)

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		paths, pathsErr = a.traffic.TopPaths(gctx, client.ZoneID, p.CurrentDateTimes(), a.opts.TopPaths)
		a.metrics.ObserveSourceDuration(source.NameTopPaths, time.Since(start))
		if errors.Is(pathsErr, source.ErrAuth) {
			a.metrics.IncSourceFailure(source.NameTopPaths, "fatal")
			return fmt.Errorf("%s: %w", source.NameTopPaths, pathsErr)
		}
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		var err error
		sec, err = a.security.Fetch(gctx, client.ZoneID, p.CurrentDateTimes())
		a.metrics.ObserveSourceDuration(source.NameSecurity, time.Since(start))
		if err != nil {
			a.metrics.IncSourceFailure(source.NameSecurity, "fatal")
			return fmt.Errorf("%s: %w", source.NameSecurity, err)
		}
		return nil
	})
	if a.performance != nil && len(urls) > 0 {
		g.Go(func() error {
			start := time.Now()
			var err error
			perf, err = a.performance.Fetch(gctx, urls)
			a.metrics.ObserveSourceDuration(source.NamePerformance, time.Since(start))
			if err != nil {
				a.metrics.IncSourceFailure(source.NamePerformance, "fatal")
				return fmt.Errorf("%s: %w", source.NamePerformance, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Traffic:     a.trafficSnapshot(p, current, previous),
		Security:    SummarizeSecurity(sec.Groups, a.opts.TopCategories),
		Performance: model.PerformanceSnapshot{Results: perf.Results},
		Warnings:    []string{},
	}
	if res.Performance.Results == nil {
		res.Performance.Results = []model.PageSpeedResult{}
	}

	if pathsErr != nil {
		a.metrics.IncSourceFailure(source.NameTopPaths, "degraded")
		res.addWarning(a.opts, fmt.Sprintf("%s: data unavailable: %v", source.NameTopPaths, pathsErr))
	} else {
		res.Traffic.TopPaths = paths
	}
	if res.Traffic.TopPaths == nil {
		res.Traffic.TopPaths = []model.PathCount{}
	}

	if sec.Degraded() {
		a.metrics.IncSourceFailure(source.NameSecurity, "degraded")
		res.addWarning(a.opts, fmt.Sprintf("%s: data unavailable: %v", source.NameSecurity, sec.Failure))
	} else if sec.Reduced {
		res.addWarning(a.opts, fmt.Sprintf("%s: source breakdown unavailable, events grouped by action only", source.NameSecurity))
	}

	if len(perf.Warnings) > 0 {
		a.metrics.IncSourceFailure(source.NamePerformance, "degraded")
	}
	for _, w := range perf.Warnings {
		res.addWarning(a.opts, w)
	}

	if len(res.Warnings) > 0 {
		logger.Warn("aggregation degraded", "warnings", len(res.Warnings))
	}
	logger.Info("aggregation complete",
		"days_current", len(current),
		"days_previous", len(previous),
		"urls", len(urls),
	)
	return res, nil
}

func (a *Aggregator) daily(ctx context.Context, zoneID string, r model.DateRange) ([]model.DailyTrafficPoint, error) {
	start := time.Now()
	points, err := a.traffic.Daily(ctx, zoneID, r)
	a.metrics.ObserveSourceDuration(source.NameTraffic, time.Since(start))
	return points, err
}

func (a *Aggregator) trafficSnapshot(p model.MonthPeriod, current, previous []model.DailyTrafficPoint) model.TrafficSnapshot {
	cur := Totals(current)
	prev := Totals(previous)
	if current == nil {
		current = []model.DailyTrafficPoint{}
	}
	return model.TrafficSnapshot{
		Requests: WithDelta(cur.Requests, prev.Requests),
		Uniques:  WithDelta(cur.Uniques, prev.Uniques),
		Bytes:    WithDelta(cur.Bytes, prev.Bytes),
		Daily:    current,
		Weekly:   WeeklyRows(p, current),
	}
}

func (r *Result) addWarning(opts Options, msg string) {
	r.Warnings = append(r.Warnings, TruncateWarning(msg, opts.MaxWarningLength))
}
