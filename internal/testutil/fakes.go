package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/source"
)

// FakeTraffic serves canned daily traffic keyed by the range start date.
type FakeTraffic struct {
	mu       sync.Mutex
	Points   map[string][]model.DailyTrafficPoint
	Paths    []model.PathCount
	DailyErr error
	PathsErr error
	Calls    int
}

// Daily implements the traffic source.
func (f *FakeTraffic) Daily(ctx context.Context, zoneID string, r model.DateRange) ([]model.DailyTrafficPoint, error) {
	f.mu.Lock()
	f.Calls++
	f.mu.Unlock()
	if f.DailyErr != nil {
		return nil, f.DailyErr
	}
	return append([]model.DailyTrafficPoint(nil), f.Points[r.From]...), nil
}

// TopPaths implements the traffic source.
func (f *FakeTraffic) TopPaths(ctx context.Context, zoneID string, r model.DateTimeRange, limit int) ([]model.PathCount, error) {
	if f.PathsErr != nil {
		return nil, f.PathsErr
	}
	paths := append([]model.PathCount(nil), f.Paths...)
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	return paths, nil
}

// FakeSecurity returns a canned security result.
type FakeSecurity struct {
	Result source.SecurityResult
	Err    error
}

// Fetch implements the security source.
func (f *FakeSecurity) Fetch(ctx context.Context, zoneID string, r model.DateTimeRange) (source.SecurityResult, error) {
	return f.Result, f.Err
}

// FakePerformance scores every URL and fails the listed url/device probes.
// A non-nil Err is returned instead of any result.
type FakePerformance struct {
	mu     sync.Mutex
	Score  int
	Fail   map[string]model.Device
	Err    error
	Probed []string
}

// Fetch implements the performance source.
func (f *FakePerformance) Fetch(ctx context.Context, urls []string) (source.PerformanceResult, error) {
	f.mu.Lock()
	f.Probed = append(f.Probed, urls...)
	f.mu.Unlock()
	if f.Err != nil {
		return source.PerformanceResult{}, f.Err
	}

	var res source.PerformanceResult
	for _, u := range urls {
		r := model.PageSpeedResult{URL: u}
		for _, d := range model.Devices {
			if dev, ok := f.Fail[u]; ok && dev == d {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s probe failed for %s: boom", source.NamePerformance, d, u))
				continue
			}
			score := f.Score
			scores := model.DeviceScores{Performance: &score, Accessibility: &score, BestPractices: &score, SEO: &score}
			if d == model.DeviceMobile {
				r.Mobile = scores
			} else {
				r.Desktop = scores
			}
		}
		res.Results = append(res.Results, r)
	}
	return res, nil
}

// FakeConverter returns a fixed PDF body or error.
type FakeConverter struct {
	mu    sync.Mutex
	PDF   []byte
	Err   error
	Calls int
}

// Convert implements the PDF converter.
func (f *FakeConverter) Convert(ctx context.Context, html []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	if f.PDF != nil {
		return append([]byte(nil), f.PDF...), nil
	}
	return []byte("%PDF-1.4\n% fake\n"), nil
}

// FakeSnapshots is an in-memory snapshot row store.
type FakeSnapshots struct {
	mu        sync.Mutex
	Records   map[string]*model.SnapshotRecord
	UpsertErr error
	Upserts   int
	Gets      int
	notFound  error
}

// NewFakeSnapshots creates an empty FakeSnapshots that answers missing rows
// with notFound.
func NewFakeSnapshots(notFound error) *FakeSnapshots {
	return &FakeSnapshots{Records: make(map[string]*model.SnapshotRecord), notFound: notFound}
}

// UpsertSnapshot stores or replaces the row for the client month.
func (f *FakeSnapshots) UpsertSnapshot(ctx context.Context, rec *model.SnapshotRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpsertErr != nil {
		return f.UpsertErr
	}
	f.Upserts++
	cp := *rec
	f.Records[rec.ClientID+"/"+rec.ReportMonth] = &cp
	return nil
}

// GetSnapshot returns the stored row or the configured not-found error.
func (f *FakeSnapshots) GetSnapshot(ctx context.Context, clientID, monthKey string) (*model.SnapshotRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Gets++
	rec, ok := f.Records[clientID+"/"+monthKey]
	if !ok {
		return nil, f.notFound
	}
	cp := *rec
	return &cp, nil
}

// ListSnapshotMonths returns the client's stored months, newest first.
func (f *FakeSnapshots) ListSnapshotMonths(ctx context.Context, clientID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var months []string
	for _, rec := range f.Records {
		if rec.ClientID == clientID {
			months = append(months, rec.ReportMonth)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months, nil
}

// FakeRunStore keeps run records in memory and never rewrites a terminal run.
type FakeRunStore struct {
	mu   sync.Mutex
	Runs map[string]model.ReportRun
	// NotFound is returned by GetRun for unknown ids.
	NotFound error
}

// NewFakeRunStore creates an empty FakeRunStore.
func NewFakeRunStore() *FakeRunStore {
	return &FakeRunStore{Runs: make(map[string]model.ReportRun)}
}

// InsertRun records a started run.
func (f *FakeRunStore) InsertRun(ctx context.Context, run *model.ReportRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Runs[run.ID]; !ok {
		f.Runs[run.ID] = *run
	}
	return nil
}

// FinishRun records the terminal state of a run.
func (f *FakeRunStore) FinishRun(ctx context.Context, run *model.ReportRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.Runs[run.ID]; ok && prev.Status.IsTerminal() {
		return nil
	}
	f.Runs[run.ID] = *run
	return nil
}

// All returns every stored run.
func (f *FakeRunStore) All() []model.ReportRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	runs := make([]model.ReportRun, 0, len(f.Runs))
	for _, r := range f.Runs {
		runs = append(runs, r)
	}
	return runs
}

// GetRun returns a stored run or NotFound.
func (f *FakeRunStore) GetRun(ctx context.Context, id string) (*model.ReportRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.Runs[id]
	if !ok {
		return nil, f.NotFound
	}
	return &run, nil
}

// ListRuns returns the newest runs of a client month.
func (f *FakeRunStore) ListRuns(ctx context.Context, clientID, monthKey string, limit int) ([]*model.ReportRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var runs []*model.ReportRun
	for _, r := range f.Runs {
		if r.ClientID == clientID && r.ReportMonth == monthKey {
			run := r
			runs = append(runs, &run)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
