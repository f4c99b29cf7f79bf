package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitereport/sitereport/internal/config"
	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/service"
	"github.com/sitereport/sitereport/internal/testutil"
)

type fakeGenerator struct {
	mu       sync.Mutex
	clients  []config.Client
	requests []service.GenerateRequest
	fail     map[string]error
}

func (g *fakeGenerator) Clients() []config.Client { return g.clients }

func (g *fakeGenerator) Generate(ctx context.Context, req service.GenerateRequest) (*service.GenerateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if err := g.fail[req.Client.ID]; err != nil {
		return nil, err
	}
	return &service.GenerateResult{RunID: "run-" + req.Client.ID, ClientID: req.Client.ID, Warnings: []string{"w"}}, nil
}

func (g *fakeGenerator) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type fakeLock struct {
	locker *fakeLocker
	name   string
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	delete(l.locker.held, l.name)
	l.locker.released = append(l.locker.released, l.name)
	return nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
	err      error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.held[name] {
		return nil, ErrLocked
	}
	l.held[name] = true
	return &fakeLock{locker: l, name: name}, nil
}

func newGenerator() *fakeGenerator {
	return &fakeGenerator{clients: []config.Client{
		testutil.NewTestClient("alpha"),
		testutil.NewTestClient("beta"),
	}}
}

func TestScheduler_Due(t *testing.T) {
	t.Parallel()

	s := New(newGenerator(), nil, 1, 6, nil)
	tests := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC), true},
		{time.Date(2026, 2, 1, 6, 59, 0, 0, time.UTC), true},
		{time.Date(2026, 2, 1, 7, 0, 0, 0, time.UTC), false},
		{time.Date(2026, 2, 2, 6, 0, 0, 0, time.UTC), false},
		// 01:00 on the 1st in UTC-5 is 06:00 UTC.
		{time.Date(2026, 2, 1, 1, 0, 0, 0, time.FixedZone("EST", -5*3600)), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Due(tt.at), tt.at.String())
	}
}

func TestScheduler_RunOnce(t *testing.T) {
	t.Parallel()

	gen := newGenerator()
	s := New(gen, newFakeLocker(), 1, 6, nil)

	ref := time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC)
	outcomes := s.RunOnce(context.Background(), ref)

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		require.NoError(t, o.Err)
		assert.Equal(t, "2026-01", o.Month)
		assert.Equal(t, "run-"+o.ClientID, o.RunID)
		assert.Equal(t, 1, o.Warnings)
	}

	require.Len(t, gen.requests, 2)
	for _, req := range gen.requests {
		assert.Equal(t, model.TriggerScheduled, req.Trigger)
		assert.Empty(t, req.Month)
		assert.Equal(t, ref, req.Reference)
	}
}

func TestScheduler_RunOnce_FiresOncePerMonth(t *testing.T) {
	t.Parallel()

	gen := newGenerator()
	locker := newFakeLocker()
	a := New(gen, locker, 1, 6, nil)
	b := New(gen, locker, 1, 6, nil)

	ref := time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC)
	a.RunOnce(context.Background(), ref)
	outcomes := b.RunOnce(context.Background(), ref.Add(time.Minute))

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.True(t, o.Skipped())
	}
	assert.Equal(t, 2, gen.count())
}

func TestScheduler_RunOnce_LocalClaims(t *testing.T) {
	t.Parallel()

	gen := newGenerator()
	s := New(gen, nil, 1, 6, nil)

	ref := time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC)
	s.RunOnce(context.Background(), ref)
	s.RunOnce(context.Background(), ref.Add(time.Minute))
	assert.Equal(t, 2, gen.count())

	// Next month is a new slot.
	s.RunOnce(context.Background(), ref.AddDate(0, 1, 0))
	assert.Equal(t, 4, gen.count())
}

func TestScheduler_RunOnce_FailureIsolated(t *testing.T) {
	t.Parallel()

	gen := newGenerator()
	gen.fail = map[string]error{"alpha": errors.New("upstream down")}
	locker := newFakeLocker()
	s := New(gen, locker, 1, 6, nil)

	outcomes := s.RunOnce(context.Background(), time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC))
	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[0].Err)
	assert.False(t, outcomes[0].Skipped())
	assert.NoError(t, outcomes[1].Err)

	// A failed run keeps its claim; it is retried manually, not every tick.
	assert.Empty(t, locker.released)
}

func TestScheduler_RunOnce_LockError(t *testing.T) {
	t.Parallel()

	gen := newGenerator()
	locker := newFakeLocker()
	locker.err = errors.New("redis down")
	s := New(gen, locker, 1, 6, nil)

	outcomes := s.RunOnce(context.Background(), time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC))
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Error(t, o.Err)
		assert.False(t, o.Skipped())
	}
	assert.Zero(t, gen.count())
}

func TestScheduler_RunAndShutdown(t *testing.T) {
	t.Parallel()

	gen := newGenerator()
	s := New(gen, nil, 1, 6, nil)
	s.interval = 10 * time.Millisecond
	s.SetClock(func() time.Time { return time.Date(2026, 2, 1, 6, 30, 0, 0, time.UTC) })

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	require.Eventually(t, func() bool { return gen.count() == 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, <-errCh)

	// Repeated ticks within the hour never fire twice.
	assert.Equal(t, 2, gen.count())
}

func TestScheduler_ShutdownBeforeRun(t *testing.T) {
	t.Parallel()

	s := New(newGenerator(), nil, 1, 6, nil)
	assert.NoError(t, s.Shutdown(context.Background()))
}
