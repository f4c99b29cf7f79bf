// Package scheduler fires the monthly report run for every configured client.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sitereport/sitereport/internal/cache"
	"github.com/sitereport/sitereport/internal/config"
	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/period"
	"github.com/sitereport/sitereport/internal/service"
)

const (
	// DefaultTickInterval is how often the schedule is checked.
	DefaultTickInterval = time.Minute

	// DefaultLockTTL outlives the firing hour so one replica fires per month.
	DefaultLockTTL = 2 * time.Hour
)

// ErrLocked is reported for clients another replica already fired.
var ErrLocked = errors.New("scheduled run already claimed")

// Generator runs reports for configured clients.
type Generator interface {
	Generate(ctx context.Context, req service.GenerateRequest) (*service.GenerateResult, error)
	Clients() []config.Client
}

// Lock is a held schedule claim.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker claims a (client, month) slot across replicas.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lock, error)
}

// RedisLocker claims slots with Redis SET NX.
type RedisLocker struct {
	cache *cache.Cache
}

// NewRedisLocker creates a Locker backed by c.
func NewRedisLocker(c *cache.Cache) *RedisLocker {
	return &RedisLocker{cache: c}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lock, error) {
	lock, err := l.cache.AcquireLock(ctx, name, ttl)
	if errors.Is(err, cache.ErrLockHeld) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Outcome is the result of one client's scheduled run.
type Outcome struct {
	ClientID string
	Month    string
	RunID    string
	Warnings int
	Err      error
}

// Skipped reports whether the run was claimed elsewhere.
func (o Outcome) Skipped() bool {
	return errors.Is(o.Err, ErrLocked)
}

// Scheduler fires on Day at Hour (UTC) every month.
type Scheduler struct {
	gen      Generator
	locker   Locker
	logger   *slog.Logger
	day      int
	hour     int
	interval time.Duration
	lockTTL  time.Duration
	now      func() time.Time

	// fired remembers local claims when no Locker is configured.
	fired map[string]bool

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// New creates a Scheduler. locker may be nil for a single replica.
func New(gen Generator, locker Locker, day, hour int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		gen:      gen,
		locker:   locker,
		logger:   logger.With("component", "scheduler"),
		day:      day,
		hour:     hour,
		interval: DefaultTickInterval,
		lockTTL:  DefaultLockTTL,
		now:      func() time.Time { return time.Now().UTC() },
		fired:    make(map[string]bool),
	}
}

// SetClock overrides the time source.
func (s *Scheduler) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Due reports whether t falls in the firing hour.
func (s *Scheduler) Due(t time.Time) bool {
	t = t.UTC()
	return t.Day() == s.day && t.Hour() == s.hour
}

// Run checks the schedule every tick until ctx is cancelled or Shutdown is
// called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.done = make(chan struct{})
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	defer close(s.done)

	s.logger.Info("scheduler started", "day", s.day, "hour", s.hour)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	if !s.Due(now) {
		return
	}
	s.RunOnce(ctx, now)
}

// Shutdown stops the loop and waits for an in-flight run to finish.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	s.logger.Info("scheduler shutdown initiated")
	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		s.logger.Info("scheduler shutdown complete")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler shutdown timed out")
		return ctx.Err()
	}
}

// RunOnce generates the default month for every client that is not
// already claimed. Clients run one after another.
func (s *Scheduler) RunOnce(ctx context.Context, ref time.Time) []Outcome {
	p, err := period.Compute(ref, "")
	if err != nil {
		s.logger.Error("failed to compute schedule period", "error", err)
		return nil
	}

	clients := s.gen.Clients()
	outcomes := make([]Outcome, 0, len(clients))
	for _, client := range clients {
		if ctx.Err() != nil {
			break
		}
		outcomes = append(outcomes, s.runClient(ctx, client, p.MonthKey, ref))
	}
	return outcomes
}

func (s *Scheduler) runClient(ctx context.Context, client config.Client, month string, ref time.Time) Outcome {
	out := Outcome{ClientID: client.ID, Month: month}
	logger := s.logger.With("client_id", client.ID, "month", month)

	lock, err := s.claim(ctx, client.ID, month)
	if err != nil {
		out.Err = err
		if !out.Skipped() {
			logger.Error("failed to claim scheduled run", "error", err)
		}
		return out
	}

	res, err := s.gen.Generate(ctx, service.GenerateRequest{
		Client:    client,
		Trigger:   model.TriggerScheduled,
		Reference: ref,
	})
	if err != nil {
		out.Err = err
		logger.Error("scheduled run failed", "error", err)
		// A run cut short by shutdown leaves the slot to another replica.
		if ctx.Err() != nil {
			s.unclaim(client.ID, month, lock)
		}
		return out
	}

	out.RunID = res.RunID
	out.Warnings = len(res.Warnings)
	logger.Info("scheduled run complete", "run_id", res.RunID, "warnings", out.Warnings)
	return out
}

func lockName(clientID, month string) string {
	return fmt.Sprintf("schedule:%s:%s", clientID, month)
}

func (s *Scheduler) claim(ctx context.Context, clientID, month string) (Lock, error) {
	name := lockName(clientID, month)
	if s.locker != nil {
		return s.locker.Acquire(ctx, name, s.lockTTL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired[name] {
		return nil, ErrLocked
	}
	s.fired[name] = true
	return nil, nil
}

func (s *Scheduler) unclaim(clientID, month string, lock Lock) {
	if lock == nil {
		s.mu.Lock()
		delete(s.fired, lockName(clientID, month))
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lock.Release(ctx); err != nil {
		s.logger.Warn("failed to release schedule lock", "client_id", clientID, "month", month, "error", err)
	}
}
