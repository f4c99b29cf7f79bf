package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sitereport/sitereport/internal/config"
	"github.com/sitereport/sitereport/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema drops and recreates one migration's tables, e.g. "000001_report_snapshots".
func ResetSchema(ctx context.Context, pool *pgxpool.Pool, migration string) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	for _, suffix := range []string{".down.sql", ".up.sql"} {
		path := filepath.Join(root, "migrations", migration+suffix)
		sql, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", filepath.Base(path), err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestClient creates a client with sensible defaults.
func NewTestClient(id string) config.Client {
	return config.Client{
		ID:       id,
		Name:     "Demo Site",
		ZoneID:   "zone-" + id,
		Domain:   "example.com",
		Timezone: "UTC",
		PerformanceURLs: []string{
			"https://example.com/",
			"https://example.com/pricing",
		},
	}
}

// DailySeries returns one point per day starting at start, splitting total
// requests evenly with the remainder on the first day.
func DailySeries(start time.Time, days int, totalRequests int64) []model.DailyTrafficPoint {
	if days <= 0 {
		return nil
	}
	per := totalRequests / int64(days)
	rem := totalRequests % int64(days)
	points := make([]model.DailyTrafficPoint, days)
	for i := range points {
		req := per
		if i == 0 {
			req += rem
		}
		points[i] = model.DailyTrafficPoint{
			Date:     start.AddDate(0, 0, i),
			Requests: req,
			Uniques:  req / 4,
			Bytes:    req * 2048,
		}
	}
	return points
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
