package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitereport/sitereport/internal/model"
)

const (
	snapshotKeyPrefix = "snapshot:"

	// DefaultSnapshotTTL is the TTL for cached snapshot rows.
	DefaultSnapshotTTL = 6 * time.Hour
)

// ErrCacheMiss is returned when a key is not cached.
var ErrCacheMiss = errors.New("cache miss")

// SnapshotKey returns the cache key of a client month.
func SnapshotKey(clientID, monthKey string) string {
	return snapshotKeyPrefix + clientID + ":" + monthKey
}

// GetSnapshot returns a cached snapshot row or ErrCacheMiss.
func (c *Cache) GetSnapshot(ctx context.Context, clientID, monthKey string) (*model.SnapshotRecord, error) {
	data, err := c.client.Get(ctx, SnapshotKey(clientID, monthKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var rec model.SnapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// Treat a corrupt entry as a miss; the next write replaces it.
		return nil, ErrCacheMiss
	}
	return &rec, nil
}

// SetSnapshot caches a snapshot row.
func (c *Cache) SetSnapshot(ctx context.Context, rec *model.SnapshotRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, SnapshotKey(rec.ClientID, rec.ReportMonth), data, DefaultSnapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache snapshot: %w", err)
	}
	return nil
}

// DeleteSnapshot drops a cached snapshot row.
func (c *Cache) DeleteSnapshot(ctx context.Context, clientID, monthKey string) error {
	if err := c.client.Del(ctx, SnapshotKey(clientID, monthKey)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot from cache: %w", err)
	}
	return nil
}
