package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "lock:"

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock held by another owner")

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Lock is an acquired Redis lock.
type Lock struct {
	cache *Cache
	key   string
	token string
}

// LockKey returns the Redis key of a named lock.
func LockKey(name string) string {
	return lockKeyPrefix + name
}

// AcquireLock takes the named lock for ttl with SET NX. It returns
// ErrLockHeld when the lock is already taken.
func (c *Cache) AcquireLock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := LockKey(name)
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{cache: c, key: key, token: token}, nil
}

// Release frees the lock if it is still owned.
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.cache.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}
