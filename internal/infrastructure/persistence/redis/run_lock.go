package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/drop-matcher/internal/domain/matching"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrLockLost is returned by release when the lock expired or was taken over.
var ErrLockLost = errors.New("redis: run lock lost before release")

// RunLock implements matching.RunLock with SET NX PX and a token-checked release.
type RunLock struct {
	rdb *redis.Client
	key string
}

// NewRunLock creates a lock on the given resource name.
func NewRunLock(c *Client, resource string) *RunLock {
	return &RunLock{rdb: c.rdb, key: LockKey(resource)}
}

// Acquire takes the lock for ttl. Returns matching.ErrRunInProgress if it is held.
func (l *RunLock) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, matching.ErrRunInProgress
	}

	release := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Int()
		if err != nil {
			return fmt.Errorf("redis: release %s: %w", l.key, err)
		}
		if n == 0 {
			return ErrLockLost
		}
		return nil
	}

	return release, nil
}
