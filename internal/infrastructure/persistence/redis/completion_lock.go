package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
	"github.com/streakbot/habit-streak-bot/internal/domain/shared"
)

// Compile-time check.
var _ habit.Locker = (*CompletionLock)(nil)

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock re-acquired by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CompletionLock is a habit.Locker shared by every instance pointing at the
// same Redis.
type CompletionLock struct {
	cache *Cache
}

// NewCompletionLock creates a lock on top of cache.
func NewCompletionLock(cache *Cache) *CompletionLock {
	return &CompletionLock{cache: cache}
}

// Lock acquires the completion lock for id. A held lock is reported as
// shared.ErrCompletionConflict so callers treat it like a lost race.
func (l *CompletionLock) Lock(ctx context.Context, id habit.ID, ttl time.Duration) (func(context.Context) error, error) {
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}

	key := completionKey(id)
	token := uuid.NewString()

	ok, err := l.cache.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, shared.StorageError("AcquireCompletionLock", err)
	}
	if !ok {
		return nil, shared.ErrCompletionConflict
	}

	unlock := func(ctx context.Context) error {
		err := releaseScript.Run(ctx, l.cache.client, []string{l.cache.prefix + key}, token).Err()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("release completion lock: %w", err)
		}
		return nil
	}
	return unlock, nil
}

func completionKey(id habit.ID) string {
	return LockKey("habit:" + strconv.FormatInt(int64(id), 10))
}
