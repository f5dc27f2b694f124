package digest

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	lockKey = "digest:run-lock"
	lockTTL = 30 * time.Minute
)

// RunLock guarantees at most one concurrent digest execution. The
// in-process mutex covers overlapping trigger paths within one
// instance (cron firing while a manual trigger runs); the optional
// Redis lease extends the guarantee across instances. A nil Redis
// client degrades to the in-process guard only.
type RunLock struct {
	rdb *redis.Client
	mu  sync.Mutex
}

func NewRunLock(rdb *redis.Client) *RunLock {
	return &RunLock{rdb: rdb}
}

// Acquire attempts to take the lock without blocking. It reports false
// when another run holds it. A Redis failure releases the local guard
// and surfaces the error; the caller skips the run.
func (l *RunLock) Acquire(ctx context.Context) (bool, error) {
	if !l.mu.TryLock() {
		return false, nil
	}
	if l.rdb == nil {
		return true, nil
	}

	ok, err := l.rdb.SetNX(ctx, lockKey, time.Now().UTC().Format(time.RFC3339), lockTTL).Result()
	if err != nil {
		l.mu.Unlock()
		return false, err
	}
	if !ok {
		l.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Release frees the lock. The TTL on the Redis lease covers a crashed
// holder; Release only speeds up the common path.
func (l *RunLock) Release(ctx context.Context) {
	if l.rdb != nil {
		if err := l.rdb.Del(ctx, lockKey).Err(); err != nil {
			logrus.Warnf("Failed to release digest run lease, it will expire on its own: %v", err)
		}
	}
	l.mu.Unlock()
}
