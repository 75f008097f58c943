package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/gostage/core/logger"
	"github.com/m3rciful/gostage/core/scene"
)

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

const (
	defaultWait  = 5 * time.Second
	pollInterval = 25 * time.Millisecond
)

// Locker implements scene.Locker with SET NX PX and a token checked on release.
type Locker struct {
	client redis.UniversalClient
	prefix string
	wait   time.Duration
}

// NewLocker creates a locker. wait bounds how long Lock polls for a busy
// session; zero uses a default.
func NewLocker(client redis.UniversalClient, prefix string, wait time.Duration) *Locker {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if wait <= 0 {
		wait = defaultWait
	}
	return &Locker{client: client, prefix: prefix, wait: wait}
}

func (l *Locker) key(sessionID string) string {
	return l.prefix + "lock:" + sessionID
}

// Lock acquires the lock for sessionID, holding it at most ttl.
func (l *Locker) Lock(ctx context.Context, sessionID string, ttl time.Duration) (scene.UnlockFunc, error) {
	key := l.key(sessionID)
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for attempt := 1; ; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("redisstore: lock %s: %w", sessionID, err)
		}
		if ok {
			if attempt > 1 {
				logger.Debug(ctx, "session.store", "lock.contended",
					slog.String("backend", "redis"),
					slog.Int("attempts", attempt),
				)
			}
			return l.unlockFunc(key, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s after %d attempts", scene.ErrLockAcquire, sessionID, attempt)
		case <-ticker.C:
		}
	}
}

func (l *Locker) unlockFunc(key, token string) scene.UnlockFunc {
	return func(ctx context.Context) error {
		if err := unlockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("redisstore: unlock: %w", err)
		}
		return nil
	}
}
