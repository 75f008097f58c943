package scene

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// UnlockFunc releases a lock obtained from a Locker.
type UnlockFunc func(ctx context.Context) error

// Locker provides cross-process mutual exclusion per session.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// sessionLocks serializes work per session. Entries are reference counted
// and dropped when the last holder releases them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*lockEntry)}
}

func (l *sessionLocks) acquire(sessionID string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[sessionID]
	if !ok {
		entry = &lockEntry{}
		l.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

func (l *sessionLocks) release(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[sessionID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, sessionID)
	}
}

// size returns the number of live entries (tests).
func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// with runs fn while holding the local lock for sessionID and, when
// configured, the distributed lock too.
func (l *sessionLocks) with(ctx context.Context, sessionID string, dist Locker, ttl time.Duration, fn func(ctx context.Context) error) error {
	entry := l.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		l.release(sessionID)
	}()

	if dist == nil {
		return fn(ctx)
	}
	unlock, err := dist.Lock(ctx, sessionID, ttl)
	if err != nil {
		if errors.Is(err, ErrLockAcquire) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrLockAcquire, sessionID, err)
	}
	runErr := fn(ctx)
	// Release with a fresh context so cancellation does not leak the lock.
	unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := unlock(unlockCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
