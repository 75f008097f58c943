package scene

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLocksSerializeAndRelease(t *testing.T) {
	locks := newSessionLocks()
	var inFlight, maxInFlight atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locks.with(context.Background(), "s1", nil, 0, func(context.Context) error {
				n := inFlight.Add(1)
				for {
					m := maxInFlight.Load()
					if n <= m || maxInFlight.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxInFlight.Load())
	assert.Zero(t, locks.size())
}

func TestSessionLocksIndependentSessions(t *testing.T) {
	locks := newSessionLocks()
	entered := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = locks.with(context.Background(), "a", nil, 0, func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	done := make(chan struct{})
	go func() {
		_ = locks.with(context.Background(), "b", nil, 0, func(context.Context) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session b blocked by session a")
	}
	close(release)
	require.Eventually(t, func() bool { return locks.size() == 0 }, time.Second, time.Millisecond)
}

type unlockFailer struct{}

func (unlockFailer) Lock(context.Context, string, time.Duration) (UnlockFunc, error) {
	return func(context.Context) error { return errors.New("unlock failed") }, nil
}

func TestSessionLocksUnlockError(t *testing.T) {
	locks := newSessionLocks()

	err := locks.with(context.Background(), "s", unlockFailer{}, time.Second, func(context.Context) error { return nil })
	assert.EqualError(t, err, "unlock failed")

	fnErr := errors.New("fn failed")
	err = locks.with(context.Background(), "s", unlockFailer{}, time.Second, func(context.Context) error { return fnErr })
	assert.ErrorIs(t, err, fnErr)
}

func TestIsProgrammerError(t *testing.T) {
	assert.True(t, isProgrammerError(&UnknownSceneError{Name: "x"}))
	assert.True(t, isProgrammerError(&DuplicateSceneError{Name: "x"}))
	assert.True(t, isProgrammerError(ErrNotWizard))
	assert.True(t, isProgrammerError(ErrRegistryFrozen))
	assert.False(t, isProgrammerError(errors.New("boom")))
	assert.False(t, isProgrammerError(&HandlerError{Phase: "step", Err: errors.New("boom")}))
}
