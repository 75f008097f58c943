package redisstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/gostage/core/config"
	"github.com/m3rciful/gostage/core/scene"
	"github.com/m3rciful/gostage/core/scene/scenetest"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewClient(coreconfig.RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStoreContract(t *testing.T) {
	scenetest.RunStoreContract(t, func(t *testing.T) scene.Store {
		_, client := newRedis(t)
		return New(client)
	})
}

func TestStoreKeysAndTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	store := New(client, WithPrefix("bot:"), WithTTL(time.Minute))

	require.NoError(t, store.Set(ctx, "1:2", scene.State{Scene: "echo", TouchedAt: time.Now()}))
	assert.True(t, mr.Exists("bot:1:2"))
	assert.Equal(t, time.Minute, mr.TTL("bot:1:2"))

	mr.FastForward(2 * time.Minute)
	st, err := store.Get(ctx, "1:2")
	require.NoError(t, err)
	assert.False(t, st.Active())

	require.NoError(t, store.Set(ctx, "x", scene.State{Scene: "echo"}))
	require.NoError(t, store.Delete(ctx, "x"))
	assert.False(t, mr.Exists("bot:x"))
}

func TestStoreCorruptValue(t *testing.T) {
	mr, client := newRedis(t)
	require.NoError(t, mr.Set(defaultPrefix+"bad", "{not json"))

	_, err := New(client).Get(context.Background(), "bad")
	assert.ErrorContains(t, err, "decode bad")
}

func TestLockerLockUnlock(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	locker := NewLocker(client, "test:", time.Second)

	unlock, err := locker.Lock(ctx, "s1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:s1"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:s1"))
}

func TestLockerContention(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	first := NewLocker(client, "test:", 100*time.Millisecond)
	second := NewLocker(client, "test:", 100*time.Millisecond)

	unlock, err := first.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)

	_, err = second.Lock(ctx, "shared", 5*time.Second)
	assert.ErrorIs(t, err, scene.ErrLockAcquire)

	require.NoError(t, unlock(ctx))
	unlock2, err := second.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}

func TestLockerDoesNotReleaseForeignLock(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	locker := NewLocker(client, "test:", time.Second)

	unlock, err := locker.Lock(ctx, "s", time.Second)
	require.NoError(t, err)

	// The lock expired and somebody else took it.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("test:lock:s", "other-owner"))

	require.NoError(t, unlock(ctx))
	got, err := mr.Get("test:lock:s")
	require.NoError(t, err)
	assert.Equal(t, "other-owner", got)
}

func TestStageAcrossReplicas(t *testing.T) {
	_, client := newRedis(t)
	var counter atomic.Int64

	newReplica := func() *scene.Stage {
		reg := scene.MustRegistry()
		stage, err := scene.NewStage(reg,
			scene.WithStore(New(client)),
			scene.WithLocker(NewLocker(client, "", 5*time.Second)),
			scene.WithFallback(scene.HandlerFunc(func(c *scene.Context) error {
				n, _ := c.SessionData().Int64("n")
				c.SetSessionValue("n", n+1)
				counter.Add(1)
				return nil
			})),
		)
		require.NoError(t, err)
		return stage
	}
	replicas := []*scene.Stage{newReplica(), newReplica()}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := replicas[i%2].Dispatch(context.Background(), scene.Update{SessionID: "9:9", Text: "x", IsMessage: true})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, err := New(client).Get(context.Background(), "9:9")
	require.NoError(t, err)
	n, _ := st.Data.Int64("n")
	assert.EqualValues(t, 20, n)
	assert.EqualValues(t, 20, counter.Load())
}
