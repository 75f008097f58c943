// Package scenetest provides helpers shared by scene store and stage tests.
package scenetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/gostage/core/scene"
)

// Clock is a manually advanced clock for scene.WithClock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Recorder collects stage events.
type Recorder struct {
	mu     sync.Mutex
	events []scene.Event
}

// Observe implements scene.Observer.
func (r *Recorder) Observe(_ context.Context, ev scene.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []scene.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scene.Event(nil), r.events...)
}

// Kinds returns recorded event kinds, optionally skipping dispatch events.
func (r *Recorder) Kinds(skipDispatch bool) []scene.EventKind {
	var out []scene.EventKind
	for _, ev := range r.Events() {
		if skipDispatch && ev.Kind == scene.EventDispatch {
			continue
		}
		out = append(out, ev.Kind)
	}
	return out
}

// RunStoreContract checks behaviour every scene.Store must share.
// newStore must return an empty store.
func RunStoreContract(t *testing.T, newStore func(t *testing.T) scene.Store) {
	t.Helper()
	ctx := context.Background()
	touched := time.UnixMilli(1_700_000_000_123).UTC()

	t.Run("unknown session is zero", func(t *testing.T) {
		st, err := newStore(t).Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, st.Active())
		assert.False(t, st.Touched())
		assert.Empty(t, st.Payload)
		assert.Empty(t, st.Data)
	})

	t.Run("round trip", func(t *testing.T) {
		s := newStore(t)
		in := scene.State{
			Scene:     "super-wizard",
			Step:      3,
			Payload:   scene.Values{"name": "ann", "count": 2},
			Data:      scene.Values{"my_context_prop": "set", "admin": true},
			TouchedAt: touched,
		}
		require.NoError(t, s.Set(ctx, "1:1", in))

		out, err := s.Get(ctx, "1:1")
		require.NoError(t, err)
		assert.Equal(t, "super-wizard", out.Scene)
		assert.Equal(t, 3, out.Step)
		assert.True(t, out.TouchedAt.Equal(touched), "touched_at %s != %s", out.TouchedAt, touched)

		name, ok := out.Payload.String("name")
		assert.True(t, ok)
		assert.Equal(t, "ann", name)
		count, ok := out.Payload.Int64("count")
		assert.True(t, ok)
		assert.EqualValues(t, 2, count)
		prop, _ := out.Data.String("my_context_prop")
		assert.Equal(t, "set", prop)
		admin, _ := out.Data.Bool("admin")
		assert.True(t, admin)
	})

	t.Run("overwrite and clear", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "a", scene.State{Scene: "echo", Payload: scene.Values{"k": "v"}, TouchedAt: touched}))
		require.NoError(t, s.Set(ctx, "a", scene.State{Data: scene.Values{"keep": "me"}, TouchedAt: touched}))

		out, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, out.Active())
		assert.Zero(t, out.Step)
		assert.Empty(t, out.Payload)
		assert.True(t, out.Touched())
		keep, _ := out.Data.String("keep")
		assert.Equal(t, "me", keep)
	})

	t.Run("returned state is a copy", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "a", scene.State{Scene: "echo", Payload: scene.Values{"k": "v"}, TouchedAt: touched}))
		out, err := s.Get(ctx, "a")
		require.NoError(t, err)
		out.Payload["k"] = "changed"

		again, err := s.Get(ctx, "a")
		require.NoError(t, err)
		k, _ := again.Payload.String("k")
		assert.Equal(t, "v", k)
	})

	t.Run("sessions are independent", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Set(ctx, fmt.Sprintf("s%d", i), scene.State{Scene: "echo", Step: 0, Payload: scene.Values{"i": i}, TouchedAt: touched}))
			}(i)
		}
		wg.Wait()
		for i := 0; i < 16; i++ {
			out, err := s.Get(ctx, fmt.Sprintf("s%d", i))
			require.NoError(t, err)
			got, ok := out.Payload.Int64("i")
			require.True(t, ok)
			assert.EqualValues(t, i, got)
		}
	})
}
