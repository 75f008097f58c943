package scene_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/m3rciful/gostage/core/scene"
	"github.com/m3rciful/gostage/core/scene/scenetest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sid = "1:1"

type harness struct {
	t     *testing.T
	stage *scene.Stage
	store scene.Store
	clock *scenetest.Clock
	rec   *scenetest.Recorder
}

func newHarness(t *testing.T, scenes []*scene.Scene, opts ...scene.StageOption) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		store: scene.NewMemoryStore(),
		clock: scenetest.NewClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		rec:   &scenetest.Recorder{},
	}
	reg, err := scene.NewRegistry(scenes...)
	require.NoError(t, err)
	base := []scene.StageOption{
		scene.WithStore(h.store),
		scene.WithClock(h.clock.Now),
		scene.WithObserver(h.rec),
	}
	h.stage, err = scene.NewStage(reg, append(base, opts...)...)
	require.NoError(t, err)
	return h
}

func message(text string) scene.Update {
	u := scene.Update{SessionID: sid, UserID: 1, ChatID: 1, Text: text, IsMessage: true}
	if strings.HasPrefix(text, "/") {
		u.Command = strings.TrimPrefix(strings.Fields(text)[0], "/")
	}
	return u
}

func callback(data string) scene.Update {
	return scene.Update{SessionID: sid, UserID: 1, ChatID: 1, CallbackData: data, IsCallback: true}
}

func (h *harness) dispatch(u scene.Update) bool {
	h.t.Helper()
	handled, err := h.stage.Dispatch(context.Background(), u)
	require.NoError(h.t, err)
	return handled
}

func (h *harness) run(fn func(c *scene.Context) error) {
	h.t.Helper()
	require.NoError(h.t, h.stage.Run(context.Background(), message(""), fn))
}

func (h *harness) state() scene.State {
	h.t.Helper()
	st, err := h.store.Get(context.Background(), sid)
	require.NoError(h.t, err)
	return st
}

func TestEnterSetsSceneAndStep(t *testing.T) {
	h := newHarness(t, []*scene.Scene{scene.New("echo")},
		scene.WithFallback(scene.NewRouter(scene.Command("echo", scene.EnterHandler("echo")))),
	)

	assert.True(t, h.dispatch(message("/echo")))

	st := h.state()
	assert.Equal(t, "echo", st.Scene)
	assert.Zero(t, st.Step)
	assert.True(t, st.TouchedAt.Equal(h.clock.Now()))
}

func TestWizardLeavesAfterLastStep(t *testing.T) {
	var leaves int
	wiz := scene.NewWizard("wiz",
		[]scene.Handler{scene.NextHandler(), scene.NextHandler(), scene.NextHandler()},
		scene.WithLeave(func(*scene.Context) error { leaves++; return nil }),
	)
	h := newHarness(t, []*scene.Scene{wiz})
	h.run(func(c *scene.Context) error { return c.Enter("wiz") })

	for step := 1; step <= 3; step++ {
		assert.True(t, h.dispatch(message("go")))
		st := h.state()
		if step < 3 {
			assert.Equal(t, "wiz", st.Scene)
			assert.Equal(t, step, st.Step)
		} else {
			assert.False(t, st.Active())
			assert.Zero(t, st.Step)
		}
	}
	assert.Equal(t, 1, leaves)
	assert.Equal(t, []scene.EventKind{
		scene.EventEnter, scene.EventStep, scene.EventStep, scene.EventLeave,
	}, h.rec.Kinds(true))
}

func TestTTLExpiresIdleScene(t *testing.T) {
	var echoed, leaves int
	echo := scene.New("echo",
		scene.WithLeave(func(*scene.Context) error { leaves++; return nil }),
		scene.WithRoutes(scene.OnText(func(*scene.Context) error { echoed++; return nil })),
	)
	h := newHarness(t, []*scene.Scene{echo},
		scene.WithIdleTTL(10*time.Second),
		scene.WithFallback(scene.NewRouter(scene.Command("echo", scene.EnterHandler("echo")))),
	)

	h.dispatch(message("/echo"))
	h.clock.Advance(9 * time.Second)
	h.dispatch(message("still here"))
	require.Equal(t, 1, echoed)
	assert.Equal(t, "echo", h.state().Scene)

	h.clock.Advance(11 * time.Second)
	assert.False(t, h.dispatch(message("late")))
	assert.Equal(t, 1, echoed)
	assert.False(t, h.state().Active())
	assert.Zero(t, leaves, "expiry does not run the leave hook")
	assert.Contains(t, h.rec.Kinds(true), scene.EventExpire)
}

func TestSceneTTLOverridesStage(t *testing.T) {
	h := newHarness(t, []*scene.Scene{scene.New("short", scene.WithTTL(5*time.Second))})
	h.run(func(c *scene.Context) error { return c.Enter("short") })

	h.clock.Advance(6 * time.Second)
	h.dispatch(message("x"))
	assert.False(t, h.state().Active())
}

func TestLeaveWithoutSceneIsNoop(t *testing.T) {
	h := newHarness(t, []*scene.Scene{scene.New("echo")})

	h.run(func(c *scene.Context) error { return c.Leave() })

	assert.False(t, h.state().Active())
	assert.Empty(t, h.rec.Kinds(true))
}

func TestStaleSceneIsCleared(t *testing.T) {
	var fellThrough bool
	h := newHarness(t, []*scene.Scene{scene.New("echo")},
		scene.WithFallback(scene.HandlerFunc(func(*scene.Context) error { fellThrough = true; return nil })),
	)
	require.NoError(t, h.store.Set(context.Background(), sid, scene.State{
		Scene: "removed", Payload: scene.Values{"x": 1}, TouchedAt: h.clock.Now(),
	}))

	assert.True(t, h.dispatch(message("hi")))

	assert.True(t, fellThrough)
	st := h.state()
	assert.False(t, st.Active())
	assert.Nil(t, st.Payload)
	assert.Equal(t, []scene.EventKind{scene.EventStale}, h.rec.Kinds(true))
}

func TestDefaultSceneOnlyForNewSessions(t *testing.T) {
	var greeted int
	greeter := scene.New("greeter",
		scene.WithEnter(func(*scene.Context) error { greeted++; return nil }),
		scene.WithRoutes(scene.Hears("bye", scene.LeaveHandler())),
	)
	h := newHarness(t, []*scene.Scene{greeter}, scene.WithDefaultScene("greeter"))

	assert.False(t, h.dispatch(message("hello")))
	assert.Equal(t, "greeter", h.state().Scene)
	assert.Equal(t, 1, greeted)

	assert.True(t, h.dispatch(message("bye")))
	assert.False(t, h.state().Active())

	assert.False(t, h.dispatch(message("again")))
	assert.False(t, h.state().Active())
	assert.Equal(t, 1, greeted)
}

func TestRunDoesNotEnterDefaultScene(t *testing.T) {
	h := newHarness(t, []*scene.Scene{scene.New("greeter")}, scene.WithDefaultScene("greeter"))

	h.run(func(c *scene.Context) error {
		assert.Empty(t, c.Scene())
		return nil
	})
}

func TestReenterAndPayload(t *testing.T) {
	var hooks []string
	echo := scene.New("echo",
		scene.WithEnter(func(*scene.Context) error { hooks = append(hooks, "enter"); return nil }),
		scene.WithLeave(func(*scene.Context) error { hooks = append(hooks, "leave"); return nil }),
	)
	h := newHarness(t, []*scene.Scene{echo, scene.New("other")})

	h.run(func(c *scene.Context) error { return c.Enter("echo", scene.Values{"n": 1}) })
	h.run(func(c *scene.Context) error { return c.Reenter() })

	assert.Equal(t, []string{"enter", "leave", "enter"}, hooks)
	n, ok := h.state().Payload.Int64("n")
	require.True(t, ok)
	assert.EqualValues(t, 1, n)

	h.run(func(c *scene.Context) error { return c.Enter("echo", scene.Values{"n": 2}) })
	n, _ = h.state().Payload.Int64("n")
	assert.EqualValues(t, 2, n)

	h.run(func(c *scene.Context) error { return c.Enter("other") })
	st := h.state()
	assert.Equal(t, "other", st.Scene)
	assert.Empty(t, st.Payload)
}

func TestLeaveHookTransitionsDoNotRecurse(t *testing.T) {
	var leaves, entered int
	a := scene.New("a", scene.WithLeave(func(c *scene.Context) error {
		leaves++
		if err := c.Leave(); err != nil {
			return err
		}
		return c.Enter("b")
	}))
	b := scene.New("b", scene.WithEnter(func(*scene.Context) error { entered++; return nil }))
	h := newHarness(t, []*scene.Scene{a, b})

	h.run(func(c *scene.Context) error { return c.Enter("a") })
	h.run(func(c *scene.Context) error { return c.Leave() })

	assert.Equal(t, 1, leaves)
	assert.Equal(t, 1, entered)
	assert.Equal(t, "b", h.state().Scene)

	h.run(func(c *scene.Context) error { return c.Enter("a") })
	h.run(func(c *scene.Context) error { return c.Enter("b") })
	assert.Equal(t, 2, leaves)
	assert.Equal(t, "b", h.state().Scene)
}

func TestEnterPayloadIsCopied(t *testing.T) {
	h := newHarness(t, []*scene.Scene{scene.New("echo")})
	p := scene.Values{"k": "v"}

	h.run(func(c *scene.Context) error { return c.Enter("echo", p) })
	p["k"] = "mutated"

	k, _ := h.state().Payload.String("k")
	assert.Equal(t, "v", k)
}

func TestSessionDataSurvivesLeave(t *testing.T) {
	h := newHarness(t, []*scene.Scene{scene.New("echo")})

	h.run(func(c *scene.Context) error {
		c.SetSessionValue("my_context_prop", "kept")
		if err := c.Enter("echo"); err != nil {
			return err
		}
		c.Set("local", true)
		return c.Leave()
	})

	st := h.state()
	assert.Nil(t, st.Payload)
	prop, _ := st.Data.String("my_context_prop")
	assert.Equal(t, "kept", prop)
}

func TestHandlerErrorIsAbsorbed(t *testing.T) {
	boom := errors.New("boom")
	var got []*scene.HandlerError
	echo := scene.New("echo", scene.WithRoutes(scene.OnText(func(*scene.Context) error { return boom })))
	h := newHarness(t, []*scene.Scene{echo},
		scene.WithErrorHook(func(_ context.Context, err *scene.HandlerError) { got = append(got, err) }),
	)
	h.run(func(c *scene.Context) error { return c.Enter("echo") })

	assert.True(t, h.dispatch(message("hi")))

	require.Len(t, got, 1)
	assert.Equal(t, "echo", got[0].Scene)
	assert.Equal(t, "route", got[0].Phase)
	assert.ErrorIs(t, got[0], boom)
	assert.Equal(t, "handler_route", got[0].Code())
	assert.Equal(t, "echo", h.state().Scene)
}

func TestHookErrorDoesNotAbortTransition(t *testing.T) {
	var got []string
	echo := scene.New("echo", scene.WithEnter(func(*scene.Context) error { return errors.New("enter failed") }))
	h := newHarness(t, []*scene.Scene{echo},
		scene.WithErrorHook(func(_ context.Context, err *scene.HandlerError) { got = append(got, err.Phase) }),
	)

	h.run(func(c *scene.Context) error { return c.Enter("echo") })

	assert.Equal(t, "echo", h.state().Scene)
	assert.Equal(t, []string{"enter"}, got)
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	var phases []string
	wiz := scene.NewWizard("wiz", []scene.Handler{
		scene.HandlerFunc(func(*scene.Context) error { panic("kaboom") }),
	})
	h := newHarness(t, []*scene.Scene{wiz},
		scene.WithErrorHook(func(_ context.Context, err *scene.HandlerError) { phases = append(phases, err.Phase) }),
	)
	h.run(func(c *scene.Context) error { return c.Enter("wiz") })

	assert.True(t, h.dispatch(message("a")))
	assert.True(t, h.dispatch(message("b")))
	assert.Equal(t, []string{"step", "step"}, phases)
}

func TestProgrammerErrorsSurface(t *testing.T) {
	echo := scene.New("echo", scene.WithRoutes(
		scene.Hears("unknown", scene.EnterHandler("missing")),
		scene.Hears("next", scene.NextHandler()),
	))
	h := newHarness(t, []*scene.Scene{echo})
	h.run(func(c *scene.Context) error { return c.Enter("echo") })

	_, err := h.stage.Dispatch(context.Background(), message("unknown"))
	var unknown *scene.UnknownSceneError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.Name)

	_, err = h.stage.Dispatch(context.Background(), message("next"))
	assert.ErrorIs(t, err, scene.ErrNotWizard)

	err = h.stage.Run(context.Background(), message(""), func(c *scene.Context) error { return c.Enter("missing") })
	assert.ErrorAs(t, err, &unknown)
}

func TestFallbackHandling(t *testing.T) {
	var fallback int
	echo := scene.New("echo", scene.WithRoutes(scene.Hears("ping", scene.ReplyHandler("pong"))))
	h := newHarness(t, []*scene.Scene{echo},
		scene.WithSender(scene.SenderFunc(func(context.Context, string, any, ...any) error { return nil })),
		scene.WithFallback(scene.MatchFunc(func(c *scene.Context) (bool, error) {
			fallback++
			return c.Text() == "global", nil
		})),
	)
	h.run(func(c *scene.Context) error { return c.Enter("echo") })

	assert.True(t, h.dispatch(message("ping")))
	assert.Zero(t, fallback)
	assert.True(t, h.dispatch(message("global")))
	assert.False(t, h.dispatch(message("other")))
	assert.Equal(t, 2, fallback)
}

func TestDispatchRequiresSession(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.stage.Dispatch(context.Background(), scene.Update{Text: "x", IsMessage: true})
	assert.ErrorIs(t, err, scene.ErrNoSession)
	assert.ErrorIs(t, h.stage.Run(context.Background(), scene.Update{}, func(*scene.Context) error { return nil }), scene.ErrNoSession)
}

func TestReplySinks(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	sink := func(prefix string) scene.Sender {
		return scene.SenderFunc(func(_ context.Context, sessionID string, what any, _ ...any) error {
			mu.Lock()
			defer mu.Unlock()
			sent = append(sent, prefix+":"+sessionID+":"+what.(string))
			return nil
		})
	}
	echo := scene.New("echo", scene.WithRoutes(scene.OnText(func(c *scene.Context) error { return c.Reply(c.Text()) })))

	t.Run("stage sender", func(t *testing.T) {
		sent = nil
		h := newHarness(t, []*scene.Scene{echo}, scene.WithDefaultScene("echo"), scene.WithSender(sink("stage")))
		h.dispatch(message("hi"))
		assert.Equal(t, []string{"stage:1:1:hi"}, sent)
	})

	t.Run("per update override", func(t *testing.T) {
		sent = nil
		h := newHarness(t, []*scene.Scene{scene.New("echo", scene.WithRoutes(scene.OnText(func(c *scene.Context) error { return c.Reply(c.Text()) })))},
			scene.WithDefaultScene("echo"), scene.WithSender(sink("stage")))
		ctx := scene.ContextWithSender(context.Background(), sink("update"))
		_, err := h.stage.Dispatch(ctx, message("yo"))
		require.NoError(t, err)
		assert.Equal(t, []string{"update:1:1:yo"}, sent)
	})

	t.Run("no sender", func(t *testing.T) {
		h := newHarness(t, nil)
		err := h.stage.Run(context.Background(), message(""), func(c *scene.Context) error { return c.Reply("x") })
		assert.ErrorIs(t, err, scene.ErrNoSender)
	})
}

func TestWizardStepOutOfRangeAtLoad(t *testing.T) {
	var leaves, steps int
	wiz := scene.NewWizard("wiz",
		[]scene.Handler{scene.HandlerFunc(func(*scene.Context) error { steps++; return nil })},
		scene.WithLeave(func(*scene.Context) error { leaves++; return nil }),
	)

	t.Run("past the end leaves", func(t *testing.T) {
		leaves, steps = 0, 0
		h := newHarness(t, []*scene.Scene{wiz})
		require.NoError(t, h.store.Set(context.Background(), sid, scene.State{Scene: "wiz", Step: 4, TouchedAt: h.clock.Now()}))

		assert.False(t, h.dispatch(message("x")))
		assert.False(t, h.state().Active())
		assert.Equal(t, 1, leaves)
		assert.Zero(t, steps)
	})

	t.Run("negative is clamped", func(t *testing.T) {
		leaves, steps = 0, 0
		h := newHarness(t, []*scene.Scene{wiz})
		require.NoError(t, h.store.Set(context.Background(), sid, scene.State{Scene: "wiz", Step: -2, TouchedAt: h.clock.Now()}))

		assert.True(t, h.dispatch(message("x")))
		assert.Equal(t, 1, steps)
		assert.Zero(t, h.state().Step)
	})
}

func TestSimpleSceneStepIsReset(t *testing.T) {
	h := newHarness(t, []*scene.Scene{scene.New("echo")})
	require.NoError(t, h.store.Set(context.Background(), sid, scene.State{Scene: "echo", Step: 3, TouchedAt: h.clock.Now()}))

	h.dispatch(message("x"))

	st := h.state()
	assert.Equal(t, "echo", st.Scene)
	assert.Zero(t, st.Step)
}

func TestSameSessionIsSerialized(t *testing.T) {
	counter := scene.HandlerFunc(func(c *scene.Context) error {
		n, _ := c.SessionData().Int64("n")
		time.Sleep(time.Millisecond)
		c.SetSessionValue("n", n+1)
		return nil
	})
	h := newHarness(t, nil, scene.WithFallback(counter))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.stage.Dispatch(context.Background(), message("tick"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, _ := h.state().Data.Int64("n")
	assert.EqualValues(t, 40, n)
}

func TestObserverEvents(t *testing.T) {
	wiz := scene.NewWizard("wiz", []scene.Handler{scene.NextHandler(), scene.NextHandler()})
	h := newHarness(t, []*scene.Scene{wiz})
	h.run(func(c *scene.Context) error { return c.Enter("wiz") })
	h.dispatch(message("1"))
	h.dispatch(message("2"))

	events := h.rec.Events()
	require.NotEmpty(t, events)
	for _, ev := range events {
		assert.Equal(t, sid, ev.SessionID)
		assert.False(t, ev.At.IsZero())
	}
	assert.Equal(t, []scene.EventKind{
		scene.EventEnter,
		scene.EventStep, scene.EventDispatch,
		scene.EventLeave, scene.EventDispatch,
	}, h.rec.Kinds(false))

	last := events[len(events)-1]
	assert.True(t, last.Handled)
	assert.Empty(t, last.Scene)
}

type fakeLocker struct {
	mu      sync.Mutex
	keys    []string
	unlocks int
	err     error
}

func (l *fakeLocker) Lock(_ context.Context, key string, _ time.Duration) (scene.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.unlocks++
		return nil
	}, nil
}

func TestDistributedLocker(t *testing.T) {
	locker := &fakeLocker{}
	h := newHarness(t, nil, scene.WithLocker(locker), scene.WithLockTTL(time.Second))

	h.dispatch(message("a"))
	h.dispatch(message("b"))
	assert.Equal(t, []string{sid, sid}, locker.keys)
	assert.Equal(t, 2, locker.unlocks)

	locker.err = errors.New("redis down")
	_, err := h.stage.Dispatch(context.Background(), message("c"))
	assert.ErrorIs(t, err, scene.ErrLockAcquire)
}

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) (scene.State, error) { return scene.State{}, f.err }
func (f failingStore) Set(context.Context, string, scene.State) error   { return f.err }

func TestStoreFailureIsReturned(t *testing.T) {
	down := errors.New("store down")
	reg := scene.MustRegistry(scene.New("echo"))
	stage, err := scene.NewStage(reg, scene.WithStore(failingStore{err: down}))
	require.NoError(t, err)

	_, err = stage.Dispatch(context.Background(), message("x"))
	assert.ErrorIs(t, err, down)
}

func TestCallbackActionRoute(t *testing.T) {
	wiz := scene.NewWizard("wiz", []scene.Handler{
		scene.NewRouter(
			scene.Action("next", scene.NextHandler()),
			scene.OnMessage(scene.ReplyHandler("Press Next button")),
		),
		scene.HandlerFunc(func(*scene.Context) error { return nil }),
	})
	var replies []any
	h := newHarness(t, []*scene.Scene{wiz},
		scene.WithSender(scene.SenderFunc(func(_ context.Context, _ string, what any, _ ...any) error {
			replies = append(replies, what)
			return nil
		})),
	)
	h.run(func(c *scene.Context) error { return c.Enter("wiz") })

	h.dispatch(message("hello"))
	assert.Equal(t, []any{"Press Next button"}, replies)
	assert.Zero(t, h.state().Step)

	h.dispatch(callback("next"))
	assert.Equal(t, 1, h.state().Step)
}

func TestNewStageValidation(t *testing.T) {
	_, err := scene.NewStage(nil)
	assert.Error(t, err)

	_, err = scene.NewStage(scene.MustRegistry(), scene.WithIdleTTL(-time.Second))
	assert.Error(t, err)

	var unknown *scene.UnknownSceneError
	_, err = scene.NewStage(scene.MustRegistry(), scene.WithDefaultScene("nope"))
	assert.ErrorAs(t, err, &unknown)

	reg := scene.MustRegistry(scene.New("a"))
	stage, err := scene.NewStage(reg, scene.WithIdleTTL(time.Minute), scene.WithDefaultScene("a"))
	require.NoError(t, err)
	assert.True(t, reg.Frozen())
	assert.Equal(t, time.Minute, stage.TTL())
	assert.Equal(t, "a", stage.DefaultScene())
	assert.ErrorIs(t, reg.Register(scene.New("b")), scene.ErrRegistryFrozen)
}
