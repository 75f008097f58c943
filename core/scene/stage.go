package scene

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/m3rciful/gostage/core/logger"
)

const (
	component      = "scene"
	defaultLockTTL = 30 * time.Second
)

// Stage routes updates through scenes and manages per-session scene state.
type Stage struct {
	registry     *Registry
	store        Store
	sender       Sender
	ttl          time.Duration
	defaultScene string
	fallback     Handler
	locker       Locker
	lockTTL      time.Duration
	now          func() time.Time
	observer     Observer
	onError      func(ctx context.Context, err *HandlerError)
	locks        *sessionLocks
}

// StageOption configures a Stage.
type StageOption func(*Stage)

// WithStore sets the session store. The default is an in-memory store.
func WithStore(st Store) StageOption {
	return func(s *Stage) {
		if st != nil {
			s.store = st
		}
	}
}

// WithSender sets the default reply sink.
func WithSender(snd Sender) StageOption {
	return func(s *Stage) { s.sender = snd }
}

// WithIdleTTL sets the idle time after which scene state is discarded.
// Zero disables expiry.
func WithIdleTTL(ttl time.Duration) StageOption {
	return func(s *Stage) { s.ttl = ttl }
}

// WithDefaultScene sets the scene a never-seen session starts in.
func WithDefaultScene(name string) StageOption {
	return func(s *Stage) { s.defaultScene = name }
}

// WithFallback sets the global handler chain run when the active scene
// does not handle an update.
func WithFallback(h Handler) StageOption {
	return func(s *Stage) { s.fallback = h }
}

// WithLocker adds a distributed per-session lock on top of the local one.
func WithLocker(l Locker) StageOption {
	return func(s *Stage) { s.locker = l }
}

// WithLockTTL bounds how long a distributed lock is held.
func WithLockTTL(ttl time.Duration) StageOption {
	return func(s *Stage) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) StageOption {
	return func(s *Stage) {
		if now != nil {
			s.now = now
		}
	}
}

// WithObserver registers an event observer.
func WithObserver(o Observer) StageOption {
	return func(s *Stage) { s.observer = o }
}

// WithErrorHook is called for every absorbed handler failure after it is logged.
func WithErrorHook(fn func(ctx context.Context, err *HandlerError)) StageOption {
	return func(s *Stage) { s.onError = fn }
}

// NewStage builds a stage over reg and freezes the registry.
func NewStage(reg *Registry, opts ...StageOption) (*Stage, error) {
	if reg == nil {
		return nil, errors.New("scene: nil registry")
	}
	s := &Stage{
		registry: reg,
		store:    NewMemoryStore(),
		lockTTL:  defaultLockTTL,
		now:      time.Now,
		locks:    newSessionLocks(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.ttl < 0 {
		return nil, fmt.Errorf("scene: negative ttl %s", s.ttl)
	}
	if s.defaultScene != "" {
		if _, err := reg.Lookup(s.defaultScene); err != nil {
			return nil, err
		}
	}
	reg.Freeze()
	return s, nil
}

// Registry returns the frozen scene registry.
func (s *Stage) Registry() *Registry { return s.registry }

// TTL returns the stage-wide scene TTL.
func (s *Stage) TTL() time.Duration { return s.ttl }

// DefaultScene returns the configured default scene name.
func (s *Stage) DefaultScene() string { return s.defaultScene }

// Dispatch routes u through the session's active scene and the fallback
// chain. It reports false when nothing handled the update so the caller can
// continue with its own handlers.
func (s *Stage) Dispatch(ctx context.Context, u Update) (bool, error) {
	if u.SessionID == "" {
		return false, ErrNoSession
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var handled bool
	err := s.locks.with(ctx, u.SessionID, s.locker, s.lockTTL, func(ctx context.Context) error {
		start := s.now()
		c, err := s.begin(ctx, u, true)
		if err != nil {
			return err
		}
		var routeErr error
		handled, routeErr = s.route(c)
		s.touch(c)
		if err := s.commit(c); err != nil {
			return err
		}
		took := s.now().Sub(start)
		if logger.ShouldSampleDebug() {
			logger.Debug(c.ctx, component, "stage.dispatch",
				slog.String("status", logger.Status(routeErr)),
				slog.String("scene", c.state.Scene),
				slog.Int("step", c.state.Step),
				slog.String("route", c.route),
				slog.Bool("handled", handled),
				slog.Duration("duration", took),
			)
		}
		s.emit(c, Event{Kind: EventDispatch, Scene: c.state.Scene, Step: c.state.Step, Handled: handled, Duration: took})
		return routeErr
	})
	return handled, err
}

// Run executes fn with a session Context under the same locking and
// persistence cycle as Dispatch. It is meant for global handlers that live
// outside the stage, such as transport level commands entering a scene.
func (s *Stage) Run(ctx context.Context, u Update, fn func(c *Context) error) error {
	if u.SessionID == "" {
		return ErrNoSession
	}
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return s.locks.with(ctx, u.SessionID, s.locker, s.lockTTL, func(ctx context.Context) error {
		c, err := s.begin(ctx, u, false)
		if err != nil {
			return err
		}
		_, runErr := invoke(c, MatchFunc(func(c *Context) (bool, error) { return true, fn(c) }))
		s.touch(c)
		if err := s.commit(c); err != nil {
			return err
		}
		return runErr
	})
}

// begin loads the session and applies expiry, stale scene cleanup and,
// when withDefault is set, the default scene.
func (s *Stage) begin(ctx context.Context, u Update, withDefault bool) (*Context, error) {
	st, err := s.store.Get(ctx, u.SessionID)
	if err != nil {
		return nil, fmt.Errorf("scene: load session %s: %w", u.SessionID, err)
	}
	ctx = logger.WithSession(ctx, u.SessionID)
	sender := senderFrom(ctx)
	if sender == nil {
		sender = s.sender
	}
	c := &Context{ctx: ctx, stage: s, update: u, state: st, sender: sender}
	now := s.now()

	if st.Active() {
		if st.Expired(now, s.ttlFor(st.Scene)) {
			logger.Info(ctx, component, "scene.expire",
				slog.String("scene", st.Scene),
				slog.Int("step", st.Step),
				slog.Duration("idle", now.Sub(st.TouchedAt)),
			)
			c.state.clearScene()
			c.dirty = true
			s.emit(c, Event{Kind: EventExpire, Scene: st.Scene, Step: st.Step})
		} else if sc, err := s.registry.Lookup(st.Scene); err != nil {
			logger.Warn(ctx, component, "scene.stale",
				slog.String("scene", st.Scene),
				slog.String("err", err.Error()),
			)
			c.state.clearScene()
			c.dirty = true
			s.emit(c, Event{Kind: EventStale, Scene: st.Scene})
		} else if sc.IsWizard() && (st.Step < 0 || st.Step >= sc.StepCount()) {
			logger.Warn(ctx, component, "scene.step.out_of_range",
				slog.String("scene", st.Scene),
				slog.Int("step", st.Step),
				slog.Int("steps", sc.StepCount()),
			)
			if st.Step < 0 {
				c.state.Step = 0
				c.dirty = true
			} else if err := s.leave(c); err != nil {
				return nil, err
			}
		} else if !sc.IsWizard() && st.Step != 0 {
			c.state.Step = 0
			c.dirty = true
		}
	}

	if withDefault && s.defaultScene != "" && !c.state.Active() && !st.Touched() {
		if err := s.enter(c, s.defaultScene, nil, false); err != nil {
			return nil, err
		}
	}
	c.ctx = logger.WithScene(c.ctx, c.state.Scene)
	return c, nil
}

func (s *Stage) route(c *Context) (bool, error) {
	if c.state.Active() {
		sc, err := s.registry.Lookup(c.state.Scene)
		if err != nil {
			return false, err
		}
		name, step := sc.name, c.state.Step
		var phase string
		handled, err := invoke(c, MatchFunc(func(c *Context) (bool, error) {
			return sc.handle(c, &phase)
		}))
		if err != nil {
			if isProgrammerError(err) {
				return true, err
			}
			s.handlerFailed(c, &HandlerError{Scene: name, Phase: phase, Step: step, Err: err})
			return true, nil
		}
		if handled {
			return true, nil
		}
	}

	if s.fallback == nil {
		return false, nil
	}
	c.route = "fallback"
	handled, err := invoke(c, s.fallback)
	if err != nil {
		if isProgrammerError(err) {
			return true, err
		}
		s.handlerFailed(c, &HandlerError{Phase: "fallback", Err: err})
		return true, nil
	}
	return handled, nil
}

func (s *Stage) touch(c *Context) {
	if c.state.Active() {
		c.state.TouchedAt = s.now()
		c.dirty = true
	}
}

func (s *Stage) commit(c *Context) error {
	if !c.dirty {
		return nil
	}
	if err := s.store.Set(c.ctx, c.update.SessionID, c.state); err != nil {
		logger.Error(c.ctx, component, "scene.save.fail",
			slog.String("scene", c.state.Scene),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("scene: save session %s: %w", c.update.SessionID, err)
	}
	c.dirty = false
	return nil
}

func (s *Stage) enter(c *Context, name string, payload Values, hasPayload bool) error {
	target, err := s.registry.Lookup(name)
	if err != nil {
		return err
	}
	from := c.state.Scene
	if c.state.Active() {
		s.exit(c)
	}

	var p Values
	switch {
	case hasPayload:
		p = payload.Clone()
	case from == name && c.state.Scene == name:
		p = c.state.Payload
	}
	c.state.Scene = name
	c.state.Step = 0
	c.state.Payload = p
	c.state.TouchedAt = s.now()
	c.dirty = true

	logger.Debug(c.ctx, component, "scene.enter",
		slog.String("scene", name),
		slog.String("from", from),
		slog.Bool("wizard", target.IsWizard()),
	)
	s.emit(c, Event{Kind: EventEnter, Scene: name, From: from})

	if target.enter != nil {
		s.runHook(c, target, target.enter, "enter")
	}
	return nil
}

func (s *Stage) leave(c *Context) error {
	if !c.state.Active() {
		return nil
	}
	name := c.state.Scene
	s.exit(c)
	if c.state.Scene == name {
		c.state.clearScene()
		c.dirty = true
	}
	return nil
}

// exit runs the leave hook of the active scene and reports the transition
// without touching the state. It does nothing when called from a leave hook.
func (s *Stage) exit(c *Context) {
	if c.leaving {
		return
	}
	c.leaving = true
	defer func() { c.leaving = false }()
	name, step := c.state.Scene, c.state.Step
	logger.Debug(c.ctx, component, "scene.leave",
		slog.String("scene", name),
		slog.Int("step", step),
	)
	s.emit(c, Event{Kind: EventLeave, Scene: name, Step: step})
	sc, err := s.registry.Lookup(name)
	if err != nil || sc.leave == nil {
		return
	}
	s.runHook(c, sc, sc.leave, "leave")
}

func (s *Stage) next(c *Context) error {
	if !c.state.Active() {
		return ErrNotWizard
	}
	sc, err := s.registry.Lookup(c.state.Scene)
	if err != nil {
		return err
	}
	if !sc.IsWizard() {
		return ErrNotWizard
	}
	c.state.Step++
	c.dirty = true
	if c.state.Step >= sc.StepCount() {
		return s.leave(c)
	}
	logger.Debug(c.ctx, component, "scene.step",
		slog.String("scene", sc.name),
		slog.Int("step", c.state.Step),
	)
	s.emit(c, Event{Kind: EventStep, Scene: sc.name, Step: c.state.Step})
	return nil
}

// runHook calls an enter or leave hook; failures are logged, never returned.
func (s *Stage) runHook(c *Context, sc *Scene, h Handler, phase string) {
	step := c.state.Step
	if _, err := invoke(c, h); err != nil {
		s.handlerFailed(c, &HandlerError{Scene: sc.name, Phase: phase, Step: step, Err: err})
	}
}

func (s *Stage) handlerFailed(c *Context, herr *HandlerError) {
	logger.Error(c.ctx, component, "scene.handler.fail",
		slog.String("status", "fail"),
		slog.String("scene", herr.Scene),
		slog.String("phase", herr.Phase),
		slog.Int("step", herr.Step),
		slog.String("route", c.route),
		slog.String("err", logger.SanitizeLimit(herr.Err.Error(), 256)),
		slog.String("err_code", herr.Code()),
	)
	if s.onError != nil {
		s.onError(c.ctx, herr)
	}
}

func (s *Stage) ttlFor(name string) time.Duration {
	if sc, err := s.registry.Lookup(name); err == nil && sc.ttl > 0 {
		return sc.ttl
	}
	return s.ttl
}

func (s *Stage) emit(c *Context, ev Event) {
	if s.observer == nil {
		return
	}
	ev.SessionID = c.update.SessionID
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	s.observer.Observe(c.ctx, ev)
}

// invoke calls h and turns a panic into an error so the session lock and
// state stay consistent.
func invoke(c *Context, h Handler) (handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(c.ctx, component, "scene.panic",
				slog.Any("err", r),
				slog.String("stack", string(debug.Stack())),
			)
			handled, err = true, fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Handle(c)
}
