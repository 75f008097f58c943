package scene

import (
	"strings"
	"time"
)

// Scene is a named conversational mode. It is immutable after New returns.
type Scene struct {
	name   string
	enter  Handler
	leave  Handler
	router *Router
	steps  []Handler
	ttl    time.Duration
}

// Option configures a Scene during construction.
type Option func(*Scene)

// WithEnter sets the hook run after the scene is entered.
func WithEnter(h HandlerFunc) Option {
	return func(s *Scene) { s.enter = h }
}

// WithLeave sets the hook run before the scene is left.
func WithLeave(h HandlerFunc) Option {
	return func(s *Scene) { s.leave = h }
}

// WithRoutes appends in-scene routes. They run before the wizard step.
func WithRoutes(routes ...Route) Option {
	return func(s *Scene) {
		for _, rt := range routes {
			if rt.valid() {
				s.router.routes = append(s.router.routes, rt)
			}
		}
	}
}

// WithTTL overrides the stage TTL for this scene.
func WithTTL(ttl time.Duration) Option {
	return func(s *Scene) { s.ttl = ttl }
}

// WithSteps turns the scene into a wizard with the given ordered steps.
func WithSteps(steps ...Handler) Option {
	return func(s *Scene) {
		for _, st := range steps {
			if st != nil {
				s.steps = append(s.steps, st)
			}
		}
	}
}

// New builds a simple scene.
func New(name string, opts ...Option) *Scene {
	s := &Scene{
		name:   strings.TrimSpace(name),
		router: NewRouter(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// NewWizard builds a scene whose updates are handled by ordered steps.
func NewWizard(name string, steps []Handler, opts ...Option) *Scene {
	return New(name, append([]Option{WithSteps(steps...)}, opts...)...)
}

// Name returns the unique scene name.
func (s *Scene) Name() string { return s.name }

// StepCount returns the number of wizard steps, zero for simple scenes.
func (s *Scene) StepCount() int { return len(s.steps) }

// IsWizard reports whether the scene has steps.
func (s *Scene) IsWizard() bool { return len(s.steps) > 0 }

// TTL returns the scene TTL override, zero when the stage TTL applies.
func (s *Scene) TTL() time.Duration { return s.ttl }

// handle routes an update through scene routes, then the current step.
// phase tracks the part that is running so a recovered panic can be attributed.
func (s *Scene) handle(c *Context, phase *string) (bool, error) {
	*phase = "route"
	handled, err := s.router.Handle(c)
	if handled || err != nil {
		return true, err
	}
	if !s.IsWizard() {
		return false, nil
	}
	step := c.state.Step
	if step < 0 || step >= len(s.steps) {
		return false, nil
	}
	*phase = "step"
	c.route = "step"
	handled, err = s.steps[step].Handle(c)
	return handled || err != nil, err
}
