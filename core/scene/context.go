package scene

import (
	"context"
)

// Sender delivers replies for a session. Payloads are opaque to the stage.
type Sender interface {
	Send(ctx context.Context, sessionID string, what any, opts ...any) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, sessionID string, what any, opts ...any) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, sessionID string, what any, opts ...any) error {
	return f(ctx, sessionID, what, opts...)
}

type senderKey struct{}

// ContextWithSender overrides the stage sender for one dispatch.
func ContextWithSender(ctx context.Context, s Sender) context.Context {
	if s == nil {
		return ctx
	}
	return context.WithValue(ctx, senderKey{}, s)
}

func senderFrom(ctx context.Context) Sender {
	if s, ok := ctx.Value(senderKey{}).(Sender); ok {
		return s
	}
	return nil
}

// Context is the per-update view handed to handlers. It must not be
// retained after the handler returns.
type Context struct {
	ctx    context.Context
	stage  *Stage
	update Update
	state  State
	sender Sender
	dirty  bool
	route  string
	// leaving is set while a leave hook runs so transitions made by the
	// hook do not run it again.
	leaving bool
}

// Context returns the request context.
func (c *Context) Context() context.Context { return c.ctx }

// Update returns the normalized update.
func (c *Context) Update() Update { return c.update }

// SessionID returns the session the update belongs to.
func (c *Context) SessionID() string { return c.update.SessionID }

// Text returns the update text.
func (c *Context) Text() string { return c.update.Text }

// Scene returns the active scene name, empty when none.
func (c *Context) Scene() string { return c.state.Scene }

// Step returns the wizard cursor.
func (c *Context) Step() int { return c.state.Step }

// State returns a copy of the session state.
func (c *Context) State() State { return c.state.Clone() }

// Get reads a scene-local value.
func (c *Context) Get(key string) (any, bool) { return c.state.Payload.Get(key) }

// Payload returns the scene-local values. Use Set to modify them.
func (c *Context) Payload() Values { return c.state.Payload }

// Set stores a scene-local value. It is dropped when the scene is left.
func (c *Context) Set(key string, val any) {
	if c.state.Payload == nil {
		c.state.Payload = make(Values)
	}
	c.state.Payload[key] = val
	c.dirty = true
}

// Delete removes a scene-local value.
func (c *Context) Delete(key string) {
	if _, ok := c.state.Payload[key]; ok {
		delete(c.state.Payload, key)
		c.dirty = true
	}
}

// SessionValue reads a session-wide value.
func (c *Context) SessionValue(key string) (any, bool) { return c.state.Data.Get(key) }

// SessionData returns the session-wide values. Use SetSessionValue to modify them.
func (c *Context) SessionData() Values { return c.state.Data }

// SetSessionValue stores a session-wide value that survives scene changes.
func (c *Context) SetSessionValue(key string, val any) {
	if c.state.Data == nil {
		c.state.Data = make(Values)
	}
	c.state.Data[key] = val
	c.dirty = true
}

// Enter switches the session to the named scene. An optional payload
// replaces the scene-local values.
func (c *Context) Enter(name string, payload ...Values) error {
	var p Values
	if len(payload) > 0 {
		p = payload[0]
	}
	return c.stage.enter(c, name, p, len(payload) > 0)
}

// Reenter leaves and enters the active scene again, keeping its payload.
func (c *Context) Reenter() error {
	if !c.state.Active() {
		return nil
	}
	return c.stage.enter(c, c.state.Scene, nil, false)
}

// Leave exits the active scene. It is a no-op when no scene is active.
func (c *Context) Leave() error {
	return c.stage.leave(c)
}

// Next advances the wizard cursor and leaves the scene after the last step.
func (c *Context) Next() error {
	return c.stage.next(c)
}

// Reply sends a message to the session through the configured Sender.
func (c *Context) Reply(what any, opts ...any) error {
	if c.sender == nil {
		return ErrNoSender
	}
	return c.sender.Send(c.ctx, c.update.SessionID, what, opts...)
}
