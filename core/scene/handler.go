package scene

import (
	"regexp"
	"strings"
)

// Handler processes an update and reports whether it consumed it.
type Handler interface {
	Handle(c *Context) (handled bool, err error)
}

// HandlerFunc is a handler that always consumes the update.
type HandlerFunc func(c *Context) error

// Handle calls f and marks the update as handled.
func (f HandlerFunc) Handle(c *Context) (bool, error) {
	return true, f(c)
}

// MatchFunc is a handler that decides itself whether the update was consumed.
type MatchFunc func(c *Context) (bool, error)

// Handle calls f.
func (f MatchFunc) Handle(c *Context) (bool, error) {
	return f(c)
}

// Predicate selects updates for a route.
type Predicate func(c *Context) bool

// Route binds a predicate to a handler.
type Route struct {
	Name    string
	Match   Predicate
	Handler Handler
}

func (r Route) valid() bool {
	return r.Handler != nil
}

// Hears matches messages whose text equals text exactly.
func Hears(text string, h HandlerFunc) Route {
	return Route{
		Name:    "hears:" + text,
		Match:   func(c *Context) bool { return c.update.IsMessage && c.update.Text == text },
		Handler: h,
	}
}

// HearsRegexp matches message text against re.
func HearsRegexp(re *regexp.Regexp, h HandlerFunc) Route {
	return Route{
		Name:    "hears:" + re.String(),
		Match:   func(c *Context) bool { return c.update.IsMessage && re.MatchString(c.update.Text) },
		Handler: h,
	}
}

// Command matches the bot command name, with or without the leading slash.
func Command(name string, h HandlerFunc) Route {
	name = strings.ToLower(strings.TrimPrefix(name, "/"))
	return Route{
		Name:    "command:" + name,
		Match:   func(c *Context) bool { return strings.EqualFold(c.update.Command, name) },
		Handler: h,
	}
}

// Action matches callback queries carrying the given key.
func Action(data string, h HandlerFunc) Route {
	return Route{
		Name:    "action:" + data,
		Match:   func(c *Context) bool { return c.update.IsCallback && c.update.CallbackData == data },
		Handler: h,
	}
}

// OnText matches any message with text, commands included.
func OnText(h HandlerFunc) Route {
	return Route{
		Name:    "on:text",
		Match:   func(c *Context) bool { return c.update.IsMessage && c.update.Text != "" },
		Handler: h,
	}
}

// OnMessage matches any message.
func OnMessage(h HandlerFunc) Route {
	return Route{
		Name:    "on:message",
		Match:   func(c *Context) bool { return c.update.IsMessage },
		Handler: h,
	}
}

// OnCallback matches any callback query.
func OnCallback(h HandlerFunc) Route {
	return Route{
		Name:    "on:callback",
		Match:   func(c *Context) bool { return c.update.IsCallback },
		Handler: h,
	}
}

// On matches updates selected by pred.
func On(name string, pred Predicate, h HandlerFunc) Route {
	return Route{Name: name, Match: pred, Handler: h}
}

// Use matches every update. The handler's own handled flag is honoured,
// so a MatchFunc can let updates fall through.
func Use(h Handler) Route {
	return Route{Name: "use", Handler: h}
}

// Router runs its routes in registration order until one handles the update.
type Router struct {
	routes []Route
}

// NewRouter builds a router; routes without a handler are dropped.
func NewRouter(routes ...Route) *Router {
	r := &Router{routes: make([]Route, 0, len(routes))}
	for _, rt := range routes {
		if rt.valid() {
			r.routes = append(r.routes, rt)
		}
	}
	return r
}

// Len returns the number of routes.
func (r *Router) Len() int {
	if r == nil {
		return 0
	}
	return len(r.routes)
}

// Handle implements Handler.
func (r *Router) Handle(c *Context) (bool, error) {
	if r == nil {
		return false, nil
	}
	for _, rt := range r.routes {
		if rt.Match != nil && !rt.Match(c) {
			continue
		}
		c.route = rt.Name
		handled, err := rt.Handler.Handle(c)
		if handled || err != nil {
			return true, err
		}
	}
	return false, nil
}

// EnterHandler returns a handler that enters the named scene.
func EnterHandler(name string, payload ...Values) HandlerFunc {
	return func(c *Context) error { return c.Enter(name, payload...) }
}

// LeaveHandler returns a handler that leaves the active scene.
func LeaveHandler() HandlerFunc {
	return func(c *Context) error { return c.Leave() }
}

// ReenterHandler returns a handler that re-enters the active scene.
func ReenterHandler() HandlerFunc {
	return func(c *Context) error { return c.Reenter() }
}

// NextHandler returns a handler that advances the wizard cursor.
func NextHandler() HandlerFunc {
	return func(c *Context) error { return c.Next() }
}

// ReplyHandler returns a handler that sends a fixed reply.
func ReplyHandler(what any, opts ...any) HandlerFunc {
	return func(c *Context) error { return c.Reply(what, opts...) }
}
