package router

import (
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/scene"
	tg "github.com/m3rciful/gostage/core/telegram"
	"github.com/m3rciful/gostage/core/telegram/middleware"
	"github.com/m3rciful/gostage/core/telegram/state"
)

// TextOptions controls fallback behaviour for message updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
	// UnknownMessage handles other messages nothing took. When nil they get
	// the registry text fallback, then UnknownText.
	UnknownMessage tele.HandlerFunc
}

// messageEvents are the non-text message endpoints offered to the stage.
// OnMedia catches photos, audio, voice, video, video notes, animations and
// stickers that have no endpoint of their own.
var messageEvents = []string{
	tele.OnMedia,
	tele.OnContact,
	tele.OnLocation,
	tele.OnVenue,
	tele.OnDice,
}

type textRouter struct {
	stage *scene.Stage
	reg   *tg.Registry
	opts  TextOptions
}

// TextRoutes builds handlers for text, document and other message updates.
// The active scene of the session sees the update first. Text then goes to
// registry commands (including aliases) when it starts with a slash, then to
// the registry fallback and UnknownText.
func TextRoutes(st *scene.Stage, reg *tg.Registry, opts TextOptions) []tg.Route {
	r := textRouter{stage: st, reg: reg, opts: opts}
	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}
	routes := []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(r.text)},
		{Endpoint: tele.OnDocument, Handler: wrap(r.document)},
	}
	for _, ev := range messageEvents {
		routes = append(routes, tg.Route{Endpoint: ev, Handler: wrap(r.message)})
	}
	return routes
}

func (r textRouter) text(c tele.Context) error {
	start := time.Now()
	if handled, err := state.Offer(r.stage, c); handled || err != nil {
		return summarize("scene", start).run(c, func() error { return err })
	}
	if h, name := r.command(c.Text()); h != nil {
		return summarize(name, start).run(c, func() error { return h(c) })
	}
	if fb := r.reg.TextFallback(); fb != nil {
		return summarize("fallback", start).run(c, func() error { return fb(c) })
	}
	if r.opts.UnknownText != nil {
		return summarize("unknown_text", start).run(c, func() error { return r.opts.UnknownText(c) })
	}
	summarize("unknown_text", start).skip(c)
	return nil
}

// command resolves "/name" text that telebot did not route to a command
// endpoint itself, such as aliases. Text without a slash is never a command.
func (r textRouter) command(text string) (tele.HandlerFunc, string) {
	if !strings.HasPrefix(text, "/") {
		return nil, ""
	}
	key, cmd, ok := r.reg.LookupCommand(text)
	if !ok {
		return nil, ""
	}
	return r.reg.CommandHandler(r.stage, cmd), normalizeHandlerName(key)
}

func (r textRouter) document(c tele.Context) error {
	start := time.Now()
	if handled, err := state.Offer(r.stage, c); handled || err != nil {
		return summarize("scene_document", start).run(c, func() error { return err })
	}
	s := summarize("unexpected_document", start, slog.String("reason", "no_scene"))
	if r.opts.UnknownDocument == nil {
		s.skip(c)
		return nil
	}
	return s.run(c, func() error { return r.opts.UnknownDocument(c) })
}

func (r textRouter) message(c tele.Context) error {
	start := time.Now()
	if handled, err := state.Offer(r.stage, c); handled || err != nil {
		return summarize("scene_message", start).run(c, func() error { return err })
	}
	fb := r.opts.UnknownMessage
	if fb == nil {
		fb = r.reg.TextFallback()
	}
	if fb == nil {
		fb = r.opts.UnknownText
	}
	s := summarize("unknown_message", start, slog.String("reason", "no_scene"))
	if fb == nil {
		s.skip(c)
		return nil
	}
	return s.run(c, func() error { return fb(c) })
}
