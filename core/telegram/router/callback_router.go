package router

import (
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/scene"
	tg "github.com/m3rciful/gostage/core/telegram"
	"github.com/m3rciful/gostage/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/gostage/core/telegram/helpers"
	"github.com/m3rciful/gostage/core/telegram/middleware"
	"github.com/m3rciful/gostage/core/telegram/state"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute offers callbacks to the active scene first and routes the
// rest by unique key through the registry. Registry handlers get the query
// answered before they run.
func CallbackRoute(st *scene.Stage, reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		start := time.Now()
		key, _ := callbacks.Parse(c.Callback())
		cbKey := slog.String("cb_key", key)

		if handled, err := state.Offer(st, c); handled || err != nil {
			return summarize("scene", start, cbKey).run(c, func() error { return err })
		}

		name := "callback." + normalizeHandlerName(key)
		if h, ok := reg.GetCallback(key); ok {
			_ = tghelpers.Respond(c)
			return summarize(name, start, cbKey).run(c, func() error { return h(c) })
		}

		notFound := reg.CallbackNotFound()
		if notFound == nil {
			notFound = opts.NotFound
		}
		if notFound == nil {
			notFound = func(c tele.Context) error { return tghelpers.Respond(c) }
		}
		return summarize(name, start, cbKey, slog.String("reason", "not_found")).run(c, func() error {
			return notFound(c)
		})
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
