package helpers

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/logger"
)

const (
	contextKey = "stage.log_ctx"
	// RIDKey holds the request id of the update on tele.Context.
	RIDKey = "rid"
)

// BuildContext returns the logging context of the update in c: rid,
// update/user/chat ids and the session key, scoped to the "tg" component.
// It is built once per update and cached on c.
func BuildContext(c tele.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if ctx, ok := c.Get(contextKey).(context.Context); ok {
		return ctx
	}

	upd := c.Update()
	userID, chatID := IDs(c)
	rid, _ := c.Get(RIDKey).(string)
	if rid == "" {
		rid = logger.BuildRID(upd.ID, chatID, userID)
		c.Set(RIDKey, rid)
	}

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
	if sid := SessionID(c); sid != "" {
		ctx = logger.WithSession(ctx, sid)
	}
	if lg := logger.Component("tg"); lg != nil {
		ctx = logger.WithLogger(ctx, lg)
	}
	c.Set(contextKey, ctx)
	return ctx
}

// WithHandler tags the cached context of c with the handler serving it.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" || c == nil {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	c.Set(contextKey, ctx)
	return ctx
}
