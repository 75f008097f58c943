package middleware

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/logger"
	"github.com/m3rciful/gostage/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/gostage/core/telegram/helpers"
)

const loggedKey = "update_logged"

// updateKind names the update type the way rate limit exclusions do.
func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// LoggerMiddleware builds the logging context of the update and logs one
// sampled "update.received" line. It may wrap both the bot and single
// routes; the line is written once per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if done, _ := c.Get(loggedKey).(bool); done || !logger.ShouldSampleDebug() {
			return next(c)
		}
		c.Set(loggedKey, true)

		upd := c.Update()
		kind := updateKind(upd)
		attrs := []slog.Attr{
			slog.String("status", "ok"),
			slog.String("kind", kind),
		}
		if chat := c.Chat(); chat != nil {
			attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
		}
		if user := c.Sender(); user != nil {
			if user.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
			}
			if user.LanguageCode != "" {
				attrs = append(attrs, slog.String("lang", user.LanguageCode))
			}
		}
		switch kind {
		case "callback":
			key, payload := callbacks.Parse(upd.Callback)
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
			if payload != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
			}
		case "message":
			if t := c.Text(); t != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
			}
		}
		logger.LogEvent(ctx, nil, slog.LevelDebug, "update.received", attrs...)
		return next(c)
	}
}
