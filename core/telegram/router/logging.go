package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/logger"
	tghelpers "github.com/m3rciful/gostage/core/telegram/helpers"
	"github.com/m3rciful/gostage/core/telegram/middleware"
)

// summary emits one "handler.handled" line per routed update.
type summary struct {
	name  string
	start time.Time
	attrs []slog.Attr
}

func summarize(name string, start time.Time, attrs ...slog.Attr) summary {
	return summary{name: name, start: start, attrs: attrs}
}

// run calls fn under the handler name and logs its outcome.
func (s summary) run(c tele.Context, fn func() error) error {
	tghelpers.WithHandler(c, s.name)
	err := fn()
	s.emit(c, false, err)
	return err
}

// skip logs an update that no handler took.
func (s summary) skip(c tele.Context) {
	s.emit(c, true, nil)
}

func (s summary) emit(c tele.Context, skipped bool, err error) {
	ctx := tghelpers.WithHandler(c, s.name)
	msgs, kb := middleware.GetCounters(c)

	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	status := outcome
	if skipped {
		status = "skip"
	}

	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", s.name),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", logger.RoundMS(time.Since(s.start))),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.Component("tg"), slog.LevelInfo, "handler.handled", append(attrs, s.attrs...)...)
}

// normalizeHandlerName turns a command key or callback unique into a log label.
func normalizeHandlerName(name string) string {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	if name == "" {
		return "unknown"
	}
	return strings.ReplaceAll(name, " ", "_")
}

// deriveErrorCode prefers a Code() method anywhere in the chain, then the
// type name of the outermost error.
func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
