package helpers

import (
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/logger"
	"github.com/m3rciful/gostage/core/telegram/sender"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes helper sends through d. nil restores direct calls.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

// queueKey keeps sends of one session, or else one chat, on one worker.
func queueKey(c tele.Context) string {
	if sid := SessionID(c); sid != "" {
		return sid
	}
	if chat := c.Chat(); chat != nil {
		return strconv.FormatInt(chat.ID, 10)
	}
	return ""
}

// deliver queues call on the dispatcher, or runs it inline when there is
// none or the queue cannot take it.
func deliver(c tele.Context, action, endpoint string, call func() error) error {
	d := dispatcher.Load()
	if d == nil {
		return call()
	}
	ctx := BuildContext(c)
	err := d.Enqueue(ctx, queueKey(c), action, endpoint, call)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
		return call()
	}
	return err
}

// Send sends what with telebot options to the current recipient.
func Send(c tele.Context, what any, opts ...any) error {
	return deliver(c, "send", "sendMessage", func() error { return c.Send(what, opts...) })
}

// SendText sends plain text with no parse mode.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	args := make([]any, 0, 1)
	if len(opts) > 0 && opts[0] != nil {
		args = append(args, opts[0])
	}
	return deliver(c, "send.text", "sendMessage", func() error { return c.Send(text, args...) })
}

// Respond answers the pending callback query; a no-op for other updates.
func Respond(c tele.Context, resp ...*tele.CallbackResponse) error {
	if c.Callback() == nil {
		return nil
	}
	return deliver(c, "callback.answer", "answerCallbackQuery", func() error { return c.Respond(resp...) })
}
