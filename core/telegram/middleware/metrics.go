package middleware

import tele "gopkg.in/telebot.v4"

const (
	messagesKey = "messages"
	keyboardKey = "kb"
)

// replyCounter wraps tele.Context to count the replies of one update and
// whether any of them carried a keyboard. Scene replies reach telebot via
// Send, so they are counted too.
type replyCounter struct{ tele.Context }

func (r replyCounter) count(err error, opts []any) error {
	if err != nil {
		return err
	}
	n, _ := r.Get(messagesKey).(int)
	r.Set(messagesKey, n+1)
	if hasKeyboard(opts) {
		r.Set(keyboardKey, true)
	}
	return nil
}

func hasKeyboard(opts []any) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		case tele.Option:
			if v == tele.RemoveKeyboard {
				return true
			}
		}
	}
	return false
}

// Send counts successful sends.
func (r replyCounter) Send(what any, opts ...any) error {
	return r.count(r.Context.Send(what, opts...), opts)
}

// Reply counts successful replies.
func (r replyCounter) Reply(what any, opts ...any) error {
	return r.count(r.Context.Reply(what, opts...), opts)
}

// Edit counts successful edits.
func (r replyCounter) Edit(what any, opts ...any) error {
	return r.count(r.Context.Edit(what, opts...), opts)
}

// EditOrSend counts successful edits or sends.
func (r replyCounter) EditOrSend(what any, opts ...any) error {
	return r.count(r.Context.EditOrSend(what, opts...), opts)
}

// EditOrReply counts successful edits or replies.
func (r replyCounter) EditOrReply(what any, opts ...any) error {
	return r.count(r.Context.EditOrReply(what, opts...), opts)
}

// MessageMetricsMiddleware counts replies per update for the handler
// summary logged by the router.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, wrapped := c.(replyCounter); wrapped {
			return next(c)
		}
		c.Set(messagesKey, 0)
		c.Set(keyboardKey, false)
		return next(replyCounter{Context: c})
	}
}

// GetCounters reads the reply count and keyboard flag of the update in c.
func GetCounters(c tele.Context) (int, bool) {
	msgs, _ := c.Get(messagesKey).(int)
	kb, _ := c.Get(keyboardKey).(bool)
	return msgs, kb
}
