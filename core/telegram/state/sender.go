package state

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/scene"
	tghelpers "github.com/m3rciful/gostage/core/telegram/helpers"
)

// NewSender returns a scene.Sender replying to the chat of c. Replies go
// through the outbound dispatcher when one is configured. Options are
// passed to telebot untouched, so *tele.SendOptions, *tele.ReplyMarkup and
// tele.ParseMode all work.
func NewSender(c tele.Context) scene.Sender {
	return scene.SenderFunc(func(_ context.Context, _ string, what any, opts ...any) error {
		return tghelpers.Send(c, what, opts...)
	})
}
