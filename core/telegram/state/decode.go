package state

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/scene"
	"github.com/m3rciful/gostage/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/gostage/core/telegram/helpers"
)

// Decode normalizes a telebot update into a scene.Update keyed by
// "<userID>:<chatID>".
func Decode(c tele.Context) scene.Update {
	upd := c.Update()
	userID, chatID := tghelpers.IDs(c)
	u := scene.Update{
		ID:        upd.ID,
		SessionID: tghelpers.SessionID(c),
		ChatID:    chatID,
		UserID:    userID,
		Raw:       c,
	}

	if m := upd.Message; m != nil {
		u.IsMessage = true
		u.Text = m.Text
		if u.Text == "" {
			u.Text = m.Caption
		}
		u.Command, u.Args = parseCommand(m.Text)
	}
	if cb := upd.Callback; cb != nil {
		u.IsCallback = true
		u.CallbackData, u.CallbackPayload = callbacks.Parse(cb)
	}
	return u
}

// parseCommand extracts "cmd" and "args" from "/cmd@bot args".
func parseCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", ""
	}
	head, args, _ := strings.Cut(text[1:], " ")
	if nl := strings.IndexByte(head, '\n'); nl >= 0 {
		args = head[nl+1:] + " " + args
		head = head[:nl]
	}
	name, _, _ := strings.Cut(head, "@")
	if name == "" {
		return "", ""
	}
	return strings.ToLower(name), strings.TrimSpace(args)
}
