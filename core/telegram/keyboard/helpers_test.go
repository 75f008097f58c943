package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/telegram/callbacks"
)

func TestInlineButtonsNPerRow(t *testing.T) {
	buttons := []InlineBtn{
		{Text: "a", Unique: "pick", Data: "1"},
		{Text: "b", Unique: "pick", Data: "2"},
		{Text: "docs", URL: "https://core.telegram.org/bots"},
	}
	m := InlineButtonsNPerRow(buttons, 2)
	require.Len(t, m.InlineKeyboard, 2)
	assert.Len(t, m.InlineKeyboard[0], 2)
	assert.Equal(t, callbacks.Data("pick", "2"), m.InlineKeyboard[0][1].Data)
	assert.Equal(t, "https://core.telegram.org/bots", m.InlineKeyboard[1][0].URL)
	assert.Empty(t, m.InlineKeyboard[1][0].Data)

	assert.Len(t, InlineButtonsNPerRow(buttons, 0).InlineKeyboard, 3)
	assert.Empty(t, InlineButtons().InlineKeyboard)
}

func TestCancelMarkup(t *testing.T) {
	m := SingleCancelMarkup("wizard")
	require.Len(t, m.InlineKeyboard, 1)
	btn := m.InlineKeyboard[0][0]
	assert.Equal(t, defaultCancelButtonText, btn.Text)

	key, payload := callbacks.Parse(&tele.Callback{Data: btn.Data})
	assert.Equal(t, "wizard", key)
	assert.Equal(t, "cancel", payload)

	custom := CancelButton("wizard", "abort", "Stop")
	assert.Equal(t, "Stop", custom.Text)
	assert.Equal(t, "abort", custom.Data)
}

func TestReplyButtons(t *testing.T) {
	m := ReplyButtons([]string{"yes", "no"}, []string{"later"})
	require.Len(t, m.ReplyKeyboard, 2)
	assert.Equal(t, "no", m.ReplyKeyboard[0][1].Text)
	assert.True(t, m.ResizeKeyboard)
	assert.True(t, RemoveKeyboard().RemoveKeyboard)
	assert.True(t, ForceReply().ForceReply)
}
