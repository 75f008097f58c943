package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/scene"
	"github.com/m3rciful/gostage/core/telegram/callbacks"
	"github.com/m3rciful/gostage/core/telegram/teletest"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text, cmd, args string
	}{
		{text: "/start", cmd: "start"},
		{text: "/Echo hello world", cmd: "echo", args: "hello world"},
		{text: "/next@stage_bot", cmd: "next"},
		{text: "/next@other_bot go", cmd: "next", args: "go"},
		{text: "/", cmd: ""},
		{text: "hello /start", cmd: ""},
		{text: "/cmd\nline two", cmd: "cmd", args: "line two"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cmd, args := parseCommand(tt.text)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestDecode(t *testing.T) {
	bot, _ := teletest.NewBot(t)

	u := Decode(bot.NewContext(teletest.Message(7, 42, 99, "/greeter now")))
	assert.Equal(t, "42:99", u.SessionID)
	assert.Equal(t, 7, u.ID)
	assert.EqualValues(t, 42, u.UserID)
	assert.EqualValues(t, 99, u.ChatID)
	assert.True(t, u.IsMessage)
	assert.False(t, u.IsCallback)
	assert.Equal(t, "greeter", u.Command)
	assert.Equal(t, "now", u.Args)
	assert.Equal(t, "/greeter now", u.Text)

	u = Decode(bot.NewContext(teletest.Callback(8, 42, 99, callbacks.Data("pick", "3"))))
	assert.Equal(t, "42:99", u.SessionID)
	assert.True(t, u.IsCallback)
	assert.False(t, u.IsMessage)
	assert.Equal(t, "pick", u.CallbackData)
	assert.Equal(t, "3", u.CallbackPayload)
	assert.Empty(t, u.Text)

	caption := teletest.Message(9, 1, 2, "")
	caption.Message.Caption = "a photo"
	assert.Equal(t, "a photo", Decode(bot.NewContext(caption)).Text)

	inline := Decode(bot.NewContext(tele.Update{ID: 10, Query: &tele.Query{Sender: &tele.User{ID: 1}}}))
	assert.Empty(t, inline.SessionID)
}

type harness struct {
	bot   *tele.Bot
	api   *teletest.API
	stage *scene.Stage
	next  int
}

func newHarness(t *testing.T, scenes ...*scene.Scene) *harness {
	t.Helper()
	bot, api := teletest.NewBot(t)
	st, err := scene.NewStage(scene.MustRegistry(scenes...))
	require.NoError(t, err)

	bot.Use(Middleware(st))
	bot.Handle("/greeter", EnterHandler(st, "greeter"))
	bot.Handle("/quit", LeaveHandler(st))
	bot.Handle(tele.OnText, func(c tele.Context) error { return c.Send("fallback") })
	bot.Handle(tele.OnCallback, func(c tele.Context) error { return c.Send("unknown action") })
	return &harness{bot: bot, api: api, stage: st}
}

func (h *harness) text(s string) {
	h.next++
	h.bot.ProcessUpdate(teletest.Message(h.next, 5, 6, s))
}

func (h *harness) press(data string) {
	h.next++
	h.bot.ProcessUpdate(teletest.Callback(h.next, 5, 6, data))
}

func greeter() *scene.Scene {
	return scene.New("greeter",
		scene.WithEnter(scene.HandlerFunc(func(c *scene.Context) error { return c.Reply("Hi") })),
		scene.WithLeave(scene.HandlerFunc(func(c *scene.Context) error { return c.Reply("Bye") })),
		scene.WithRoutes(
			scene.Command("back", scene.LeaveHandler()),
			scene.Action("wave", func(c *scene.Context) error { return c.Reply("waved") }),
			scene.Hears("hi", func(c *scene.Context) error { return c.Reply("Hello again") }),
		),
	)
}

func TestMiddlewareRoutesActiveScene(t *testing.T) {
	h := newHarness(t, greeter())

	h.text("hi")
	assert.Equal(t, []string{"fallback"}, h.api.Texts(), "no scene yet")

	h.api.Reset()
	h.text("/greeter")
	h.text("hi")
	h.text("/back")
	h.text("hi")
	assert.Equal(t, []string{"Hi", "Hello again", "Bye", "fallback"}, h.api.Texts())
}

func TestMiddlewareAnswersHandledCallbacks(t *testing.T) {
	h := newHarness(t, greeter())
	h.text("/greeter")
	h.api.Reset()

	h.press(callbacks.Data("wave"))
	assert.Equal(t, []string{"waved"}, h.api.Texts())
	assert.Len(t, h.api.Method("answerCallbackQuery"), 1)

	h.api.Reset()
	h.press("other")
	assert.Equal(t, []string{"unknown action"}, h.api.Texts())
}

func TestLeaveHandler(t *testing.T) {
	h := newHarness(t, greeter())
	h.text("/greeter")
	h.text("/quit")
	h.text("hi")
	assert.Equal(t, []string{"Hi", "Bye", "fallback"}, h.api.Texts())
}

func TestOfferOncePerUpdate(t *testing.T) {
	h := newHarness(t, greeter())
	h.text("/greeter")

	c := h.bot.NewContext(teletest.Message(50, 5, 6, "hi"))
	handled, err := Offer(h.stage, c)
	require.NoError(t, err)
	assert.True(t, handled)

	handled, err = Offer(h.stage, c)
	require.NoError(t, err)
	assert.False(t, handled)

	handled, err = Offer(nil, c)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestRunHandlerRequiresSession(t *testing.T) {
	h := newHarness(t, greeter())
	c := h.bot.NewContext(tele.Update{ID: 1, Query: &tele.Query{Sender: &tele.User{ID: 1}}})
	assert.ErrorIs(t, EnterHandler(h.stage, "greeter")(c), scene.ErrNoSession)

	c = h.bot.NewContext(teletest.Message(2, 5, 6, "/x"))
	var unknown *scene.UnknownSceneError
	assert.ErrorAs(t, EnterHandler(h.stage, "missing")(c), &unknown)
}
