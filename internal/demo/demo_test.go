package demo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/bootstrap"
	coreconfig "github.com/m3rciful/gostage/core/config"
	"github.com/m3rciful/gostage/core/scene"
	"github.com/m3rciful/gostage/core/scene/scenetest"
	coretelegram "github.com/m3rciful/gostage/core/telegram"
	"github.com/m3rciful/gostage/core/telegram/callbacks"
	"github.com/m3rciful/gostage/core/telegram/teletest"
)

const sessionID = "5:6"

type bot struct {
	t     *testing.T
	app   *App
	bot   *tele.Bot
	api   *teletest.API
	clock *scenetest.Clock
	next  int
}

func options(t *testing.T) bootstrap.Options {
	t.Helper()
	cfg := &coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "123:test"}}
	require.NoError(t, coreconfig.Normalize(cfg))
	return bootstrap.Options{Config: cfg, LoggerInit: func(*coreconfig.Config) error { return nil }}
}

func start(t *testing.T, build func(context.Context, bootstrap.Options, ...scene.StageOption) (*App, error)) *bot {
	t.Helper()
	clock := scenetest.NewClock(time.Unix(1_700_000_000, 0))
	app, err := build(context.Background(), options(t), scene.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	tb, api := teletest.NewBot(t)
	coretelegram.Wire(tb, app.Registry, nil, app.Middlewares(), app.Routes())
	api.Reset()
	return &bot{t: t, app: app, bot: tb, api: api, clock: clock}
}

func (b *bot) text(s string) {
	b.next++
	b.bot.ProcessUpdate(teletest.Message(b.next, 5, 6, s))
}

func (b *bot) send(build func(updateID int, userID, chatID int64) tele.Update) {
	b.next++
	b.bot.ProcessUpdate(build(b.next, 5, 6))
}

func (b *bot) press(key string) {
	b.next++
	b.bot.ProcessUpdate(teletest.Callback(b.next, 5, 6, callbacks.Data(key)))
}

// replies returns the texts sent since the last call.
func (b *bot) replies() []string {
	out := b.api.Texts()
	b.api.Reset()
	return out
}

func (b *bot) state() scene.State {
	st, err := b.app.Result.Store.Get(context.Background(), sessionID)
	require.NoError(b.t, err)
	return st
}

func TestScenesBotGreeterAndEcho(t *testing.T) {
	b := start(t, NewScenesApp)

	b.text("hi")
	assert.Equal(t, []string{Fallback}, b.replies())
	assert.False(t, b.state().Active())

	b.text("/greeter")
	assert.Equal(t, []string{"Hi"}, b.replies())
	assert.Equal(t, GreeterScene, b.state().Scene)

	b.text("hi")
	assert.Equal(t, []string{"Bye", "Hi"}, b.replies(), "hi re-enters the greeter")
	assert.Equal(t, GreeterScene, b.state().Scene)

	b.text("hello")
	assert.Equal(t, []string{"Send `hi`"}, b.replies())

	b.text("/echo")
	assert.Equal(t, []string{"Bye", "echo scene"}, b.replies())
	assert.Equal(t, EchoScene, b.state().Scene)
	assert.Zero(t, b.state().Step)

	b.text("ping")
	assert.Equal(t, []string{"ping"}, b.replies())

	b.text("/back")
	assert.Equal(t, []string{"exiting echo scene"}, b.replies())
	assert.False(t, b.state().Active())

	b.text("ping")
	assert.Equal(t, []string{Fallback}, b.replies())
}

func TestScenesBotNonTextMessages(t *testing.T) {
	b := start(t, NewScenesApp)

	b.send(teletest.Sticker)
	assert.Equal(t, []string{Fallback}, b.replies())
	b.send(func(id int, user, chat int64) tele.Update { return teletest.Photo(id, user, chat, "") })
	assert.Equal(t, []string{Fallback}, b.replies())

	b.text("echo")
	assert.Equal(t, []string{Fallback}, b.replies(), "commands need a slash")
	assert.False(t, b.state().Active())

	b.text("/echo")
	assert.Equal(t, []string{"echo scene"}, b.replies())
	b.send(teletest.Sticker)
	assert.Equal(t, []string{"Only text messages please"}, b.replies())
	b.send(func(id int, user, chat int64) tele.Update { return teletest.Photo(id, user, chat, "caption") })
	assert.Equal(t, []string{"caption"}, b.replies())

	b.text("/greeter")
	assert.Equal(t, []string{"exiting echo scene", "Hi"}, b.replies())
	b.send(teletest.Sticker)
	assert.Equal(t, []string{"Send `hi`"}, b.replies())
}

func TestScenesBotSetsContextProp(t *testing.T) {
	b := start(t, NewScenesApp)
	b.text("hi")

	prop, ok := b.state().Data.String(ContextPropKey)
	require.True(t, ok)
	assert.Empty(t, prop)
}

func TestScenesBotTTL(t *testing.T) {
	b := start(t, NewScenesApp)

	b.text("/echo")
	b.clock.Advance(5 * time.Second)
	b.text("still here")
	assert.Equal(t, []string{"echo scene", "still here"}, b.replies())

	b.clock.Advance(SceneTTL + time.Second)
	b.text("ping")
	assert.Equal(t, []string{Fallback}, b.replies(), "expired scenes run no leave hook")
	assert.False(t, b.state().Active())
}

func TestScenesBotCommandMenu(t *testing.T) {
	list := start(t, NewScenesApp).app.Registry.ListCommands(true)
	require.Len(t, list, 2)
	assert.Equal(t, "/echo", list[0].Text)
	assert.Equal(t, "/greeter", list[1].Text)
}

func TestWizardBotFiveSteps(t *testing.T) {
	b := start(t, NewWizardApp)
	assert.Equal(t, WizardScene, b.app.Stage.DefaultScene())

	b.text("hello")
	sent := b.api.Method("sendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "Step 1", sent[0].Param("text"))
	markup := sent[0].Param("reply_markup")
	assert.Contains(t, markup, DocsURL)
	assert.Contains(t, markup, "next")
	b.api.Reset()

	st := b.state()
	assert.Equal(t, WizardScene, st.Scene)
	assert.Equal(t, 1, st.Step)
	v, ok := st.Data.Int64(SessionPropKey)
	assert.True(t, ok)
	assert.Zero(t, v)
	_, ok = st.Payload.Get(WizardPropKey)
	assert.True(t, ok)

	b.press(NextAction)
	assert.Equal(t, []string{"Step 2. Via inline button"}, b.replies())
	assert.Equal(t, 2, b.state().Step)

	b.text("go")
	assert.Equal(t, []string{"Step 3"}, b.replies())
	b.text("go")
	assert.Equal(t, []string{"Step 4"}, b.replies())
	b.text("go")
	assert.Equal(t, []string{"Done"}, b.replies())

	st = b.state()
	assert.False(t, st.Active())
	assert.Nil(t, st.Payload, "wizard payload is dropped on leave")
	_, ok = st.Data.Get(SessionPropKey)
	assert.True(t, ok, "session data survives the wizard")

	b.text("again")
	assert.Empty(t, b.replies(), "the default scene applies to new sessions only")
}

func TestWizardComposerStep(t *testing.T) {
	b := start(t, NewWizardApp)
	b.text("hello")
	b.api.Reset()

	b.text("what now")
	assert.Equal(t, []string{"Press `Next` button or type /next"}, b.replies())
	assert.Equal(t, 1, b.state().Step)

	b.text("/next")
	assert.Equal(t, []string{"Step 2. Via command"}, b.replies())
	assert.Equal(t, 2, b.state().Step)
}

func TestCallbacksAreAnswered(t *testing.T) {
	w := start(t, NewWizardApp)
	w.text("hello")
	w.press(NextAction)
	assert.Len(t, w.api.Method("answerCallbackQuery"), 1)

	s := start(t, NewScenesApp)
	s.press("unknown")
	answers := s.api.Method("answerCallbackQuery")
	require.Len(t, answers, 1)
	assert.Equal(t, "Unsupported action", answers[0].Param("text"))
	assert.Empty(t, s.api.Texts())
}
