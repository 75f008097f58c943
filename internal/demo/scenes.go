package demo

import (
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/scene"
	"github.com/m3rciful/gostage/core/telegram/keyboard"
)

const (
	GreeterScene = "greeter"
	EchoScene    = "echo"
	WizardScene  = "super-wizard"

	// SceneTTL bounds how long the greeter and echo scenes stay active
	// without updates.
	SceneTTL = 10 * time.Second

	// ContextPropKey is initialized for every session by ContextProp.
	ContextPropKey = "my_context_prop"
	// SessionPropKey lives in session data and survives the wizard.
	SessionPropKey = "my_session_prop"
	// WizardPropKey lives in the wizard payload and is dropped on leave.
	WizardPropKey = "my_wizard_session_prop"

	// NextAction is the callback key of the wizard's Next button.
	NextAction = "next"
	// DocsURL is opened by the wizard's link button.
	DocsURL = "https://core.telegram.org/bots/features"
)

// Greeter greets on enter and on "hi", and asks for "hi" otherwise.
func Greeter() *scene.Scene {
	return scene.New(GreeterScene,
		scene.WithTTL(SceneTTL),
		scene.WithEnter(scene.ReplyHandler("Hi")),
		scene.WithLeave(scene.ReplyHandler("Bye")),
		scene.WithRoutes(
			scene.Hears("hi", scene.EnterHandler(GreeterScene)),
			scene.OnMessage(scene.ReplyHandler("Send `hi`", tele.ModeMarkdown)),
		),
	)
}

// Echo repeats text messages until /back.
func Echo() *scene.Scene {
	return scene.New(EchoScene,
		scene.WithTTL(SceneTTL),
		scene.WithEnter(scene.ReplyHandler("echo scene")),
		scene.WithLeave(scene.ReplyHandler("exiting echo scene")),
		scene.WithRoutes(
			scene.Command("back", scene.LeaveHandler()),
			scene.OnText(func(c *scene.Context) error { return c.Reply(c.Text()) }),
			scene.OnMessage(scene.ReplyHandler("Only text messages please")),
		),
	)
}

// WizardKeyboard is shown with the first wizard step.
func WizardKeyboard() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "❤️", URL: DocsURL},
		{Text: "➡️ Next", Unique: NextAction},
	})
}

// nextStep is the composer step: the Next button or /next advance, anything
// else gets a prompt and keeps the step.
func nextStep() scene.Handler {
	advance := func(via string) scene.HandlerFunc {
		return func(c *scene.Context) error {
			if err := c.Reply("Step 2. Via " + via); err != nil {
				return err
			}
			return c.Next()
		}
	}
	return scene.NewRouter(
		scene.Action(NextAction, advance("inline button")),
		scene.Command(NextAction, advance("command")),
		scene.Use(scene.ReplyHandler("Press `Next` button or type /next", tele.ModeMarkdown)),
	)
}

func replyAndNext(text string) scene.HandlerFunc {
	return func(c *scene.Context) error {
		if err := c.Reply(text); err != nil {
			return err
		}
		return c.Next()
	}
}

// SuperWizard walks a session through five steps and leaves after "Done".
func SuperWizard() *scene.Scene {
	return scene.NewWizard(WizardScene, []scene.Handler{
		scene.HandlerFunc(func(c *scene.Context) error {
			if _, ok := c.SessionValue(SessionPropKey); !ok {
				c.SetSessionValue(SessionPropKey, 0)
			}
			if _, ok := c.Get(WizardPropKey); !ok {
				c.Set(WizardPropKey, 0)
			}
			if err := c.Reply("Step 1", WizardKeyboard()); err != nil {
				return err
			}
			return c.Next()
		}),
		nextStep(),
		replyAndNext("Step 3"),
		replyAndNext("Step 4"),
		scene.HandlerFunc(func(c *scene.Context) error {
			if err := c.Reply("Done"); err != nil {
				return err
			}
			return c.Leave()
		}),
	})
}
