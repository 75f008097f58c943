package state

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/scene"
)

// RunHandler adapts fn into a telebot handler running under the session
// lock of the update, the way scene handlers do.
func RunHandler(st *scene.Stage, fn func(c *scene.Context) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		u := Decode(c)
		if u.SessionID == "" {
			return scene.ErrNoSession
		}
		return st.Run(sceneContext(c), u, fn)
	}
}

// EnterHandler enters the named scene, for global commands such as /greeter.
func EnterHandler(st *scene.Stage, name string, payload ...scene.Values) tele.HandlerFunc {
	return RunHandler(st, func(c *scene.Context) error {
		return c.Enter(name, payload...)
	})
}

// LeaveHandler leaves the active scene, if any.
func LeaveHandler(st *scene.Stage) tele.HandlerFunc {
	return RunHandler(st, func(c *scene.Context) error {
		return c.Leave()
	})
}
