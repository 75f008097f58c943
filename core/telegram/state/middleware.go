package state

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/scene"
	tghelpers "github.com/m3rciful/gostage/core/telegram/helpers"
)

const offeredKey = "stage_offered"

// Offer dispatches the update of c to st once per update. Later calls for
// the same update report false, so a middleware and a router may both offer
// without double handling. Updates without a session are never handled.
func Offer(st *scene.Stage, c tele.Context) (bool, error) {
	if st == nil || c == nil {
		return false, nil
	}
	if done, _ := c.Get(offeredKey).(bool); done {
		return false, nil
	}
	c.Set(offeredKey, true)

	u := Decode(c)
	if u.SessionID == "" {
		return false, nil
	}
	handled, err := st.Dispatch(sceneContext(c), u)
	if handled && u.IsCallback {
		_ = tghelpers.Respond(c)
	}
	return handled, err
}

// Middleware offers every update to st and calls next only when no scene
// handled it.
func Middleware(st *scene.Stage) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			handled, err := Offer(st, c)
			if err != nil {
				return err
			}
			if handled {
				return nil
			}
			return next(c)
		}
	}
}

func sceneContext(c tele.Context) context.Context {
	return scene.ContextWithSender(tghelpers.BuildContext(c), NewSender(c))
}
