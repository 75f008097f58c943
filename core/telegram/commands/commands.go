// Package commands describes slash commands kept in the bot registry.
package commands

import tele "gopkg.in/telebot.v4"

// Command is one registry entry. Exactly one of Handler or Scene is
// expected; with only Scene set the command enters that scene.
type Command struct {
	Handler tele.HandlerFunc
	Scene   string

	// Description is shown in the Telegram command menu.
	Description string
	// AdminOnly commands are gated by the admin check and kept off the menu.
	AdminOnly bool
	// Hidden commands work but are kept off the menu.
	Hidden  bool
	Aliases []string
}
