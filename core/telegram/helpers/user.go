package helpers

import (
	"strconv"

	tele "gopkg.in/telebot.v4"
)

// SessionID builds the default session key "<userID>:<chatID>". It is empty
// when the update has no sender or no chat, such as inline queries.
func SessionID(c tele.Context) string {
	if c == nil {
		return ""
	}
	user, chat := c.Sender(), c.Chat()
	if user == nil || chat == nil {
		return ""
	}
	return SessionKey(user.ID, chat.ID)
}

// SessionKey formats the session key of a user in a chat.
func SessionKey(userID, chatID int64) string {
	return strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(chatID, 10)
}

// IDs returns the sender and chat identifiers of the update, zero when absent.
func IDs(c tele.Context) (userID, chatID int64) {
	if c == nil {
		return 0, 0
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	return userID, chatID
}
