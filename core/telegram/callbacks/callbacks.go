// Package callbacks decodes telebot callback data.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Parse splits callback data into key and payload.
// Telebot encodes data buttons as "\f<unique>|<payload>"; plain buttons carry
// the key only. When telebot already resolved the unique, it is used as is.
func Parse(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	key, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(key), payload
}

// Key returns the callback key of the current update.
func Key(c tele.Context) string {
	k, _ := Parse(c.Callback())
	return k
}

// Payload returns the callback payload of the current update.
func Payload(c tele.Context) string {
	_, p := Parse(c.Callback())
	return p
}

// Data encodes key and payload the way telebot encodes data buttons.
func Data(key string, payload ...string) string {
	data := "\f" + key
	if len(payload) > 0 && payload[0] != "" {
		data += "|" + strings.Join(payload, "|")
	}
	return data
}
