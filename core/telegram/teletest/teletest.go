// Package teletest runs telebot against an in-process fake Bot API.
package teletest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

// Call is one recorded Bot API request.
type Call struct {
	Method string
	Params map[string]any
}

// Param returns a request parameter rendered as a string.
func (c Call) Param(key string) string {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// API records requests and answers them with minimal successful responses.
type API struct {
	mu     sync.Mutex
	calls  []Call
	nextID int
}

// NewAPI returns an empty fake Bot API.
func NewAPI() *API {
	return &API{nextID: 100}
}

// Settings points s at api: offline, synchronous, talking to api only.
func (a *API) Settings(s *tele.Settings) {
	if s.Token == "" {
		s.Token = "123:test"
	}
	s.URL = "http://bot.test"
	s.Offline = true
	s.Synchronous = true
	s.Client = &http.Client{Transport: a}
}

// NewBot returns a synchronous offline bot whose HTTP client talks to api.
func NewBot(t *testing.T) (*tele.Bot, *API) {
	t.Helper()
	api := NewAPI()
	settings := tele.Settings{OnError: func(error, tele.Context) {}}
	api.Settings(&settings)
	bot, err := tele.NewBot(settings)
	require.NoError(t, err)
	bot.Me = &tele.User{ID: 1, IsBot: true, Username: "stage_bot"}
	return bot, api
}

// RoundTrip implements http.RoundTripper.
func (a *API) RoundTrip(req *http.Request) (*http.Response, error) {
	method := path.Base(req.URL.Path)
	params := map[string]any{}
	if req.Body != nil {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		_ = req.Body.Close()
		if len(raw) > 0 && strings.HasPrefix(req.Header.Get("Content-Type"), "application/json") {
			_ = json.Unmarshal(raw, &params)
		}
	}

	a.mu.Lock()
	a.calls = append(a.calls, Call{Method: method, Params: params})
	a.nextID++
	id := a.nextID
	a.mu.Unlock()

	var result any = true
	switch method {
	case "sendMessage", "editMessageText":
		chatID, _ := strconv.ParseInt(fmt.Sprint(params["chat_id"]), 10, 64)
		result = map[string]any{
			"message_id": id,
			"date":       0,
			"chat":       map[string]any{"id": chatID, "type": "private"},
			"text":       params["text"],
		}
	case "getMe":
		result = map[string]any{"id": 1, "is_bot": true, "username": "stage_bot"}
	}
	body, err := json.Marshal(map[string]any{"ok": true, "result": result})
	if err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(string(body))),
		Request:    req,
	}, nil
}

// Calls returns a copy of every recorded request.
func (a *API) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

// Method returns calls of a single Bot API method.
func (a *API) Method(name string) []Call {
	var out []Call
	for _, c := range a.Calls() {
		if c.Method == name {
			out = append(out, c)
		}
	}
	return out
}

// Texts returns the text of every sent message, in order.
func (a *API) Texts() []string {
	var out []string
	for _, c := range a.Method("sendMessage") {
		out = append(out, c.Param("text"))
	}
	return out
}

// Reset drops recorded calls.
func (a *API) Reset() {
	a.mu.Lock()
	a.calls = nil
	a.mu.Unlock()
}

// Message builds a text message update from user in chat.
func Message(updateID int, userID, chatID int64, text string) tele.Update {
	return tele.Update{
		ID: updateID,
		Message: &tele.Message{
			ID:     updateID,
			Text:   text,
			Sender: &tele.User{ID: userID, Username: "user"},
			Chat:   &tele.Chat{ID: chatID, Type: tele.ChatPrivate},
		},
	}
}

// Sticker builds a sticker message update.
func Sticker(updateID int, userID, chatID int64) tele.Update {
	u := Message(updateID, userID, chatID, "")
	u.Message.Sticker = &tele.Sticker{
		File:   tele.File{FileID: fmt.Sprintf("sticker-%d", updateID)},
		Type:   tele.StickerRegular,
		Width:  512,
		Height: 512,
		Emoji:  "👍",
	}
	return u
}

// Photo builds a photo message update with an optional caption.
func Photo(updateID int, userID, chatID int64, caption string) tele.Update {
	u := Message(updateID, userID, chatID, "")
	u.Message.Caption = caption
	u.Message.Photo = &tele.Photo{
		File:   tele.File{FileID: fmt.Sprintf("photo-%d", updateID)},
		Width:  640,
		Height: 480,
	}
	return u
}

// Callback builds a callback query update carrying data.
func Callback(updateID int, userID, chatID int64, data string) tele.Update {
	return tele.Update{
		ID: updateID,
		Callback: &tele.Callback{
			ID:     fmt.Sprintf("cb-%d", updateID),
			Data:   data,
			Sender: &tele.User{ID: userID, Username: "user"},
			Message: &tele.Message{
				ID:     updateID,
				Text:   "menu",
				Sender: &tele.User{ID: 1, IsBot: true},
				Chat:   &tele.Chat{ID: chatID, Type: tele.ChatPrivate},
			},
		},
	}
}
