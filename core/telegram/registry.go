package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/logger"
	"github.com/m3rciful/gostage/core/scene"
	"github.com/m3rciful/gostage/core/telegram/commands"
	tghelpers "github.com/m3rciful/gostage/core/telegram/helpers"
	"github.com/m3rciful/gostage/core/telegram/state"
)

const wireComponent = "tg.wire"

var (
	// ErrInvalidRegistration is wrapped by errors for malformed commands and callbacks.
	ErrInvalidRegistration = errors.New("telegram: invalid registration")
	// ErrDuplicateRegistration is wrapped when a name, alias or key is taken.
	ErrDuplicateRegistration = errors.New("telegram: already registered")
)

// Registry holds bot commands, their aliases and callback handlers.
// Safe for concurrent use.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]commands.Command
	aliases          map[string]string
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry creates an empty Registry. Unknown callbacks are answered
// with "Unsupported action".
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		aliases:   make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return tghelpers.Respond(c, &tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

func rejected(kind, name, reason string, cause error) error {
	logger.Warn(context.Background(), wireComponent, "register."+kind+".skip",
		slog.String("name", name),
		slog.String("reason", reason),
	)
	return fmt.Errorf("%w: %s %q: %s", cause, kind, name, reason)
}

// RegisterCommand adds cmd under name ("/start"). A command needs a
// description and either a handler or a scene to enter. Aliases are
// stored with a leading slash and must not collide with other names.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil registry", ErrInvalidRegistration)
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		return rejected("command", name, "no_slash_prefix", ErrInvalidRegistration)
	case cmd.Handler == nil && cmd.Scene == "":
		return rejected("command", name, "no_handler", ErrInvalidRegistration)
	case cmd.Description == "":
		return rejected("command", name, "no_description", ErrInvalidRegistration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taken(name) {
		return rejected("command", name, "duplicate", ErrDuplicateRegistration)
	}
	aliases := make([]string, 0, len(cmd.Aliases))
	for _, a := range cmd.Aliases {
		a = "/" + strings.TrimPrefix(a, "/")
		if a == "/" || a == name || r.taken(a) || slices.Contains(aliases, a) {
			return rejected("command", name, "alias_taken:"+a, ErrDuplicateRegistration)
		}
		aliases = append(aliases, a)
	}
	r.commands[name] = cmd
	for _, a := range aliases {
		r.aliases[a] = name
	}
	return nil
}

func (r *Registry) taken(name string) bool {
	_, cmd := r.commands[name]
	_, alias := r.aliases[name]
	return cmd || alias
}

// CommandHandler returns the telebot handler of cmd. Scene commands enter
// their scene on st and yield nil without a stage.
func (r *Registry) CommandHandler(st *scene.Stage, cmd commands.Command) tele.HandlerFunc {
	switch {
	case cmd.Handler != nil:
		return cmd.Handler
	case cmd.Scene != "" && st != nil:
		return state.EnterHandler(st, cmd.Scene)
	default:
		return nil
	}
}

// LookupCommand resolves text to a registered command by name or alias.
// Arguments and a "@bot" suffix are ignored, the slash is optional.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	if r == nil {
		return "", commands.Command{}, false
	}
	name, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	name, _, _ = strings.Cut(name, "@")
	name = "/" + strings.TrimPrefix(name, "/")
	if name == "/" {
		return "", commands.Command{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	cmd, ok := r.commands[name]
	if !ok {
		return "", commands.Command{}, false
	}
	return name, cmd, true
}

// Commands returns a copy of all registered commands keyed by name.
func (r *Registry) Commands() map[string]commands.Command {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.commands)
}

// ListCommands returns commands sorted by name. With visibleOnly, hidden
// and admin-only commands are left out.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	cmds := r.Commands()
	var list []tele.Command
	for _, name := range slices.Sorted(maps.Keys(cmds)) {
		meta := cmds[name]
		if visibleOnly && (meta.Hidden || meta.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: name, Description: meta.Description})
	}
	return list
}

// RegisterCallback maps a callback unique key to handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if r == nil || key == "" || handler == nil {
		return rejected("callback", key, "invalid", ErrInvalidRegistration)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		return rejected("callback", key, "duplicate", ErrDuplicateRegistration)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler registered for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered callback keys, sorted.
func (r *Registry) ListCallbacks() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.callbacks))
}

// SetCallbackNotFound replaces the handler for unknown callbacks. nil is ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the handler for unknown callbacks.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text nothing else claimed.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

// TextFallback returns the text fallback handler, if any.
func (r *Registry) TextFallback() tele.HandlerFunc {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// SetupCommands publishes the visible commands of reg as the bot menu.
// Empty menus are not sent.
func SetupCommands(bot *tele.Bot, reg *Registry) {
	if bot == nil || reg == nil {
		return
	}
	list := reg.ListCommands(true)
	if len(list) == 0 {
		return
	}
	if err := bot.SetCommands(list); err != nil {
		logger.Error(context.Background(), wireComponent, "register.commands.set_failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}
