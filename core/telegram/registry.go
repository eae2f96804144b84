package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/walletbot/core/logger"
)

// ErrInvalidRegistration is returned for commands or callbacks missing a
// name, handler or description.
var ErrInvalidRegistration = errors.New("telegram: invalid registration")

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}

// Registry holds bot commands and callbacks. Commands are registered during
// wiring; callbacks may be added while the bot runs.
type Registry struct {
	commands map[string]Command
	aliases  map[string]string

	callbacksMu      sync.RWMutex
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry creates an empty Registry with default fallbacks.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]Command),
		aliases:   make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Acción no disponible"})
		},
	}
}

func commandKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name != "" && !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name
}

// RegisterCommand adds a command under name, which must start with "/".
// Aliases are matched without the slash as well.
func (r *Registry) RegisterCommand(name string, cmd Command) error {
	if cmd.Handler == nil || cmd.Description == "" || !strings.HasPrefix(name, "/") || len(name) < 2 {
		logger.Warn(context.Background(), "tg.wire", "register.command.skip",
			slog.String("command", name),
			slog.String("reason", "invalid"),
		)
		return fmt.Errorf("%w: command %q", ErrInvalidRegistration, name)
	}
	key := commandKey(name)
	if _, exists := r.commands[key]; exists {
		logger.Warn(context.Background(), "tg.wire", "register.command.duplicate", slog.String("command", key))
		return fmt.Errorf("command already registered: %s", key)
	}
	if owner, taken := r.aliases[key]; taken {
		return fmt.Errorf("command %s shadows an alias of %s", key, owner)
	}
	for _, alias := range cmd.Aliases {
		a := commandKey(alias)
		if _, clash := r.commands[a]; clash || a == key {
			return fmt.Errorf("alias %s of %s collides with a command", a, key)
		}
		if owner, taken := r.aliases[a]; taken {
			return fmt.Errorf("alias %s of %s already belongs to %s", a, key, owner)
		}
	}
	for _, alias := range cmd.Aliases {
		r.aliases[commandKey(alias)] = key
	}
	r.commands[key] = cmd
	return nil
}

// ListCommands returns commands sorted by name. With visibleOnly, hidden and
// admin-only commands are left out.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	return r.listCommands(func(c Command) bool {
		return !visibleOnly || (!c.Hidden && !c.AdminOnly)
	})
}

func (r *Registry) listCommands(keep func(Command) bool) []tele.Command {
	var list []tele.Command
	for name, meta := range r.commands {
		if keep(meta) {
			list = append(list, tele.Command{Text: name, Description: meta.Description})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand resolves name or one of its aliases, ignoring case and the
// leading slash, to the canonical command key.
func (r *Registry) LookupCommand(name string) (string, Command, bool) {
	key := commandKey(name)
	if canonical, ok := r.aliases[key]; ok {
		key = canonical
	}
	cmd, ok := r.commands[key]
	if !ok {
		return "", Command{}, false
	}
	return key, cmd, true
}

// Commands returns all registered commands.
func (r *Registry) Commands() map[string]Command {
	return r.commands
}

// RegisterCallback adds a callback handler mapped to its key.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		logger.Warn(context.Background(), "tg.wire", "register.callback.skip",
			slog.String("cb_key", key),
			slog.Bool("handler_nil", handler == nil),
		)
		return fmt.Errorf("%w: callback %q", ErrInvalidRegistration, key)
	}
	r.callbacksMu.Lock()
	defer r.callbacksMu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		logger.Warn(context.Background(), "tg.wire", "register.callback.duplicate", slog.String("cb_key", key))
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback safely returns handler by key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.callbacksMu.RLock()
	defer r.callbacksMu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns sorted keys (for diagnostics).
func (r *Registry) ListCallbacks() []string {
	r.callbacksMu.RLock()
	defer r.callbacksMu.RUnlock()
	names := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetCallbackNotFound replaces the fallback handler for unknown callbacks.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h != nil {
		r.callbackNotFound = h
	}
}

// CallbackNotFound returns the current fallback callback handler.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	return r.callbackNotFound
}

// SetTextFallback sets a global fallback handler for unknown text messages.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.textFallback = h
}

// TextFallback returns the current text fallback handler.
func (r *Registry) TextFallback() tele.HandlerFunc {
	return r.textFallback
}

// commandMenus splits the registry into the public menu and the menu shown
// in the admin chat, which adds admin-only commands.
func commandMenus(reg *Registry) (public, admin []tele.Command) {
	public = reg.ListCommands(true)
	admin = reg.listCommands(func(c Command) bool { return !c.Hidden })
	return public, admin
}

// InitBotCommands publishes the command menu. When adminChatID is set the
// admin chat gets its own menu including admin-only commands.
func InitBotCommands(bot *tele.Bot, reg *Registry, adminChatID int64) {
	if bot == nil || reg == nil {
		return
	}
	public, admin := commandMenus(reg)
	if len(public) > 0 {
		if err := bot.SetCommands(public); err != nil {
			logger.Error(context.Background(), "tg.wire", "register.commands.set_failed",
				slog.String("scope", "default"),
				slog.String("err", err.Error()),
			)
		}
	}
	if adminChatID == 0 || len(admin) == len(public) {
		return
	}
	scope := tele.CommandScope{Type: tele.CommandScopeChat, ChatID: adminChatID}
	if err := bot.SetCommands(admin, scope); err != nil {
		logger.Error(context.Background(), "tg.wire", "register.commands.set_failed",
			slog.String("scope", "admin"),
			slog.String("err", err.Error()),
		)
	}
}
