// Package bot adapts Telegram updates to the conversation engine.
package bot

import (
	"context"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/walletbot/core/logger"
	tg "github.com/m3rciful/walletbot/core/telegram"
	"github.com/m3rciful/walletbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/walletbot/core/telegram/helpers"
	"github.com/m3rciful/walletbot/core/telegram/router"
	"github.com/m3rciful/walletbot/wallet/action"
	"github.com/m3rciful/walletbot/wallet/conversation"
	"github.com/m3rciful/walletbot/wallet/notify"
)

const (
	textFailure   = "⚠️ Ocurrió un error. Intenta de nuevo en unos minutos."
	textUnknown   = "Usa /start para ver el menú."
	textNoMedia   = "No esperaba una imagen ahora. Usa /start para ver el menú."
	textAdminOnly = "⛔ Solo el moderador puede usar este comando."
	textThrottled = "⏳ Vas muy rápido. Espera un momento."
)

// Engine processes normalised inputs.
type Engine interface {
	Handle(ctx context.Context, in conversation.Input) error
}

// Sessions reports whether a user is inside a multi-step flow.
type Sessions interface {
	InProgress(ctx context.Context, userID int64) bool
}

// Adapter turns Telegram updates into conversation inputs.
type Adapter struct {
	engine   Engine
	sessions Sessions
}

// New builds an Adapter.
func New(engine Engine, sessions Sessions) *Adapter {
	return &Adapter{engine: engine, sessions: sessions}
}

var commands = []struct {
	name  string
	desc  string
	admin bool
	tag   action.Tag
}{
	{"/balance", "Ver saldo", false, action.Wallet},
	{"/history", "Últimos movimientos", false, action.History},
	{"/cancel", "Cancelar la operación en curso", false, action.Cancel},
	{"/pending", "Depósitos pendientes", true, action.Pending},
}

// Register adds the bot commands and one callback per action tag to reg.
func (a *Adapter) Register(reg *tg.Registry) error {
	if err := reg.RegisterCommand("/start", tg.Command{
		Description: "Menú principal",
		Handler:     a.onStart,
	}); err != nil {
		return err
	}
	for _, cmd := range commands {
		if err := reg.RegisterCommand(cmd.name, tg.Command{
			Description: cmd.desc,
			AdminOnly:   cmd.admin,
			Handler:     a.onAction(action.New(cmd.tag)),
		}); err != nil {
			return err
		}
	}
	for _, tag := range action.Known() {
		if err := reg.RegisterCallback(string(tag), a.onCallback); err != nil {
			return err
		}
	}
	return nil
}

// Routes composes command, callback and free-input routes over reg.
func (a *Adapter) Routes(reg *tg.Registry, moderatorID int64) []tg.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       moderatorID,
		OnAdminReject: reply(textAdminOnly),
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a, reg, router.TextOptions{
		UnknownText:  reply(textUnknown),
		UnknownMedia: reply(textNoMedia),
	})...)
	return routes
}

// Throttled answers a rate-limited update.
func Throttled(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: textThrottled})
	}
	return tghelpers.SendText(c, textThrottled)
}

// InProgress implements router.Flow.
func (a *Adapter) InProgress(ctx context.Context, userID int64) bool {
	return a.sessions != nil && a.sessions.InProgress(ctx, userID)
}

// Handle implements router.Flow for text and image messages.
func (a *Adapter) Handle(c tele.Context) error {
	in := baseInput(c)
	m := c.Message()
	switch {
	case m != nil && m.Photo != nil:
		in.Kind = conversation.KindImage
		in.ImageRef = m.Photo.FileID
	case m != nil && m.Document != nil:
		in.Kind = conversation.KindImage
		in.ImageRef = notify.DocumentRef(m.Document.FileID)
	default:
		in.Kind = conversation.KindText
		in.Text = c.Text()
	}
	return a.dispatch(c, in)
}

func (a *Adapter) onStart(c tele.Context) error {
	in := baseInput(c)
	in.Kind = conversation.KindStart
	return a.dispatch(c, in)
}

func (a *Adapter) onAction(act action.Action) tele.HandlerFunc {
	return func(c tele.Context) error {
		in := baseInput(c)
		in.Kind = conversation.KindAction
		in.Action = act
		return a.dispatch(c, in)
	}
}

func (a *Adapter) onCallback(c tele.Context) error {
	key, payload := callbacks.ParseCallbackData(c.Callback())
	raw := key
	if payload != "" {
		raw += ":" + payload
	}
	act, ok := action.Parse(raw)
	if !ok {
		logger.Debug(tghelpers.BuildContext(c), "tg", "callback.unknown", slog.String("cb_key", key))
		return nil
	}
	in := baseInput(c)
	in.Kind = conversation.KindAction
	in.Action = act
	return a.dispatch(c, in)
}

func (a *Adapter) dispatch(c tele.Context, in conversation.Input) error {
	if in.UserID == 0 {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	if err := a.engine.Handle(ctx, in); err != nil {
		if sendErr := tghelpers.SendText(c, textFailure); sendErr != nil {
			logger.Warn(ctx, "tg", "reply.failure_notice",
				slog.String("status", "fail"),
				slog.String("err", sendErr.Error()),
			)
		}
		return err
	}
	return nil
}

func baseInput(c tele.Context) conversation.Input {
	u := c.Sender()
	if u == nil {
		return conversation.Input{}
	}
	return conversation.Input{
		UserID:      u.ID,
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
		Username:    u.Username,
	}
}

func reply(text string) tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, text)
	}
}
