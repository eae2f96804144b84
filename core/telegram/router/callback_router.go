package router

import (
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/walletbot/core/telegram"
	"github.com/m3rciful/walletbot/core/telegram/callbacks"
	"github.com/m3rciful/walletbot/core/telegram/middleware"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	// NotFound overrides the registry's fallback for unknown keys.
	NotFound tele.HandlerFunc
}

// answerOnce records whether the callback query has been answered.
type answerOnce struct {
	tele.Context
	answered bool
}

func (a *answerOnce) Respond(resp ...*tele.CallbackResponse) error {
	a.answered = true
	return a.Context.Respond(resp...)
}

// CallbackRoute routes every callback by its unique key through reg. Known
// keys get the spinner cleared before the handler runs. Unknown keys are
// answered by the fallback, or with an empty answer when it sends none.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	fallback := func(c tele.Context) error {
		if opts.NotFound != nil {
			return opts.NotFound(c)
		}
		if fb := reg.CallbackNotFound(); fb != nil {
			return fb(c)
		}
		return nil
	}
	notFound := func(c tele.Context) error {
		ac := &answerOnce{Context: c}
		err := fallback(ac)
		if !ac.answered {
			_ = c.Respond()
		}
		return err
	}

	handler := func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		start := time.Now()
		key, _ := callbacks.ParseCallbackData(cb)

		name := "callback." + handlerName(key)
		if h, ok := reg.GetCallback(key); ok && h != nil {
			_ = c.Respond()
			return summarize(name, start, slog.String("cb_key", key)).run(c, h)
		}
		return summarize(name, start,
			slog.String("cb_key", key),
			slog.String("reason", "not_found"),
		).run(c, notFound)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
