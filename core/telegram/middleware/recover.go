package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/walletbot/core/logger"
	tghelpers "github.com/m3rciful/walletbot/core/telegram/helpers"
)

// ErrPanic wraps the value recovered from a panicking handler.
var ErrPanic = errors.New("handler panic")

// RecoverMiddleware turns a handler panic into an error wrapping ErrPanic
// and logs it with the goroutine stack.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			logger.Error(tghelpers.BuildContext(c), "tg", "tg.panic",
				slog.String("status", "fail"),
				slog.String("panic_type", fmt.Sprintf("%T", r)),
				slog.String("err", err.Error()),
				slog.String("stack", string(debug.Stack())),
			)
		}()
		return next(c)
	}
}
