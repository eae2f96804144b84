package middleware

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/walletbot/core/logger"
	tghelpers "github.com/m3rciful/walletbot/core/telegram/helpers"
)

// AdminOptions defines who may pass an admin-only route.
type AdminOptions struct {
	AdminID int64
	// Allow lists further admin user ids.
	Allow    []int64
	OnReject tele.HandlerFunc
}

func (o AdminOptions) allowed(id int64) bool {
	if id == 0 {
		return false
	}
	if id == o.AdminID {
		return true
	}
	for _, a := range o.Allow {
		if a == id {
			return true
		}
	}
	return false
}

// AdminOnlyMiddleware runs next only for configured admins. With no admin
// configured everyone is rejected.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			var id int64
			if user := c.Sender(); user != nil {
				id = user.ID
			}
			if opts.allowed(id) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "access.denied",
				slog.String("outcome", "fail"),
				slog.String("reason", "not_admin"),
			)
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}
