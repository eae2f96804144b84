package router

import (
	"context"
	"log/slog"
	"sort"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/walletbot/core/logger"
	tg "github.com/m3rciful/walletbot/core/telegram"
	"github.com/m3rciful/walletbot/core/telegram/middleware"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes returns one route per registered slash command, ordered by
// name. Admin-only commands are guarded by AdminOnlyMiddleware.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	guard := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	cmds := reg.Commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	routes := make([]tg.Route, 0, len(names))
	admin := 0
	for _, name := range names {
		def := cmds[name]
		h := commandHandler(handlerName(name), def.Handler)
		if def.AdminOnly {
			h = guard(h)
			admin++
		}
		routes = append(routes, tg.Route{Endpoint: name, Handler: middleware.LoggerMiddleware(h)})
	}

	logger.Info(context.Background(), "tg.wire", "complete",
		slog.Int("commands", len(routes)),
		slog.Int("admin_commands", admin),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}

func commandHandler(name string, inner tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RecoverMiddleware(func(c tele.Context) error {
		return summarize(name, time.Now()).run(c, inner)
	})
}
