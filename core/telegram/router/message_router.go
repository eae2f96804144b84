package router

import (
	"context"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/walletbot/core/telegram"
	tghelpers "github.com/m3rciful/walletbot/core/telegram/helpers"
	"github.com/m3rciful/walletbot/core/telegram/middleware"
)

// Flow is a multi-step dialogue that claims free text and uploads while the
// user is inside it.
type Flow interface {
	InProgress(ctx context.Context, userID int64) bool
	Handle(c tele.Context) error
}

// TextOptions controls fallback behaviour for text, photo and document updates.
type TextOptions struct {
	UnknownText  tele.HandlerFunc
	UnknownMedia tele.HandlerFunc
}

// TextRoutes builds handlers for text, photo and document routing.
// Documents reach the flow only when they are images.
func TextRoutes(flow Flow, reg *tg.Registry, opts TextOptions) []tg.Route {
	inFlow := func(c tele.Context) bool {
		if flow == nil || c.Sender() == nil {
			return false
		}
		return flow.InProgress(tghelpers.BuildContext(c), c.Sender().ID)
	}

	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if inFlow(c) && !strings.HasPrefix(strings.TrimSpace(text), "/") {
			return summarize("flow", start).run(c, flow.Handle)
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(firstWord(text)); ok && cmd.Handler != nil {
				name := handlerName(key)
				return summarize(name, start).run(c, cmd.Handler)
			}
			if fb := reg.TextFallback(); fb != nil {
				return summarize("fallback", start).run(c, fb)
			}
		}

		if opts.UnknownText != nil {
			return summarize("unknown_text", start).run(c, opts.UnknownText)
		}

		summarize("unknown_text", start).skip(c)
		return nil
	}

	mediaHandler := func(c tele.Context) error {
		start := time.Now()
		if inFlow(c) && isImage(c.Message()) {
			return summarize("flow_media", start).run(c, flow.Handle)
		}
		if opts.UnknownMedia != nil {
			return summarize("unexpected_media", start).run(c, opts.UnknownMedia)
		}
		summarize("unexpected_media", start).skip(c)
		return nil
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(handler)},
		{Endpoint: tele.OnPhoto, Handler: wrap(mediaHandler)},
		{Endpoint: tele.OnDocument, Handler: wrap(mediaHandler)},
	}
}

func isImage(m *tele.Message) bool {
	if m == nil {
		return false
	}
	if m.Photo != nil {
		return true
	}
	return m.Document != nil && strings.HasPrefix(strings.ToLower(m.Document.MIME), "image/")
}

func firstWord(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		text = text[:i]
	}
	// Drop a trailing @botname from group commands.
	if i := strings.Index(text, "@"); i > 0 {
		text = text[:i]
	}
	return text
}
