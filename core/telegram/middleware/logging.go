package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/walletbot/core/telegram/helpers"
)

// seenUpdates remembers update ids for keepFor so one update that passes
// both a global and a route-level LoggerMiddleware is logged once.
type seenUpdates struct {
	mu      sync.Mutex
	ids     map[int]time.Time
	keepFor time.Duration
	swept   time.Time
}

var receipts = &seenUpdates{ids: make(map[int]time.Time), keepFor: 10 * time.Second}

// first reports whether id is seen for the first time within keepFor.
func (s *seenUpdates) first(id int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.swept) > s.keepFor {
		for k, ts := range s.ids {
			if now.Sub(ts) > s.keepFor {
				delete(s.ids, k)
			}
		}
		s.swept = now
	}
	if ts, ok := s.ids[id]; ok && now.Sub(ts) <= s.keepFor {
		return false
	}
	s.ids[id] = now
	return true
}

// LoggerMiddleware attaches the request context (rid and update ids) to c and
// logs a sampled update.received line once per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, ok := c.Get("update_start").(time.Time); !ok {
			c.Set("update_start", time.Now())
		}
		ctx := tghelpers.BuildContext(c)
		upd := c.Update()
		if logger.ShouldSampleDebug() && receipts.first(upd.ID, time.Now()) {
			logger.Debug(ctx, "tg", "update.received", receiptAttrs(c, upd)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context, upd tele.Update) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("kind", UpdateKind(upd)),
	}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}

	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		attrs = append(attrs,
			slog.String("cb_key", logger.SanitizeLimit(key, 128)),
			slog.String("payload", logger.SanitizeLimit(payload, 256)),
		)
	case upd.Message != nil:
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(c.Text(), 256)))
		if upd.Message.Photo != nil {
			attrs = append(attrs, slog.Bool("photo", true))
		}
		if doc := upd.Message.Document; doc != nil {
			attrs = append(attrs, slog.String("mime", doc.MIME))
		}
	}
	return attrs
}
