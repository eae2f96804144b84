package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/walletbot/core/logger"
	tghelpers "github.com/m3rciful/walletbot/core/telegram/helpers"
)

// summary logs one handler.handled line per routed update.
type summary struct {
	name   string
	start  time.Time
	extras []slog.Attr
}

func summarize(name string, start time.Time, extras ...slog.Attr) summary {
	return summary{name: name, start: start, extras: extras}
}

// run records the handler name on c, calls h and logs its result.
func (s summary) run(c tele.Context, h tele.HandlerFunc) error {
	tghelpers.WithHandler(c, s.name)
	err := h(c)
	s.log(c, logger.Status(err), err)
	return err
}

// skip logs an update nobody handled.
func (s summary) skip(c tele.Context) {
	s.log(c, "skip", nil)
}

func (s summary) log(c tele.Context, status string, err error) {
	ctx := tghelpers.WithHandler(c, s.name)
	outcome := logger.Status(err)
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", s.name),
		slog.String("outcome", outcome),
		slog.Duration("duration", logger.Took(s.start)),
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
		)
	}
	attrs = append(attrs, s.extras...)
	logger.LogEvent(ctx, logger.Component("tg"), level, "handler.handled", attrs...)
}

// handlerName turns a command or callback key into a log-friendly name.
func handlerName(name string) string {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	if name == "" {
		return "unknown"
	}
	return strings.ReplaceAll(name, " ", "_")
}

type coder interface{ Code() string }

// deriveErrorCode prefers an explicit Code() anywhere in the chain and
// falls back to the concrete error type name.
func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var c coder
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return upperSnake(code)
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return upperSnake(t.Name())
}

func upperSnake(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, " ", "_"))
}
