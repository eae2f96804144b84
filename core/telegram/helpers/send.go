package helpers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/core/telegram/sender"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the outbound queue used by SendAsync; nil unwires it.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

// Dispatcher returns the queue wired by SetDispatcher, or nil.
func Dispatcher() *sender.Dispatcher {
	return dispatcher.Load()
}

// SendAsync queues run on the wired dispatcher. Without one, or when the
// queue is full or closed, run executes inline so the message is not lost.
func SendAsync(ctx context.Context, action, endpoint string, run func() error) error {
	d := Dispatcher()
	if d == nil {
		return run()
	}
	err := d.Enqueue(ctx, action, endpoint, run)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sender.ErrQueueFull), errors.Is(err, sender.ErrQueueClosed):
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
		return run()
	default:
		return err
	}
}

// SendText sends text to the current chat through the dispatcher. opts are
// passed to tele.Context.Send unchanged.
func SendText(c tele.Context, text string, opts ...any) error {
	return SendAsync(BuildContext(c), "send.text", "sendMessage", func() error {
		return c.Send(text, opts...)
	})
}
