package bot

import (
	"context"
	"errors"
	"sync"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/walletbot/core/telegram/helpers"
	"github.com/m3rciful/walletbot/core/telegram/keyboard"
	"github.com/m3rciful/walletbot/wallet/notify"
)

// ErrDetached is returned by Notifier before a bot is attached.
var ErrDetached = errors.New("bot: notifier has no sender attached")

// Sender is the part of *tele.Bot used to deliver messages.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier delivers notify.Message values through Telegram. Sends go through
// the shared outbound dispatcher when one is wired.
type Notifier struct {
	mu     sync.RWMutex
	sender Sender
}

// NewNotifier returns a detached Notifier; call Attach once the bot exists.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Attach sets the sender used for delivery.
func (n *Notifier) Attach(s Sender) {
	n.mu.Lock()
	n.sender = s
	n.mu.Unlock()
}

// Notify implements notify.Notifier.
func (n *Notifier) Notify(ctx context.Context, userID int64, msg notify.Message) error {
	n.mu.RLock()
	s := n.sender
	n.mu.RUnlock()
	if s == nil {
		return ErrDetached
	}

	what, endpoint := content(msg)
	var opts []interface{}
	if markup := Markup(msg.Buttons); markup != nil {
		opts = append(opts, &tele.SendOptions{ReplyMarkup: markup})
	}

	return tghelpers.SendAsync(ctx, "notify", endpoint, func() error {
		_, err := s.Send(tele.ChatID(userID), what, opts...)
		return err
	})
}

// content picks the Bot API payload for msg: plain text, a photo or a
// document carrying the text as caption.
func content(msg notify.Message) (interface{}, string) {
	if msg.FileRef == "" {
		return msg.Text, "sendMessage"
	}
	id, document := notify.SplitFileRef(msg.FileRef)
	if document {
		return &tele.Document{File: tele.File{FileID: id}, Caption: msg.Text}, "sendDocument"
	}
	return &tele.Photo{File: tele.File{FileID: id}, Caption: msg.Text}, "sendPhoto"
}

// Markup converts button rows into an inline keyboard. The action tag becomes
// the callback unique and its params the payload.
func Markup(rows [][]notify.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]keyboard.InlineBtn, 0, len(rows))
	for _, row := range rows {
		r := make([]keyboard.InlineBtn, 0, len(row))
		for _, b := range row {
			r = append(r, keyboard.InlineBtn{
				Text:   b.Text,
				Unique: string(b.Action.Tag),
				Data:   b.Action.Payload(),
			})
		}
		out = append(out, r)
	}
	return keyboard.InlineButtonsRows(out...)
}
