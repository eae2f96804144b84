// Package keyboard builds inline keyboards.
package keyboard

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/core/telegram/callbacks"
)

// InlineBtn is a data button, or a link button when URL is set.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
	URL    string
}

func (b InlineBtn) inline(markup *tele.ReplyMarkup) (tele.InlineButton, bool) {
	if b.URL != "" {
		return *markup.URL(b.Text, b.URL).Inline(), true
	}
	if b.Unique == "" || !callbacks.Fits(b.Unique, b.Data) {
		logger.Warn(context.Background(), "tg", "keyboard.button.skip",
			slog.String("cb_key", b.Unique),
			slog.Int("data_len", len(callbacks.Encode(b.Unique, b.Data))),
		)
		return tele.InlineButton{}, false
	}
	return *markup.Data(b.Text, b.Unique, b.Data).Inline(), true
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn.
// Buttons whose data exceeds the Bot API limit are dropped, then empty
// rows; nil is returned when no button remains.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	for _, row := range rows {
		var r []tele.InlineButton
		for _, btn := range row {
			if ib, ok := btn.inline(markup); ok {
				r = append(r, ib)
			}
		}
		if len(r) > 0 {
			markup.InlineKeyboard = append(markup.InlineKeyboard, r)
		}
	}
	if len(markup.InlineKeyboard) == 0 {
		return nil
	}
	return markup
}
