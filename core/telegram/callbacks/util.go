// Package callbacks encodes and decodes the data carried by inline buttons.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// MaxDataLen is the Bot API limit for callback_data in bytes.
const MaxDataLen = 64

const (
	marker    = "\f"
	separator = "|"
)

// Encode renders unique and payload the way Telebot does for data buttons.
func Encode(unique, payload string) string {
	if payload == "" {
		return marker + unique
	}
	return marker + unique + separator + payload
}

// Fits reports whether the encoded button data stays within MaxDataLen.
func Fits(unique, payload string) bool {
	return len(Encode(unique, payload)) <= MaxDataLen
}

// ParseCallbackData splits callback data into unique key and payload.
// Callbacks Telebot already split (Unique set) are returned as is.
func ParseCallbackData(cb *tele.Callback) (unique, payload string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	unique, payload, _ = strings.Cut(strings.TrimPrefix(cb.Data, marker), separator)
	return strings.TrimSpace(unique), strings.TrimSpace(payload)
}
