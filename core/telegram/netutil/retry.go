// Package netutil decides which Bot API failures are transient.
package netutil

import (
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"

	tele "gopkg.in/telebot.v4"
)

// transient lists low-level errors a retry usually clears.
var transient = []error{
	io.ErrUnexpectedEOF,
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.EPIPE,
}

// ShouldRetry reports whether err is worth retrying: flood waits, Bot API
// 5xx answers, timeouts, failed dials and dropped connections. Any other
// client error is final.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return true
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 500
	}

	for _, t := range transient {
		if errors.Is(err, t) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
		return ShouldRetry(urlErr.Err)
	}
	return false
}
