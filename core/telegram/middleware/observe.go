package middleware

import (
	"time"

	tele "gopkg.in/telebot.v4"
)

// Observer receives the outcome of every handled update.
type Observer func(kind string, err error, took time.Duration)

// ObserveMiddleware reports each update to observe once the chain returns.
func ObserveMiddleware(observe Observer) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if observe == nil {
			return next
		}
		return func(c tele.Context) error {
			start := time.Now()
			err := next(c)
			observe(UpdateKind(c.Update()), err, time.Since(start))
			return err
		}
	}
}
