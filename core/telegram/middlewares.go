package telegram

import (
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/walletbot/core/config"
	"github.com/m3rciful/walletbot/core/telegram/middleware"
)

// MiddlewareHooks lets a bot observe the shared chain.
type MiddlewareHooks struct {
	OnLimited func(tele.Context) error
	// Limited is told the update kind of every throttled update.
	Limited func(kind string)
	// Observe receives every update that passed the rate limit.
	Observe middleware.Observer
}

// DefaultMiddlewares returns recover, rate_limit (when configured), logger
// and observe (when hooked), in that order.
func DefaultMiddlewares(cfg *coreconfig.Config, hooks MiddlewareHooks) []Middleware {
	chain := []Middleware{{Name: "recover", Use: middleware.RecoverMiddleware}}
	if limit, ok := rateLimit(cfg, hooks); ok {
		chain = append(chain, limit)
	}
	chain = append(chain, Middleware{Name: "logger", Use: middleware.LoggerMiddleware})
	if hooks.Observe != nil {
		chain = append(chain, Middleware{Name: "observe", Use: middleware.ObserveMiddleware(hooks.Observe)})
	}
	return chain
}

func rateLimit(cfg *coreconfig.Config, hooks MiddlewareHooks) (Middleware, bool) {
	if cfg == nil || cfg.RateLimit.IntervalMS <= 0 {
		return Middleware{}, false
	}
	exclude := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
	for _, kind := range cfg.RateLimit.ExcludeUpdates {
		exclude[strings.ToLower(kind)] = struct{}{}
	}
	return Middleware{
		Name: "rate_limit",
		Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
			Interval:  time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
			Burst:     cfg.RateLimit.Burst,
			Exclude:   exclude,
			OnLimited: hooks.OnLimited,
			Observe:   hooks.Limited,
		}),
	}, true
}
