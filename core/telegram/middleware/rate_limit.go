package middleware

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/walletbot/core/logger"
	tghelpers "github.com/m3rciful/walletbot/core/telegram/helpers"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Burst     int
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// Observe is told the kind of every dropped update.
	Observe func(kind string)
}

type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	users   map[int64]*userLimiter
	swept   time.Time
	idleTTL time.Duration
}

func newLimiterSet(interval time.Duration, burst int) *limiterSet {
	if burst <= 0 {
		burst = 1
	}
	return &limiterSet{
		every:   rate.Every(interval),
		burst:   burst,
		users:   make(map[int64]*userLimiter),
		idleTTL: limiterIdleTTL,
	}
}

func (s *limiterSet) allow(userID int64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.swept) > s.idleTTL {
		for id, u := range s.users {
			if now.Sub(u.lastSeen) > s.idleTTL {
				delete(s.users, id)
			}
		}
		s.swept = now
	}
	u, ok := s.users[userID]
	if !ok {
		u = &userLimiter{lim: rate.NewLimiter(s.every, s.burst)}
		s.users[userID] = u
	}
	u.lastSeen = now
	return u.lim.AllowN(now, 1)
}

// RateLimitMiddleware returns a middleware that throttles each user to one
// update per Interval, allowing Burst updates at once.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	if opts.Interval <= 0 {
		return func(next tele.HandlerFunc) tele.HandlerFunc { return next }
	}
	set := newLimiterSet(opts.Interval, opts.Burst)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil {
				return next(c)
			}
			kind := UpdateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if set.allow(user.ID, time.Now()) {
				return next(c)
			}

			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit",
				slog.String("status", "skip"),
				slog.String("kind", kind),
			)
			if opts.Observe != nil {
				opts.Observe(kind)
			}
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
