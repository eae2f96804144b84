package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return b
}

func messageFrom(b *tele.Bot, id int, userID int64) tele.Context {
	return b.NewContext(tele.Update{
		ID: id,
		Message: &tele.Message{
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			Text:   "hola",
		},
	})
}

func callbackFrom(b *tele.Bot, id int, userID int64) tele.Context {
	return b.NewContext(tele.Update{
		ID: id,
		Callback: &tele.Callback{
			Sender: &tele.User{ID: userID},
			Data:   "\fwallet",
		},
	})
}

func TestRateLimitPerUser(t *testing.T) {
	b := offlineBot(t)
	var limited, dropped []string
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		Burst:     1,
		Exclude:   map[string]struct{}{"callback": {}},
		OnLimited: func(tele.Context) error { limited = append(limited, "x"); return nil },
		Observe:   func(kind string) { dropped = append(dropped, kind) },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(messageFrom(b, 1, 10)))
	require.NoError(t, h(messageFrom(b, 2, 10)))
	require.NoError(t, h(messageFrom(b, 3, 11)))
	require.NoError(t, h(callbackFrom(b, 4, 10)))

	assert.Equal(t, 3, calls)
	assert.Len(t, limited, 1)
	assert.Equal(t, []string{"message"}, dropped)
}

func TestRateLimitBurst(t *testing.T) {
	b := offlineBot(t)
	calls := 0
	h := RateLimitMiddleware(RateLimitOptions{Interval: time.Hour, Burst: 2})(func(tele.Context) error {
		calls++
		return nil
	})
	for i := 1; i <= 3; i++ {
		require.NoError(t, h(messageFrom(b, i, 5)))
	}
	assert.Equal(t, 2, calls)
}

func TestRateLimitDisabled(t *testing.T) {
	b := offlineBot(t)
	calls := 0
	h := RateLimitMiddleware(RateLimitOptions{})(func(tele.Context) error { calls++; return nil })
	for i := 1; i <= 3; i++ {
		require.NoError(t, h(messageFrom(b, i, 5)))
	}
	assert.Equal(t, 3, calls)
}

func TestLimiterSetEvictsIdleUsers(t *testing.T) {
	set := newLimiterSet(time.Hour, 1)
	now := time.Now()
	assert.True(t, set.allow(1, now))
	assert.False(t, set.allow(1, now.Add(time.Second)))

	later := now.Add(2 * limiterIdleTTL)
	assert.True(t, set.allow(2, later))
	_, kept := set.users[1]
	assert.False(t, kept)
}

func TestRecoverMiddlewareTurnsPanicIntoError(t *testing.T) {
	b := offlineBot(t)
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })

	var err error
	assert.NotPanics(t, func() { err = h(messageFrom(b, 1, 7)) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.ErrorIs(t, err, ErrPanic)
}

func TestAdminOnlyMiddleware(t *testing.T) {
	b := offlineBot(t)
	rejected := 0
	mw := AdminOnlyMiddleware(AdminOptions{
		AdminID:  99,
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(messageFrom(b, 1, 99)))
	require.NoError(t, h(messageFrom(b, 2, 5)))
	require.NoError(t, h(b.NewContext(tele.Update{ID: 3})))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, rejected)
}

func TestAdminOnlyMiddlewareAllowList(t *testing.T) {
	b := offlineBot(t)
	calls := 0
	h := AdminOnlyMiddleware(AdminOptions{Allow: []int64{5}})(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(messageFrom(b, 1, 5)))
	require.NoError(t, h(messageFrom(b, 2, 6)))
	assert.Equal(t, 1, calls)
}

func TestObserveMiddleware(t *testing.T) {
	b := offlineBot(t)
	var kinds []string
	var errs []error
	boom := errors.New("boom")
	h := ObserveMiddleware(func(kind string, err error, took time.Duration) {
		kinds = append(kinds, kind)
		errs = append(errs, err)
		assert.GreaterOrEqual(t, took, time.Duration(0))
	})(func(c tele.Context) error {
		if c.Callback() != nil {
			return boom
		}
		return nil
	})

	require.NoError(t, h(messageFrom(b, 1, 1)))
	require.ErrorIs(t, h(callbackFrom(b, 2, 1)), boom)

	assert.Equal(t, []string{"message", "callback"}, kinds)
	assert.Nil(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
}

func TestLoggerMiddlewareStoresRID(t *testing.T) {
	b := offlineBot(t)
	c := messageFrom(b, 41, 8)
	h := LoggerMiddleware(func(c tele.Context) error { return nil })

	require.NoError(t, h(c))
	rid, _ := c.Get("rid").(string)
	assert.NotEmpty(t, rid)
}

func TestSeenUpdatesDeduplicates(t *testing.T) {
	s := &seenUpdates{ids: make(map[int]time.Time), keepFor: time.Minute}
	now := time.Unix(1_700_000_000, 0)

	assert.True(t, s.first(1, now))
	assert.False(t, s.first(1, now.Add(time.Second)))
	assert.True(t, s.first(2, now.Add(time.Second)))
	assert.True(t, s.first(1, now.Add(2*time.Minute)))
	assert.Len(t, s.ids, 1)
}

func TestUpdateKind(t *testing.T) {
	assert.Equal(t, "callback", UpdateKind(tele.Update{Callback: &tele.Callback{}}))
	assert.Equal(t, "message", UpdateKind(tele.Update{Message: &tele.Message{}}))
	assert.Equal(t, "inline_query", UpdateKind(tele.Update{Query: &tele.Query{}}))
	assert.Equal(t, "other", UpdateKind(tele.Update{}))
}
