package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/walletbot/core/telegram"
)

// quietContext answers callbacks without calling the Bot API.
type quietContext struct{ tele.Context }

func (quietContext) Respond(...*tele.CallbackResponse) error { return nil }

// answerRecorder keeps every callback answer.
type answerRecorder struct {
	tele.Context
	answers []string
}

func (r *answerRecorder) Respond(resp ...*tele.CallbackResponse) error {
	text := ""
	if len(resp) > 0 && resp[0] != nil {
		text = resp[0].Text
	}
	r.answers = append(r.answers, text)
	return nil
}

type fakeFlow struct {
	active  map[int64]bool
	handled []string
}

func (f *fakeFlow) InProgress(_ context.Context, userID int64) bool { return f.active[userID] }

func (f *fakeFlow) Handle(c tele.Context) error {
	f.handled = append(f.handled, c.Text())
	return nil
}

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return b
}

func routeFor(routes []tg.Route, endpoint string) tele.HandlerFunc {
	for _, r := range routes {
		if r.Endpoint == endpoint {
			return r.Handler
		}
	}
	return nil
}

func textFrom(b *tele.Bot, userID int64, text string) tele.Context {
	return b.NewContext(tele.Update{ID: 1, Message: &tele.Message{
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		Text:   text,
	}})
}

func TestTextRoutesPreferActiveFlow(t *testing.T) {
	b := offlineBot(t)
	flow := &fakeFlow{active: map[int64]bool{1: true}}
	reg := tg.NewRegistry()
	balance := 0
	reg.RegisterCommand("/balance", tg.Command{
		Description: "Saldo",
		Handler:     func(tele.Context) error { balance++; return nil },
	})
	unknown := 0
	h := routeFor(TextRoutes(flow, reg, TextOptions{
		UnknownText: func(tele.Context) error { unknown++; return nil },
	}), tele.OnText)
	require.NotNil(t, h)

	require.NoError(t, h(textFrom(b, 1, "1500")))
	require.NoError(t, h(textFrom(b, 2, "balance")))
	require.NoError(t, h(textFrom(b, 2, "hola")))

	assert.Equal(t, []string{"1500"}, flow.handled)
	assert.Equal(t, 1, balance)
	assert.Equal(t, 1, unknown)
}

func TestMediaRoutesAcceptImagesOnly(t *testing.T) {
	b := offlineBot(t)
	flow := &fakeFlow{active: map[int64]bool{1: true}}
	unexpected := 0
	routes := TextRoutes(flow, nil, TextOptions{
		UnknownMedia: func(tele.Context) error { unexpected++; return nil },
	})
	photo := routeFor(routes, tele.OnPhoto)
	doc := routeFor(routes, tele.OnDocument)
	require.NotNil(t, photo)
	require.NotNil(t, doc)

	msg := func(m *tele.Message) tele.Context {
		m.Sender = &tele.User{ID: 1}
		m.Chat = &tele.Chat{ID: 1}
		return b.NewContext(tele.Update{ID: 2, Message: m})
	}
	require.NoError(t, photo(msg(&tele.Message{Photo: &tele.Photo{File: tele.File{FileID: "p"}}})))
	require.NoError(t, doc(msg(&tele.Message{Document: &tele.Document{MIME: "image/png"}})))
	require.NoError(t, doc(msg(&tele.Message{Document: &tele.Document{MIME: "application/pdf"}})))

	assert.Len(t, flow.handled, 2)
	assert.Equal(t, 1, unexpected)
}

func TestCommandRoutesAdminOnly(t *testing.T) {
	b := offlineBot(t)
	reg := tg.NewRegistry()
	calls := 0
	reg.RegisterCommand("/pending", tg.Command{
		Description: "Pendientes",
		AdminOnly:   true,
		Handler:     func(tele.Context) error { calls++; return nil },
	})
	rejected := 0
	routes := CommandRoutes(reg, CommandRouteOptions{
		AdminID:       9,
		OnAdminReject: func(tele.Context) error { rejected++; return nil },
	})
	require.Len(t, routes, 1)
	h := routes[0].Handler

	require.NoError(t, h(textFrom(b, 9, "/pending")))
	require.NoError(t, h(textFrom(b, 3, "/pending")))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rejected)
}

func TestCallbackRouteDispatchesByUnique(t *testing.T) {
	b := offlineBot(t)
	reg := tg.NewRegistry()
	var payloads []string
	require.NoError(t, reg.RegisterCallback("approve", func(c tele.Context) error {
		payloads = append(payloads, c.Callback().Data)
		return nil
	}))
	missing := 0
	h := CallbackRoute(reg, CallbackOptions{NotFound: func(tele.Context) error { missing++; return nil }}).Handler

	cb := func(data string) tele.Context {
		return quietContext{b.NewContext(tele.Update{ID: 3, Callback: &tele.Callback{
			ID:     "cb",
			Sender: &tele.User{ID: 9},
			Data:   data,
		}})}
	}
	require.NoError(t, h(cb("\fapprove|12")))
	require.NoError(t, h(cb("\fnope|1")))

	assert.Len(t, payloads, 1)
	assert.Equal(t, 1, missing)
}

func TestCallbackRouteAnswersOnce(t *testing.T) {
	b := offlineBot(t)
	reg := tg.NewRegistry()
	require.NoError(t, reg.RegisterCallback("approve", func(tele.Context) error { return nil }))
	cb := func(data string) *answerRecorder {
		return &answerRecorder{Context: b.NewContext(tele.Update{ID: 4, Callback: &tele.Callback{
			ID:     "cb",
			Sender: &tele.User{ID: 9},
			Data:   data,
		}})}
	}

	h := CallbackRoute(reg, CallbackOptions{}).Handler
	unknown := cb("\fnope|1")
	require.NoError(t, h(unknown))
	assert.Equal(t, []string{"Acción no disponible"}, unknown.answers)

	known := cb("\fapprove|1")
	require.NoError(t, h(known))
	assert.Equal(t, []string{""}, known.answers)

	silent := CallbackRoute(reg, CallbackOptions{NotFound: func(tele.Context) error { return nil }}).Handler
	unanswered := cb("\fnope|2")
	require.NoError(t, silent(unanswered))
	assert.Equal(t, []string{""}, unanswered.answers, "spinner is cleared when the fallback stays silent")
}

type codeErr struct{}

func (codeErr) Error() string { return "x" }
func (codeErr) Code() string  { return "not found" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestDeriveErrorCode(t *testing.T) {
	assert.Equal(t, "", deriveErrorCode(nil))
	assert.Equal(t, "NOT_FOUND", deriveErrorCode(codeErr{}))
	assert.Equal(t, "NOT_FOUND", deriveErrorCode(errors.Join(errors.New("wrap"), codeErr{})))
	assert.Equal(t, "PLAINERR", deriveErrorCode(&plainErr{}))
}

func TestFirstWord(t *testing.T) {
	assert.Equal(t, "/balance", firstWord(" /balance@walletbot extra"))
	assert.Equal(t, "hola", firstWord("hola mundo"))
}

func TestHandlerName(t *testing.T) {
	assert.Equal(t, "balance", handlerName(" /Balance "))
	assert.Equal(t, "pay_now", handlerName("pay now"))
	assert.Equal(t, "unknown", handlerName("/"))
}
