package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/walletbot/core/telegram"
	tghelpers "github.com/m3rciful/walletbot/core/telegram/helpers"
	"github.com/m3rciful/walletbot/wallet/action"
	"github.com/m3rciful/walletbot/wallet/conversation"
	"github.com/m3rciful/walletbot/wallet/notify"
)

type fakeEngine struct {
	inputs []conversation.Input
	err    error
}

func (f *fakeEngine) Handle(_ context.Context, in conversation.Input) error {
	f.inputs = append(f.inputs, in)
	return f.err
}

type fakeSessions map[int64]bool

func (f fakeSessions) InProgress(_ context.Context, userID int64) bool { return f[userID] }

// capturingContext records replies instead of calling the Bot API.
type capturingContext struct {
	tele.Context
	sent []interface{}
}

func (c *capturingContext) Send(what interface{}, _ ...interface{}) error {
	c.sent = append(c.sent, what)
	return nil
}

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return b
}

func user() *tele.User {
	return &tele.User{ID: 42, FirstName: "Ana", LastName: "Pérez", Username: "ana"}
}

func message(b *tele.Bot, m *tele.Message) *capturingContext {
	m.Sender = user()
	m.Chat = &tele.Chat{ID: 42, Type: tele.ChatPrivate}
	return &capturingContext{Context: b.NewContext(tele.Update{ID: 1, Message: m})}
}

func newAdapter(t *testing.T) (*Adapter, *fakeEngine, *tg.Registry) {
	t.Helper()
	tghelpers.SetDispatcher(nil)
	eng := &fakeEngine{}
	a := New(eng, fakeSessions{42: true})
	reg := tg.NewRegistry()
	require.NoError(t, a.Register(reg))
	return a, eng, reg
}

func TestRegisterCommandsAndCallbacks(t *testing.T) {
	_, _, reg := newAdapter(t)

	assert.Len(t, reg.Commands(), 5)
	assert.True(t, reg.Commands()["/pending"].AdminOnly)
	assert.Len(t, reg.ListCallbacks(), len(action.Known()))

	visible := reg.ListCommands(true)
	assert.Len(t, visible, 4)
}

func TestCallbackBecomesAction(t *testing.T) {
	a, eng, reg := newAdapter(t)
	h, ok := reg.GetCallback(string(action.PayNow))
	require.True(t, ok)

	b := offlineBot(t)
	c := b.NewContext(tele.Update{ID: 2, Callback: &tele.Callback{Sender: user(), Data: "\fpay_now|ff-100:cup"}})
	require.NoError(t, h(c))

	require.Len(t, eng.inputs, 1)
	in := eng.inputs[0]
	assert.Equal(t, conversation.KindAction, in.Kind)
	assert.Equal(t, action.PayNow, in.Action.Tag)
	assert.Equal(t, "ff-100", in.Action.Param(0))
	assert.Equal(t, "cup", in.Action.Param(1))
	assert.Equal(t, "Ana Pérez", in.DisplayName)
	assert.Equal(t, "ana", in.Username)
	assert.True(t, a.InProgress(context.Background(), 42))
}

func TestCommandsMapToInputs(t *testing.T) {
	_, eng, reg := newAdapter(t)
	b := offlineBot(t)

	require.NoError(t, reg.Commands()["/start"].Handler(message(b, &tele.Message{Text: "/start"})))
	require.NoError(t, reg.Commands()["/balance"].Handler(message(b, &tele.Message{Text: "/balance"})))
	require.NoError(t, reg.Commands()["/cancel"].Handler(message(b, &tele.Message{Text: "/cancel"})))

	require.Len(t, eng.inputs, 3)
	assert.Equal(t, conversation.KindStart, eng.inputs[0].Kind)
	assert.Equal(t, action.Wallet, eng.inputs[1].Action.Tag)
	assert.Equal(t, action.Cancel, eng.inputs[2].Action.Tag)
}

func TestHandleTextAndImages(t *testing.T) {
	a, eng, _ := newAdapter(t)
	b := offlineBot(t)

	require.NoError(t, a.Handle(message(b, &tele.Message{Text: "1500"})))
	require.NoError(t, a.Handle(message(b, &tele.Message{Photo: &tele.Photo{File: tele.File{FileID: "photo-1"}}})))
	require.NoError(t, a.Handle(message(b, &tele.Message{Document: &tele.Document{File: tele.File{FileID: "doc-1"}, MIME: "image/jpeg"}})))

	require.Len(t, eng.inputs, 3)
	assert.Equal(t, conversation.KindText, eng.inputs[0].Kind)
	assert.Equal(t, "1500", eng.inputs[0].Text)
	assert.Equal(t, conversation.KindImage, eng.inputs[1].Kind)
	assert.Equal(t, "photo-1", eng.inputs[1].ImageRef)
	assert.Equal(t, "document:doc-1", eng.inputs[2].ImageRef)
}

func TestEngineFailureRepliesAndReturns(t *testing.T) {
	a, eng, _ := newAdapter(t)
	eng.err = errors.New("db down")
	b := offlineBot(t)
	c := message(b, &tele.Message{Text: "1500"})

	err := a.Handle(c)
	require.ErrorContains(t, err, "db down")
	require.Len(t, c.sent, 1)
	assert.Equal(t, textFailure, c.sent[0])
}

type fakeSender struct {
	to   []tele.Recipient
	what []interface{}
	opts [][]interface{}
	err  error
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.to = append(f.to, to)
	f.what = append(f.what, what)
	f.opts = append(f.opts, opts)
	return &tele.Message{}, f.err
}

func TestNotifierSendsTextWithKeyboard(t *testing.T) {
	tghelpers.SetDispatcher(nil)
	n := NewNotifier()
	msg := notify.Message{
		Text: "Depósito #7",
		Buttons: [][]notify.Button{notify.Row(
			notify.Btn("Aprobar", action.Approve, "7"),
			notify.Btn("Rechazar", action.Reject, "7"),
		)},
	}
	require.ErrorIs(t, n.Notify(context.Background(), 9, msg), ErrDetached)

	s := &fakeSender{}
	n.Attach(s)
	require.NoError(t, n.Notify(context.Background(), 9, msg))

	require.Len(t, s.to, 1)
	assert.Equal(t, "9", s.to[0].Recipient())
	assert.Equal(t, "Depósito #7", s.what[0])
	require.Len(t, s.opts[0], 1)
	opts, ok := s.opts[0][0].(*tele.SendOptions)
	require.True(t, ok)
	row := opts.ReplyMarkup.InlineKeyboard[0]
	assert.Equal(t, "approve", row[0].Unique)
	assert.Equal(t, "7", row[0].Data)
	assert.Equal(t, "reject", row[1].Unique)
}

func TestNotifierSendsPhoto(t *testing.T) {
	tghelpers.SetDispatcher(nil)
	n := NewNotifier()
	s := &fakeSender{err: errors.New("blocked")}
	n.Attach(s)

	err := n.Notify(context.Background(), 5, notify.Message{Text: "Comprobante", FileRef: "file-1"})
	require.ErrorContains(t, err, "blocked")

	photo, ok := s.what[0].(*tele.Photo)
	require.True(t, ok)
	assert.Equal(t, "file-1", photo.FileID)
	assert.Equal(t, "Comprobante", photo.Caption)
	assert.Empty(t, s.opts[0])
}

func TestMarkupEmpty(t *testing.T) {
	assert.Nil(t, Markup(nil))
}

func TestNotifierSendsImageDocumentAsDocument(t *testing.T) {
	tghelpers.SetDispatcher(nil)
	n := NewNotifier()
	s := &fakeSender{}
	n.Attach(s)

	require.NoError(t, n.Notify(context.Background(), 5, notify.Message{
		Text:    "Comprobante",
		FileRef: notify.DocumentRef("doc-9"),
	}))

	require.Len(t, s.what, 1)
	doc, ok := s.what[0].(*tele.Document)
	require.True(t, ok)
	assert.Equal(t, "doc-9", doc.FileID)
	assert.Equal(t, "Comprobante", doc.Caption)
}
