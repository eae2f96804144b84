// Package notify describes outbound messages independently of the transport.
package notify

import (
	"context"
	"strings"
	"sync"

	"github.com/m3rciful/walletbot/wallet/action"
)

// Button is an inline control bound to an action.
type Button struct {
	Text   string
	Action action.Action
}

// Message is a prompt or notification for one chat. FileRef attaches an
// uploaded file, see DocumentRef.
type Message struct {
	Text    string
	Buttons [][]Button
	FileRef string
}

const documentPrefix = "document:"

// DocumentRef marks fileID as a document upload. Plain file ids are photos.
func DocumentRef(fileID string) string {
	return documentPrefix + fileID
}

// SplitFileRef returns the transport file id of ref and whether it names a
// document rather than a photo.
func SplitFileRef(ref string) (fileID string, document bool) {
	if id, ok := strings.CutPrefix(ref, documentPrefix); ok {
		return id, true
	}
	return ref, false
}

// Notifier delivers messages to users by id.
type Notifier interface {
	Notify(ctx context.Context, userID int64, msg Message) error
}

// Row is shorthand for a single keyboard row.
func Row(buttons ...Button) []Button { return buttons }

// Btn builds a button for tag with params.
func Btn(text string, tag action.Tag, params ...string) Button {
	return Button{Text: text, Action: action.New(tag, params...)}
}

// Sent is a message captured by Recorder.
type Sent struct {
	UserID  int64
	Message Message
}

// Recorder is an in-memory Notifier for tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	Err  error
}

// Notify records msg.
func (r *Recorder) Notify(_ context.Context, userID int64, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, Sent{UserID: userID, Message: msg})
	return nil
}

// Sent returns a copy of all recorded messages.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// To returns the messages recorded for userID.
func (r *Recorder) To(userID int64) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, s := range r.sent {
		if s.UserID == userID {
			out = append(out, s.Message)
		}
	}
	return out
}

// Last returns the most recent message for userID.
func (r *Recorder) Last(userID int64) (Message, bool) {
	msgs := r.To(userID)
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// Reset drops recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}
