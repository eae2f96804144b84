package session

import (
	"context"

	"github.com/m3rciful/walletbot/core/keylock"
)

// Manager serializes every access to one user's session.
type Manager struct {
	store Store
	locks *keylock.Locker[int64]
}

// NewManager wraps store with per-user locking.
func NewManager(store Store) *Manager {
	return &Manager{store: store, locks: keylock.New[int64]()}
}

// Entry is the locked view of a single user's session handed to With.
type Entry struct {
	store  Store
	userID int64
}

// UserID returns the owner of the entry.
func (e Entry) UserID() int64 { return e.userID }

// Get loads the current session.
func (e Entry) Get(ctx context.Context) (Session, bool, error) {
	return e.store.Get(ctx, e.userID)
}

// Put replaces the session. The owner is always the entry's user.
func (e Entry) Put(ctx context.Context, s Session) error {
	s.UserID = e.userID
	return e.store.Put(ctx, s)
}

// Remove destroys the session.
func (e Entry) Remove(ctx context.Context) error {
	return e.store.Remove(ctx, e.userID)
}

// With runs fn while holding userID's lock. Calls for the same user run one
// at a time in arrival order.
func (m *Manager) With(ctx context.Context, userID int64, fn func(context.Context, Entry) error) error {
	return m.locks.Do(ctx, userID, func(ctx context.Context) error {
		return fn(ctx, Entry{store: m.store, userID: userID})
	})
}

// Get reads the session of userID under its lock.
func (m *Manager) Get(ctx context.Context, userID int64) (Session, bool, error) {
	var (
		out   Session
		found bool
	)
	err := m.With(ctx, userID, func(ctx context.Context, e Entry) error {
		var err error
		out, found, err = e.Get(ctx)
		return err
	})
	return out, found, err
}

// Put stores s under its owner's lock.
func (m *Manager) Put(ctx context.Context, s Session) error {
	return m.With(ctx, s.UserID, func(ctx context.Context, e Entry) error {
		return e.Put(ctx, s)
	})
}

// Remove deletes the session of userID under its lock.
func (m *Manager) Remove(ctx context.Context, userID int64) error {
	return m.With(ctx, userID, func(ctx context.Context, e Entry) error {
		return e.Remove(ctx)
	})
}

// InProgress reports whether userID has an active session.
func (m *Manager) InProgress(ctx context.Context, userID int64) bool {
	_, found, err := m.Get(ctx, userID)
	return err == nil && found
}
