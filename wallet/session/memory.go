package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/wallet/metrics"
)

const shardCount = 16

type shard struct {
	mu    sync.Mutex
	items map[int64]Session
}

// MemoryStore is a sharded in-process Store.
type MemoryStore struct {
	ttl    time.Duration
	now    func() time.Time
	shards [shardCount]*shard
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore returns a store that forgets sessions idle for longer than
// ttl. A ttl of zero keeps sessions until removed.
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{ttl: ttl, now: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[int64]Session)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) shardFor(userID int64) *shard {
	idx := userID % shardCount
	if idx < 0 {
		idx = -idx
	}
	return s.shards[idx]
}

// Get returns the session of userID unless absent or expired.
func (s *MemoryStore) Get(ctx context.Context, userID int64) (Session, bool, error) {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sess, ok := sh.items[userID]
	if !ok {
		return Session{}, false, nil
	}
	if expired(sess, s.ttl, s.now()) {
		delete(sh.items, userID)
		metrics.RecordSessionExpired(1)
		logger.Debug(ctx, "session", "session.expired",
			slog.Int64("user_id", userID),
			slog.String("step", sess.Step.String()),
		)
		return Session{}, false, nil
	}
	return sess, true, nil
}

// Put stores sess and refreshes its activity time.
func (s *MemoryStore) Put(_ context.Context, sess Session) error {
	sess.UpdatedAt = s.now()
	sh := s.shardFor(sess.UserID)
	sh.mu.Lock()
	sh.items[sess.UserID] = sess
	sh.mu.Unlock()
	return nil
}

// Remove deletes the session of userID if present.
func (s *MemoryStore) Remove(_ context.Context, userID int64) error {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	delete(sh.items, userID)
	sh.mu.Unlock()
	return nil
}

// Len reports the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.items)
		sh.mu.Unlock()
	}
	return n
}

// Sweep drops expired sessions and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, sess := range sh.items {
			if expired(sess, s.ttl, now) {
				delete(sh.items, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.Sweep()
			active := s.Len()
			metrics.RecordSessionExpired(removed)
			metrics.SetSessionsActive(active)
			if removed > 0 {
				logger.Info(ctx, "session", "session.sweep",
					slog.Int("count", removed),
					slog.Int("pending_count", active),
				)
			}
		}
	}
}
