package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/walletbot/wallet/domain"
)

const defaultKeyPrefix = "walletbot:session:"

// RedisStore keeps sessions as JSON values with a Redis-side expiry.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisStore wraps client. Expiry is delegated to Redis via SET EX; a
// zero ttl stores keys without expiry.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, ttl: ttl, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10)
}

// Get loads the session of userID.
func (s *RedisStore) Get(ctx context.Context, userID int64) (Session, bool, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("session get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, false, fmt.Errorf("session decode %d: %w: %v", userID, domain.ErrCorruptSession, err)
	}
	return sess, true, nil
}

// Put writes sess and resets its expiry.
func (s *RedisStore) Put(ctx context.Context, sess Session) error {
	sess.UpdatedAt = s.now()
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session put: %w", err)
	}
	return nil
}

// Remove deletes the session of userID.
func (s *RedisStore) Remove(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("session remove: %w", err)
	}
	return nil
}
