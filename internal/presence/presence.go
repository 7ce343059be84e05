// Package presence tracks per-user online status in Redis. Status is
// set when the user's first websocket connection registers and cleared
// when the last one goes away; a TTL covers clients that never manage
// to disconnect cleanly.
package presence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Tracker is the presence side channel consumed by the contact list.
type Tracker interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// RedisTracker stores presence keys with a TTL.
type RedisTracker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisTracker connects to Redis and verifies the connection.
func NewRedisTracker(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisTracker, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisTracker{rdb: rdb, ttl: ttl}, nil
}

func presenceKey(userID string) string { return "chatify:presence:" + userID }

// SetOnline marks the user online and renews the TTL.
func (t *RedisTracker) SetOnline(ctx context.Context, userID string) error {
	return t.rdb.Set(ctx, presenceKey(userID), StatusOnline, t.ttl).Err()
}

// SetOffline clears the user's presence key.
func (t *RedisTracker) SetOffline(ctx context.Context, userID string) error {
	return t.rdb.Del(ctx, presenceKey(userID)).Err()
}

// IsOnline reports whether the user currently has a presence key.
func (t *RedisTracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	err := t.rdb.Get(ctx, presenceKey(userID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NoopTracker is used when Redis is not configured; everyone reads as
// offline.
type NoopTracker struct{}

func (NoopTracker) SetOnline(ctx context.Context, userID string) error  { return nil }
func (NoopTracker) SetOffline(ctx context.Context, userID string) error { return nil }
func (NoopTracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	return false, nil
}
