// Package lockx provides best-effort single-flight over Redis. A lock expires
// on its own after the TTL, so a crashed holder never wedges the key.
package lockx

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Compare-and-delete: an expired holder must not release a newer owner's lock.
var unlockScript = redis.NewScript(
	`if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`,
)

type lease struct {
	client *redis.Client
	key    string
	token  string
}

// release runs on a fresh context; the caller's context is often already
// canceled when this fires during shutdown.
func (l *lease) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// WithLock runs fn while holding key. It returns false without running fn
// when another process already holds the key.
func WithLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration, fn func(context.Context) error) (bool, error) {
	if client == nil {
		return false, errors.New("lockx: redis client is nil")
	}
	if key == "" {
		return false, errors.New("lockx: key is empty")
	}
	if ttl <= 0 {
		return false, errors.New("lockx: ttl must be positive")
	}

	token := uuid.NewString()
	acquired, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !acquired {
		return false, err
	}

	l := &lease{client: client, key: key, token: token}
	defer l.release()
	return true, fn(ctx)
}
