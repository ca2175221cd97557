// Package cachex wraps the shared Redis client. Callers treat the cache as
// optional; every helper degrades to a miss when the client is absent.
package cachex

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/esheo1787/qc-management-system/shared/config"
)

type Client struct {
	rdb *redis.Client
}

// New dials Redis and verifies it answers before returning a Client.
func New(cfg config.Config) (*Client, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("cachex: REDIS_ADDR is empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Client exposes the underlying connection for callers that need raw Redis
// commands, such as the scan lock.
func (c *Client) Client() *redis.Client {
	if c == nil {
		return nil
	}
	return c.rdb
}

// GetJSON reads key into dest. The bool reports a hit; an absent client and
// a missing key both read as a miss.
func (c *Client) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, nil
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// GetOrSetJSON returns the value cached under key, loading and storing it on
// a miss. Cache failures degrade to the loaded value; only load and
// marshaling errors reach the caller.
func (c *Client) GetOrSetJSON(ctx context.Context, key string, ttl time.Duration, dest any, load func(context.Context) (any, error)) error {
	if hit, err := c.GetJSON(ctx, key, dest); err == nil && hit {
		return nil
	}

	value, err := load(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.rdb != nil {
		_ = c.rdb.Set(ctx, key, raw, ttl).Err()
	}
	return json.Unmarshal(raw, dest)
}

// Delete removes key. Deleting through an absent client is a no-op.
func (c *Client) Delete(ctx context.Context, key string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, key).Err()
}
