// Package redis provides the optional cache backing tracking history reads.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"medtrace/internal/platform/config"
)

// Client embeds the go-redis client. A nil *Client means the cache is
// disabled and callers fall through to the store.
type Client struct {
	*redis.Client
}

// New connects to the cache named by cfg.URL and verifies the connection.
// An empty URL returns a nil client without error.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health reports whether the cache answers a ping.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
