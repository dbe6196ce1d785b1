package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisSocketTimeout = time.Second

// NewRedisClient connects to the store behind the per-browser session
// caches, rate limits and idempotency keys. Socket timeouts default to one
// second, below the session verify timeout.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = redisSocketTimeout
	}
	if opt.WriteTimeout == 0 {
		opt.WriteTimeout = redisSocketTimeout
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opt.Addr, err)
	}

	return client, nil
}
