package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 3 * time.Second

// OpenRedis connects the store backing the idempotency middleware. A dead
// Redis at boot is a configuration problem, so the ping failure surfaces
// to the caller instead of being retried here.
func OpenRedis(addr string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:        addr,
		DB:          db,
		DialTimeout: pingTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return c, nil
}
