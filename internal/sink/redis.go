// internal/sink/redis.go
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Redis defaults.
const (
	DefaultRedisChannel = "labjack:acquisition"
	DefaultRedisTimeout = 5 * time.Second
)

// RedisConfig configures the Redis publisher.
type RedisConfig struct {
	// URL is redis://[:password@]host:port[/db].
	URL     string
	Channel string
	Timeout time.Duration // per publish
	Retries int
}

// Redis publishes a JSON run summary with PUBLISH, retrying with
// exponential backoff.
type Redis struct {
	config  RedisConfig
	client  *goredis.Client
	backoff time.Duration
}

func NewRedis(c RedisConfig) (*Redis, error) {
	if c.URL == "" {
		return nil, errors.New("redis: URL is required")
	}
	opts, err := goredis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}
	if c.Channel == "" {
		c.Channel = DefaultRedisChannel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultRedisTimeout
	}
	if c.Retries < 0 {
		return nil, fmt.Errorf("redis: retries must be >= 0, got %d", c.Retries)
	}
	return &Redis{config: c, client: goredis.NewClient(opts), backoff: 500 * time.Millisecond}, nil
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Deliver(ctx context.Context, run *Run) error {
	body, err := json.Marshal(NewSummary(run))
	if err != nil {
		return fmt.Errorf("redis: marshal summary: %w", err)
	}

	var lastErr error
	attempts := 1 + r.config.Retries
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("redis: context canceled: %w", err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("redis: context canceled during backoff: %w", ctx.Err())
			case <-time.After(time.Duration(1<<uint(i-1)) * r.backoff):
			}
		}

		pubCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		lastErr = r.client.Publish(pubCtx, r.config.Channel, body).Err()
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("redis: failed after %d attempts: %w", attempts, lastErr)
}

func (r *Redis) Close() error { return r.client.Close() }
