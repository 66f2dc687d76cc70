package notify

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/bundleforge/bferr"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "bundleforge:events"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// RedisConfig configures the Redis pub/sub publisher.
type RedisConfig struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default DefaultChannel).
	Channel string
	// Timeout is the per-publish timeout (default DefaultTimeout).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default DefaultRetries).
	Retries int
}

// RedisAdapter publishes lifecycle events via Redis PUBLISH, retrying
// with exponential backoff on connection errors. Grounded on
// quarry/adapter/redis/redis.go's Adapter, generalized from a single
// run-completion event to the three bundle lifecycle events this
// engine emits.
type RedisAdapter struct {
	config RedisConfig
	client *goredis.Client
}

// NewRedisAdapter builds a RedisAdapter from cfg, applying the same
// defaults quarry/adapter/redis/redis.go applies for an unset channel,
// timeout, or retry count.
func NewRedisAdapter(cfg RedisConfig) (*RedisAdapter, error) {
	if cfg.URL == "" {
		return nil, bferr.New(bferr.InvalidArgument, "notify.NewRedisAdapter")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, bferr.Wrap(bferr.InvalidArgument, "notify.NewRedisAdapter", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, bferr.New(bferr.InvalidArgument, "notify.NewRedisAdapter")
	}

	return &RedisAdapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish sends event as a JSON PUBLISH to the configured channel,
// retrying with exponential backoff on failure.
func (a *RedisAdapter) Publish(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return bferr.Wrap(bferr.Unexpected, "notify.RedisAdapter.Publish", err)
	}

	var lastErr error
	attempts := 1 + a.config.Retries

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return bferr.Wrap(bferr.Cancelled, "notify.RedisAdapter.Publish", err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return bferr.Wrap(bferr.Cancelled, "notify.RedisAdapter.Publish", ctx.Err())
			case <-time.After(backoff):
			}
		}

		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		lastErr = a.client.Publish(publishCtx, a.config.Channel, body).Err()
		cancel()

		if lastErr == nil {
			return nil
		}
	}

	return bferr.Wrap(bferr.IO, "notify.RedisAdapter.Publish", lastErr).WithBundle(event.BundleID)
}

// Close releases the underlying Redis client.
func (a *RedisAdapter) Close() error {
	return a.client.Close()
}

var _ Publisher = (*RedisAdapter)(nil)
