package cachesvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/kwanza/darasa/core"
)

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

func NewRedisClient(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
}

type redisCache struct {
	client *redis.Client
}

var _ core.Cache = (*redisCache)(nil) // interface compliance check

func NewRedisCache(client *redis.Client) core.Cache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

type redisAttemptLimiter struct {
	client *redis.Client
	window time.Duration
}

var _ core.AttemptLimiter = (*redisAttemptLimiter)(nil) // interface compliance check

// NewRedisAttemptLimiter counts hits per key; counters expire after window
// so stale keys do not linger.
func NewRedisAttemptLimiter(client *redis.Client, window time.Duration) core.AttemptLimiter {
	return &redisAttemptLimiter{client: client, window: window}
}

func (l *redisAttemptLimiter) Hit(ctx context.Context, key string) (int, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "recording attempt")
	}
	if count == 1 {
		// first hit starts the window
		if err = l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return int(count), errors.Wrap(err, "setting attempt window")
		}
	}
	return int(count), nil
}

func (l *redisAttemptLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}
