package cachesvc

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	srv, client := setupRedis(t)
	cache := NewRedisCache(client)

	_, err := cache.Get(ctx, "missing")
	assert.Equal(t, ErrCacheMiss, err)

	require.NoError(t, cache.Set(ctx, "privacy:usr-1", `{"email":"friends"}`, time.Minute))
	val, err := cache.Get(ctx, "privacy:usr-1")
	require.NoError(t, err)
	assert.Equal(t, `{"email":"friends"}`, val)

	// value expires with its TTL
	srv.FastForward(2 * time.Minute)
	_, err = cache.Get(ctx, "privacy:usr-1")
	assert.Equal(t, ErrCacheMiss, err)

	require.NoError(t, cache.Set(ctx, "k", "v", 0))
	require.NoError(t, cache.Delete(ctx, "k"))
	_, err = cache.Get(ctx, "k")
	assert.Equal(t, ErrCacheMiss, err)
}

func TestRedisAttemptLimiter(t *testing.T) {
	ctx := context.Background()
	srv, client := setupRedis(t)
	limiter := NewRedisAttemptLimiter(client, time.Minute)

	for want := 1; want <= 3; want++ {
		count, err := limiter.Hit(ctx, "pwdreset:usr-1")
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}

	// independent keys count independently
	count, err := limiter.Hit(ctx, "pwdreset:usr-2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, limiter.Reset(ctx, "pwdreset:usr-1"))
	count, err = limiter.Hit(ctx, "pwdreset:usr-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// the window expires stale counters
	srv.FastForward(2 * time.Minute)
	count, err = limiter.Hit(ctx, "pwdreset:usr-2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
