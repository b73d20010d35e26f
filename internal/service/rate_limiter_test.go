package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	require.NoError(t, client.FlushDB(context.Background()).Err())
	return client
}

func TestRateLimiter_CheckLimit(t *testing.T) {
	client := newTestRedis(t)
	limiter := NewRateLimiter(client)
	ctx := context.Background()

	t.Run("allows requests within limit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			allowed, _ := limiter.CheckLimit(ctx, "chat:ABCDEF:1", 3, 10*time.Second)
			assert.True(t, allowed, "request %d should be allowed", i+1)
		}

		allowed, resetAt := limiter.CheckLimit(ctx, "chat:ABCDEF:1", 3, 10*time.Second)
		assert.False(t, allowed)
		assert.True(t, resetAt.After(time.Now()))
	})

	t.Run("keys are independent", func(t *testing.T) {
		allowed, _ := limiter.CheckLimit(ctx, "chat:ABCDEF:2", 1, 10*time.Second)
		assert.True(t, allowed)
		allowed, _ = limiter.CheckLimit(ctx, "chat:ABCDEF:3", 1, 10*time.Second)
		assert.True(t, allowed)
	})

	t.Run("window slides", func(t *testing.T) {
		window := 300 * time.Millisecond
		allowed, _ := limiter.CheckLimit(ctx, "join:10.0.0.1", 1, window)
		assert.True(t, allowed)
		allowed, _ = limiter.CheckLimit(ctx, "join:10.0.0.1", 1, window)
		assert.False(t, allowed)

		time.Sleep(window + 100*time.Millisecond)

		allowed, _ = limiter.CheckLimit(ctx, "join:10.0.0.1", 1, window)
		assert.True(t, allowed)
	})
}

func TestRateLimiter_DeniesWhenRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer client.Close()

	limiter := NewRateLimiter(client)
	allowed, resetAt := limiter.CheckLimit(context.Background(), "chat:ABCDEF:1", 5, time.Minute)

	assert.False(t, allowed)
	assert.True(t, resetAt.After(time.Now()))
}
