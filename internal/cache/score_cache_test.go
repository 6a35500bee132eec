package cache

import (
	"context"
	"os"
	"testing"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Needs a reachable redis; set REDIS_TEST_ADDR (e.g. localhost:6379) to run.
func newTestCache(t *testing.T, ttl time.Duration) *ScoreCache {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redisv9.NewClient(&redisv9.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return NewScoreCache(client, ttl)
}

func TestScoreCacheRoundTrip(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()
	key := "test:score:" + t.Name()
	t.Cleanup(func() { c.client.Del(ctx, key) })

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, 0.8731))
	score, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, float32(0.8731), score)

	ttl, err := c.client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestScoreCacheRejectsCorruptValue(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()
	key := "test:score:" + t.Name()
	t.Cleanup(func() { c.client.Del(ctx, key) })

	for _, raw := range []string{"garbage", "NaN", "3", "-0.5"} {
		require.NoError(t, c.client.Set(ctx, key, raw, time.Minute).Err())
		_, ok, err := c.Get(ctx, key)
		assert.Error(t, err, raw)
		assert.False(t, ok, raw)
	}
}
