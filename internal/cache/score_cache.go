package cache

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// ScoreCache stores raw model scores keyed by image content, so that the
// threshold decision is always re-applied with the current settings.
type ScoreCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewScoreCache(client *redisv9.Client, ttl time.Duration) *ScoreCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ScoreCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *ScoreCache) Get(ctx context.Context, key string) (float32, bool, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if err == redisv9.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get score failed: %w", err)
	}

	score, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, false, fmt.Errorf("parse cached score %q failed: %w", raw, err)
	}
	if math.IsNaN(score) || score < 0 || score > 1 {
		return 0, false, fmt.Errorf("cached score %q out of range", raw)
	}
	return float32(score), true, nil
}

func (c *ScoreCache) Set(ctx context.Context, key string, score float32) error {
	value := strconv.FormatFloat(float64(score), 'g', -1, 32)
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set score failed: %w", err)
	}
	return nil
}
