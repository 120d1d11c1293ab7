package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

const (
	embeddingKeyPrefix  = "embedding:"
	DefaultEmbeddingTTL = 7 * 24 * time.Hour
)

type EmbeddingCache interface {
	// Get reports a miss as (nil, false, nil).
	Get(ctx context.Context, text string) ([]float32, bool, error)
	Set(ctx context.Context, text string, vec []float32) error
}

type embeddingCache struct {
	log *logger.Logger
	rdb goredis.Cmdable
	ttl time.Duration
}

func NewEmbeddingCache(log *logger.Logger, rdb goredis.Cmdable, ttl time.Duration) (EmbeddingCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if ttl <= 0 {
		ttl = DefaultEmbeddingTTL
	}
	return &embeddingCache{
		log: log.With("service", "RedisEmbeddingCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func EmbeddingKey(text string) string {
	return embeddingKeyPrefix + text
}

func (c *embeddingCache) Get(ctx context.Context, text string) ([]float32, bool, error) {
	raw, err := c.rdb.Get(ctx, EmbeddingKey(text)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get embedding: %w", err)
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (c *embeddingCache) Set(ctx context.Context, text string, vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, EmbeddingKey(text), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set embedding: %w", err)
	}
	return nil
}

func decodeVector(raw []byte) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, fmt.Errorf("decode cached embedding: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("decode cached embedding: empty vector")
	}
	return vec, nil
}
