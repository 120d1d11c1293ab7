package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	redisclient "github.com/yungbote/stockscan-backend/internal/clients/redis"
	"github.com/yungbote/stockscan-backend/internal/platform/gcp"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/platform/openai"
)

// Clients holds the external connections. Redis and Vision are optional:
// Redis is skipped when REDIS_ADDR is unset, Vision when extraction does not
// go through OCR.
type Clients struct {
	OpenAI openai.Client
	Vision gcp.Vision

	Redis          *goredis.Client
	EmbeddingCache redisclient.EmbeddingCache
	JobBus         redisclient.JobBus
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	var out Clients

	ai, err := openai.NewClient(log)
	if err != nil {
		return out, fmt.Errorf("init openai: %w", err)
	}
	out.OpenAI = ai

	if cfg.ExtractionMode == ExtractionOCRLLM {
		vision, err := gcp.NewVision(log)
		if err != nil {
			return out, fmt.Errorf("init vision: %w", err)
		}
		out.Vision = vision
	}

	rcfg := redisclient.ConfigFromEnv()
	if rcfg.Addr == "" {
		log.Warn("REDIS_ADDR not set; embedding cache and cross-instance job updates disabled")
		return out, nil
	}
	rdb, err := redisclient.NewClient(log, rcfg)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}
	out.Redis = rdb

	cache, err := redisclient.NewEmbeddingCache(log, rdb, cfg.EmbeddingCacheTTL)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init embedding cache: %w", err)
	}
	out.EmbeddingCache = cache

	bus, err := redisclient.NewJobBus(log, rdb, rcfg.Channel)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init job bus: %w", err)
	}
	out.JobBus = bus
	return out, nil
}

func (c Clients) pingRedis(ctx context.Context) error {
	return c.Redis.Ping(ctx).Err()
}

func (c Clients) Close() {
	if c.JobBus != nil {
		_ = c.JobBus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Vision != nil {
		_ = c.Vision.Close()
	}
}
