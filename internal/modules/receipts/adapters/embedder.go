package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/normalization"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/platform/openai"
)

type EmbeddingCache interface {
	Get(ctx context.Context, text string) ([]float32, bool, error)
	Set(ctx context.Context, text string, vec []float32) error
}

// CachedEmbedder embeds text with the provider behind an optional cache
// keyed on the normalized text. Cache failures only cost a provider call.
type CachedEmbedder struct {
	log   *logger.Logger
	ai    openai.Client
	cache EmbeddingCache
	norm  *normalization.Normalizer
}

func NewCachedEmbedder(log *logger.Logger, ai openai.Client, cache EmbeddingCache, norm *normalization.Normalizer) (*CachedEmbedder, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	if norm == nil {
		norm = normalization.New()
	}
	return &CachedEmbedder{log: log.With("component", "CachedEmbedder"), ai: ai, cache: cache, norm: norm}, nil
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	const op = "embed"
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, receipts.Errorf(receipts.KindInvalidInput, op, "text cannot be empty")
	}
	key := e.norm.Normalize(text)
	if key == "" {
		key = text
	}
	if e.cache != nil {
		vec, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			e.log.Warn("embedding cache read failed", "error", err)
		} else if ok {
			return vec, nil
		}
	}
	vecs, err := e.ai.Embed(ctx, []string{text})
	if err != nil {
		return nil, classify(op, err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, malformed(op, "expected 1 embedding, got %d", len(vecs))
	}
	if e.cache != nil {
		if err := e.cache.Set(ctx, key, vecs[0]); err != nil {
			e.log.Warn("embedding cache write failed", "error", err)
		}
	}
	return vecs[0], nil
}
