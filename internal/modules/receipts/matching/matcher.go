package matching

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/normalization"
	"github.com/yungbote/stockscan-backend/internal/platform/dbctx"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

// Catalog is the read side of the product store used for matching.
type Catalog interface {
	NearestByEmbedding(dbc dbctx.Context, vec []float32) (*types.Product, float64, error)
	ListForMatching(dbc dbctx.Context) ([]*types.Product, error)
}

type Config struct {
	VectorThreshold  float64
	TextThreshold    float64
	FuzzyThreshold   float64
	ContainmentBoost float64
	MinCoverage      float64
}

func DefaultConfig() Config {
	return Config{
		VectorThreshold:  0.7,
		TextThreshold:    0.6,
		FuzzyThreshold:   0.7,
		ContainmentBoost: 0.95,
		MinCoverage:      0.5,
	}
}

type Deps struct {
	Log        *logger.Logger
	Catalog    Catalog
	Embedder   receipts.Embedder
	Normalizer *normalization.Normalizer
	Config     Config
}

// Matcher resolves extracted names to catalog products: nearest embedding
// corroborated by text similarity first, then a fuzzy scan of the catalog.
type Matcher struct {
	log     *logger.Logger
	catalog Catalog
	embed   receipts.Embedder
	norm    *normalization.Normalizer
	cfg     Config
}

func New(deps Deps) *Matcher {
	cfg := deps.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	norm := deps.Normalizer
	if norm == nil {
		norm = normalization.New()
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Matcher{
		log:     log.With("component", "ProductMatcher"),
		catalog: deps.Catalog,
		embed:   deps.Embedder,
		norm:    norm,
		cfg:     cfg,
	}
}

// Match never returns an error: provider and catalog failures degrade to the
// fuzzy pass or to no match.
func (m *Matcher) Match(ctx context.Context, itemName string) (types.MatchedProduct, bool) {
	ctx, span := otel.Tracer("stockscan/matching").Start(ctx, "match")
	defer span.End()

	query := m.norm.Normalize(itemName)
	if query == "" {
		return types.MatchedProduct{}, false
	}
	if mp, ok := m.vectorPass(ctx, itemName, query); ok {
		span.SetAttributes(attribute.String("match.pass", "vector"), attribute.Float64("match.score", mp.SimilarityScore))
		return mp, true
	}
	mp, ok := m.fuzzyPass(ctx, query)
	if ok {
		span.SetAttributes(attribute.String("match.pass", "fuzzy"), attribute.Float64("match.score", mp.SimilarityScore))
	}
	return mp, ok
}

func (m *Matcher) vectorPass(ctx context.Context, itemName, query string) (types.MatchedProduct, bool) {
	if m.embed == nil || m.catalog == nil {
		return types.MatchedProduct{}, false
	}
	vec, err := m.embed.Embed(ctx, itemName)
	if err != nil {
		m.log.Warn("embedding failed; using fuzzy match", "item", itemName, "error", err)
		return types.MatchedProduct{}, false
	}
	p, sim, err := m.catalog.NearestByEmbedding(dbctx.Context{Ctx: ctx}, vec)
	if err != nil {
		m.log.Warn("vector search failed; using fuzzy match", "item", itemName, "error", err)
		return types.MatchedProduct{}, false
	}
	if p == nil || sim <= m.cfg.VectorThreshold {
		return types.MatchedProduct{}, false
	}
	text := TextSimilarity(query, m.norm.Normalize(p.Name), m.cfg.ContainmentBoost, m.cfg.MinCoverage)
	if text < m.cfg.TextThreshold {
		m.log.Debug("vector candidate rejected by text check",
			"item", itemName, "candidate", p.Name, "vector_similarity", sim, "text_similarity", text)
		return types.MatchedProduct{}, false
	}
	return matched(p, sim), true
}

func (m *Matcher) fuzzyPass(ctx context.Context, query string) (types.MatchedProduct, bool) {
	if m.catalog == nil {
		return types.MatchedProduct{}, false
	}
	products, err := m.catalog.ListForMatching(dbctx.Context{Ctx: ctx})
	if err != nil {
		m.log.Warn("catalog scan failed", "query", query, "error", err)
		return types.MatchedProduct{}, false
	}
	var (
		best      *types.Product
		bestScore float64
	)
	for _, p := range products {
		if p == nil {
			continue
		}
		score := TextSimilarity(query, m.norm.Normalize(p.Name), m.cfg.ContainmentBoost, m.cfg.MinCoverage)
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	if best == nil || bestScore < m.cfg.FuzzyThreshold {
		return types.MatchedProduct{}, false
	}
	return matched(best, bestScore), true
}

func matched(p *types.Product, score float64) types.MatchedProduct {
	return types.MatchedProduct{
		ProductID:       p.ID,
		ProductName:     p.Name,
		Unit:            p.Unit,
		SimilarityScore: clamp01(score),
	}
}
