package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/stockscan-backend/internal/data/repos/inventory"
	"github.com/yungbote/stockscan-backend/internal/data/repos/testutil"
	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/normalization"
	"github.com/yungbote/stockscan-backend/internal/platform/dbctx"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

type fakeCatalog struct {
	nearest    *types.Product
	nearestSim float64
	nearestErr error
	products   []*types.Product
	listErr    error
	listCalls  int
}

func (f *fakeCatalog) NearestByEmbedding(dbc dbctx.Context, vec []float32) (*types.Product, float64, error) {
	return f.nearest, f.nearestSim, f.nearestErr
}

func (f *fakeCatalog) ListForMatching(dbc dbctx.Context) ([]*types.Product, error) {
	f.listCalls++
	return f.products, f.listErr
}

func product(name string) *types.Product {
	return &types.Product{ID: uuid.New(), Name: name, Unit: "ชิ้น"}
}

func newMatcher(t *testing.T, cat Catalog, emb *fakeEmbedder) *Matcher {
	t.Helper()
	norm, err := normalization.NewDefault("")
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	deps := Deps{Log: logger.Nop(), Catalog: cat, Normalizer: norm}
	if emb != nil {
		deps.Embedder = emb
	}
	return New(deps)
}

func TestMatchVectorAccepted(t *testing.T) {
	coke := product("โค้ก 325 มล.")
	cat := &fakeCatalog{nearest: coke, nearestSim: 0.9}
	m := newMatcher(t, cat, &fakeEmbedder{vec: []float32{1, 0}})

	got, ok := m.Match(context.Background(), "โค้ก")
	if !ok {
		t.Fatalf("expected a match")
	}
	if got.ProductID != coke.ID || got.SimilarityScore != 0.9 || got.Unit != "ชิ้น" {
		t.Fatalf("unexpected match %+v", got)
	}
	if cat.listCalls != 0 {
		t.Fatalf("fuzzy pass should not run after a vector match")
	}
}

func TestMatchVectorRejectedByTextCheck(t *testing.T) {
	oil := product("น้ำมันพืช")
	cat := &fakeCatalog{nearest: oil, nearestSim: 0.85, products: []*types.Product{oil}}
	m := newMatcher(t, cat, &fakeEmbedder{vec: []float32{1, 0}})

	if got, ok := m.Match(context.Background(), "น้ำ"); ok {
		t.Fatalf("expected no match, got %+v", got)
	}
	if cat.listCalls != 1 {
		t.Fatalf("rejected vector candidate should fall through to fuzzy")
	}
}

func TestMatchVectorBelowThreshold(t *testing.T) {
	milk := product("นมสด")
	cat := &fakeCatalog{nearest: milk, nearestSim: 0.7, products: []*types.Product{milk}}
	m := newMatcher(t, cat, &fakeEmbedder{vec: []float32{1}})

	got, ok := m.Match(context.Background(), "นมจืด")
	if !ok || got.ProductID != milk.ID {
		t.Fatalf("expected fuzzy match on milk, got %+v ok=%v", got, ok)
	}
	if got.SimilarityScore != 0.95 {
		t.Fatalf("fuzzy score should be the containment boost, got %v", got.SimilarityScore)
	}
}

func TestMatchEmbeddingFailureFallsBack(t *testing.T) {
	pepsi := product("เป๊ปซี่ 1.5 ลิตร")
	cat := &fakeCatalog{products: []*types.Product{product("น้ำมันพืช"), pepsi}}
	emb := &fakeEmbedder{err: errors.New("provider down")}
	m := newMatcher(t, cat, emb)

	got, ok := m.Match(context.Background(), "เปปซี")
	if !ok || got.ProductID != pepsi.ID {
		t.Fatalf("expected pepsi via fuzzy, got %+v ok=%v", got, ok)
	}
	if emb.calls != 1 {
		t.Fatalf("embedder calls = %d", emb.calls)
	}

	if got, ok := m.Match(context.Background(), "ของปลอม xyz"); ok {
		t.Fatalf("expected no match, got %+v", got)
	}
}

func TestMatchFuzzyTieKeepsFirst(t *testing.T) {
	first := product("นม ตราหมี")
	second := product("นม ตราหมี")
	cat := &fakeCatalog{products: []*types.Product{first, second}}
	m := newMatcher(t, cat, nil)

	got, ok := m.Match(context.Background(), "นมสด")
	if !ok || got.ProductID != first.ID {
		t.Fatalf("tie should keep the first candidate, got %+v", got)
	}
}

func TestMatchCatalogFailureYieldsNone(t *testing.T) {
	cat := &fakeCatalog{
		nearestErr: errors.New("db down"),
		listErr:    errors.New("db down"),
	}
	m := newMatcher(t, cat, &fakeEmbedder{vec: []float32{1}})
	if _, ok := m.Match(context.Background(), "โค้ก"); ok {
		t.Fatalf("catalog failure must yield no match")
	}
	if _, ok := m.Match(context.Background(), " ... "); ok {
		t.Fatalf("blank name must not match")
	}
}

func TestMatchAgainstProductRepo(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	ctx := context.Background()
	coke := testutil.SeedProduct(t, ctx, tx, "โค้ก 325 มล.", 5, 10, []float32{1, 0, 0})
	testutil.SeedProduct(t, ctx, tx, "น้ำมันพืช", 2, 1, []float32{0, 1, 0})

	repo := inventory.NewProductRepo(tx, testutil.Logger(t))
	m := newMatcher(t, repo, &fakeEmbedder{vec: []float32{0.95, 0.05, 0}})

	got, ok := m.Match(ctx, "โค๊ก")
	if !ok || got.ProductID != coke.ID {
		t.Fatalf("expected coke, got %+v ok=%v", got, ok)
	}
	if got.SimilarityScore <= 0.7 || got.SimilarityScore > 1 {
		t.Fatalf("score out of range: %v", got.SimilarityScore)
	}
}
