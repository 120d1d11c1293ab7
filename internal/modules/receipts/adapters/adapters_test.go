package adapters

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/normalization"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/platform/openai"
)

var testImage = receipts.Image{Reference: "receipts/a.jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}

func TestVisionExtractor(t *testing.T) {
	ai := &fakeAI{text: "```json\n[{\"name\":\"โค้ก\",\"quantity\":\"6 กระป๋อง\",\"original_text\":\"โค้ก x6\"}]\n```"}
	x, err := NewVisionExtractor(logger.Nop(), ai)
	if err != nil {
		t.Fatalf("NewVisionExtractor: %v", err)
	}
	items, raw, err := x.Extract(context.Background(), testImage)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(items) != 1 || items[0].QuantityText != "6 กระป๋อง" {
		t.Fatalf("items: %+v", items)
	}
	if raw != strings.TrimSpace(ai.text) {
		t.Fatalf("raw text should be the model reply, got %q", raw)
	}
	if len(ai.images) != 1 || !strings.HasPrefix(ai.images[0].ImageURL, "data:image/jpeg;base64,") {
		t.Fatalf("image not sent as data URL: %+v", ai.images)
	}
}

func TestVisionExtractorErrors(t *testing.T) {
	x, _ := NewVisionExtractor(logger.Nop(), &fakeAI{err: &openai.HTTPError{StatusCode: 503}})
	_, _, err := x.Extract(context.Background(), testImage)
	if !receipts.IsKind(err, receipts.KindTransport) {
		t.Fatalf("want transport, got %v", err)
	}

	x, _ = NewVisionExtractor(logger.Nop(), &fakeAI{text: "not json at all"})
	_, raw, err := x.Extract(context.Background(), testImage)
	if !receipts.IsKind(err, receipts.KindMalformedResponse) {
		t.Fatalf("want malformed, got %v", err)
	}
	if raw != "not json at all" {
		t.Fatalf("raw should be returned with malformed error, got %q", raw)
	}

	x, _ = NewVisionExtractor(logger.Nop(), &fakeAI{text: "[]"})
	items, _, err := x.Extract(context.Background(), testImage)
	if err != nil || len(items) != 0 {
		t.Fatalf("empty list is not an adapter error: items=%v err=%v", items, err)
	}

	_, _, err = x.Extract(context.Background(), receipts.Image{Reference: "x"})
	if !receipts.IsKind(err, receipts.KindInvalidInput) {
		t.Fatalf("want invalid input for empty image, got %v", err)
	}
}

func TestOCRExtractor(t *testing.T) {
	ai := &fakeAI{json: map[string]any{"items": []any{
		map[string]any{"name": "นมจืด", "quantity": "2 กล่อง", "original_text": "นมจืด 2 กล่อง"},
		map[string]any{"name": "", "quantity": "1", "original_text": "รวม"},
	}}}
	x, err := NewOCRExtractor(logger.Nop(), &fakeVision{text: "นมจืด 2 กล่อง\nรวม 50"}, ai)
	if err != nil {
		t.Fatalf("NewOCRExtractor: %v", err)
	}
	items, raw, err := x.Extract(context.Background(), testImage)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if raw != "นมจืด 2 กล่อง\nรวม 50" {
		t.Fatalf("raw should be OCR text, got %q", raw)
	}
	if len(items) != 1 || items[0].Name != "นมจืด" {
		t.Fatalf("items: %+v", items)
	}
	if !strings.Contains(ai.lastUsr, "รวม 50") {
		t.Fatalf("OCR text not passed to the model: %q", ai.lastUsr)
	}
}

func TestOCRExtractorNoText(t *testing.T) {
	ai := &fakeAI{}
	x, _ := NewOCRExtractor(logger.Nop(), &fakeVision{text: "  "}, ai)
	items, raw, err := x.Extract(context.Background(), testImage)
	if err != nil || len(items) != 0 || raw != "" {
		t.Fatalf("blank OCR: items=%v raw=%q err=%v", items, raw, err)
	}
	if ai.calls != 0 {
		t.Fatalf("model should not be called without OCR text")
	}

	x, _ = NewOCRExtractor(logger.Nop(), &fakeVision{err: errors.New("dial tcp: i/o timeout")}, ai)
	if _, _, err := x.Extract(context.Background(), testImage); receipts.KindOf(err) != receipts.KindInternal {
		t.Fatalf("unexpected kind for opaque error: %v", err)
	}
}

func matchedProduct() types.MatchedProduct {
	return types.MatchedProduct{ProductID: uuid.New(), ProductName: "โค้ก 325 มล.", Unit: "กระป๋อง", SimilarityScore: 0.91}
}

func TestLLMValidator(t *testing.T) {
	m := matchedProduct()
	ai := &fakeAI{json: map[string]any{
		"product_id":    uuid.NewString(),
		"product_name":  "โค้ก 325 มล.",
		"quantity":      float64(6),
		"unit":          "กระป๋อง",
		"confidence":    0.93,
		"original_text": "โค้ก 325มล. x6",
	}}
	v, err := NewLLMValidator(logger.Nop(), ai, 0)
	if err != nil {
		t.Fatalf("NewLLMValidator: %v", err)
	}
	item, err := v.Validate(context.Background(), m, "โค้ก 325มล. x6", "6 กระป๋อง")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if item.ProductID != m.ProductID {
		t.Fatalf("product id must come from the match: want=%s got=%s", m.ProductID, item.ProductID)
	}
	if item.Quantity != 6 || item.Unit != "กระป๋อง" || item.Confidence != 0.93 {
		t.Fatalf("unexpected item: %+v", item)
	}
	if !strings.Contains(ai.lastUsr, "0.91") || !strings.Contains(ai.lastUsr, "6 กระป๋อง") {
		t.Fatalf("prompt missing match context: %q", ai.lastUsr)
	}
}

func TestLLMValidatorDefaultsAndLowConfidence(t *testing.T) {
	m := matchedProduct()
	ai := &fakeAI{json: map[string]any{"quantity": float64(2), "confidence": 0.4, "product_name": "", "unit": "", "original_text": ""}}
	v, _ := NewLLMValidator(logger.Nop(), ai, 0.8)
	item, err := v.Validate(context.Background(), m, "orig", "2")
	if err != nil {
		t.Fatalf("low confidence must not fail: %v", err)
	}
	if item.ProductName != m.ProductName || item.Unit != m.Unit || item.OriginalText != "orig" {
		t.Fatalf("defaults not applied: %+v", item)
	}
}

func TestLLMValidatorRejectsBadQuantity(t *testing.T) {
	for _, q := range []any{float64(0), float64(-3), 2.5, nil} {
		ai := &fakeAI{json: map[string]any{"quantity": q, "confidence": 0.9}}
		v, _ := NewLLMValidator(logger.Nop(), ai, 0)
		_, err := v.Validate(context.Background(), matchedProduct(), "x", "y")
		if !receipts.IsKind(err, receipts.KindMalformedResponse) {
			t.Errorf("quantity %v: want malformed, got %v", q, err)
		}
	}
}

func TestLLMValidatorUnencodableReply(t *testing.T) {
	ai := &fakeAI{json: map[string]any{"quantity": float64(2), "confidence": math.NaN()}}
	v, _ := NewLLMValidator(logger.Nop(), ai, 0)
	_, err := v.Validate(context.Background(), matchedProduct(), "x", "2")
	if !receipts.IsKind(err, receipts.KindMalformedResponse) {
		t.Fatalf("want malformed, got %v", err)
	}
	if !strings.Contains(err.Error(), "encode validation reply") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLLMValidatorClampsConfidence(t *testing.T) {
	ai := &fakeAI{json: map[string]any{"quantity": float64(1), "confidence": 1.7}}
	v, _ := NewLLMValidator(logger.Nop(), ai, 0)
	item, err := v.Validate(context.Background(), matchedProduct(), "x", "1")
	if err != nil || item.Confidence != 1 {
		t.Fatalf("confidence: item=%+v err=%v", item, err)
	}
}

func TestLLMValidatorProviderError(t *testing.T) {
	ai := &fakeAI{err: &openai.HTTPError{StatusCode: 429}}
	v, _ := NewLLMValidator(logger.Nop(), ai, 0)
	_, err := v.Validate(context.Background(), matchedProduct(), "x", "1")
	if !receipts.IsKind(err, receipts.KindRateLimited) {
		t.Fatalf("want rate limited, got %v", err)
	}
}

func TestCachedEmbedder(t *testing.T) {
	ai := &fakeAI{vecs: [][]float32{{0.1, 0.2}}}
	cache := newFakeCache()
	e, err := NewCachedEmbedder(logger.Nop(), ai, cache, normalization.New())
	if err != nil {
		t.Fatalf("NewCachedEmbedder: %v", err)
	}
	ctx := context.Background()
	if _, err := e.Embed(ctx, "Coke 325 ml."); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if _, ok := cache.data["coke 325 ml"]; !ok {
		t.Fatalf("cache should be keyed on normalized text: %v", cache.data)
	}
	if _, err := e.Embed(ctx, "  COKE 325 ML "); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if ai.calls != 1 {
		t.Fatalf("second lookup should hit the cache, provider calls=%d", ai.calls)
	}
	if ai.embeds[0] != "Coke 325 ml." {
		t.Fatalf("provider should see the trimmed original text, got %q", ai.embeds[0])
	}
}

func TestCachedEmbedderIgnoresCacheFailures(t *testing.T) {
	ai := &fakeAI{vecs: [][]float32{{1, 0}}}
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")
	e, _ := NewCachedEmbedder(logger.Nop(), ai, cache, nil)
	vec, err := e.Embed(context.Background(), "x")
	if err != nil || len(vec) != 2 {
		t.Fatalf("cache failure must not fail Embed: vec=%v err=%v", vec, err)
	}

	e, _ = NewCachedEmbedder(logger.Nop(), ai, nil, nil)
	if _, err := e.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("nil cache: %v", err)
	}
	if _, err := e.Embed(context.Background(), "  "); !receipts.IsKind(err, receipts.KindInvalidInput) {
		t.Fatalf("blank text: want invalid input, got %v", err)
	}
}

func TestCachedEmbedderProviderErrors(t *testing.T) {
	e, _ := NewCachedEmbedder(logger.Nop(), &fakeAI{err: &openai.HTTPError{StatusCode: 500}}, nil, nil)
	if _, err := e.Embed(context.Background(), "x"); !receipts.IsKind(err, receipts.KindTransport) {
		t.Fatalf("want transport, got %v", err)
	}
	e, _ = NewCachedEmbedder(logger.Nop(), &fakeAI{vecs: nil}, nil, nil)
	if _, err := e.Embed(context.Background(), "x"); !receipts.IsKind(err, receipts.KindMalformedResponse) {
		t.Fatalf("want malformed, got %v", err)
	}
}
