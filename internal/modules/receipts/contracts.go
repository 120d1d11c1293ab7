package receipts

import (
	"context"
	"io"

	types "github.com/yungbote/stockscan-backend/internal/domain"
)

// Extractor turns a receipt image into raw line items. Items with an empty
// name or quantity are dropped by the implementation. An empty result is not
// an error at this layer.
type Extractor interface {
	Extract(ctx context.Context, image Image) ([]types.ExtractedItem, string, error)
}

// Validator normalizes a matched item's quantity into the product's base unit.
// The returned ProductID always equals matched.ProductID.
type Validator interface {
	Validate(ctx context.Context, matched types.MatchedProduct, originalText, quantityText string) (types.ValidatedItem, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Matcher finds the catalog product for an extracted name.
type Matcher interface {
	Match(ctx context.Context, itemName string) (types.MatchedProduct, bool)
}

// ImageStore resolves stored receipt images.
type ImageStore interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Save(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	URL(ref string) string
}

// ProgressSink receives stage checkpoints of a pipeline run.
type ProgressSink interface {
	Progress(stage string, pct int, message string)
}

type Image struct {
	Reference   string
	ContentType string
	Data        []byte
}

// Stage names reported to the progress sink.
const (
	StageExtraction = "vision_extraction"
	StageMatching   = "matching"
	StageValidation = "validation"
)

// NopProgress discards progress events.
type NopProgress struct{}

func (NopProgress) Progress(string, int, string) {}
