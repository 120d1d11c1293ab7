package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/observability"
	"github.com/yungbote/stockscan-backend/internal/platform/dbctx"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

const defaultBatchSize = 50

// Store is the slice of the product repo the backfill needs.
type Store interface {
	ListMissingEmbedding(dbc dbctx.Context, limit int) ([]*types.Product, error)
	UpdateEmbedding(dbc dbctx.Context, id uuid.UUID, vec []float32) error
}

type BackfillDeps struct {
	Log       *logger.Logger
	Products  Store
	Embedder  receipts.Embedder
	Retry     receipts.RetryPolicy
	BatchSize int
}

type BackfillResult struct {
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// Backfiller embeds catalog products that have no stored vector so the
// matcher's nearest-neighbour lookup can find them.
type Backfiller struct {
	log      *logger.Logger
	products Store
	embed    receipts.Embedder
	retry    receipts.RetryPolicy
	batch    int
}

func NewBackfiller(deps BackfillDeps) *Backfiller {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	retry := deps.Retry
	if retry.Attempts <= 0 {
		retry = receipts.DefaultRetryPolicy()
	}
	return &Backfiller{
		log:      log.With("component", "CatalogEmbeddingBackfill"),
		products: deps.Products,
		embed:    deps.Embedder,
		retry:    retry,
		batch:    batch,
	}
}

// Run embeds every product missing a vector. Products whose embedding fails
// are skipped for the rest of the run. progress receives the running count of
// embedded products after each batch.
func (b *Backfiller) Run(ctx context.Context, progress func(embedded int)) (res BackfillResult, err error) {
	const op = "catalog.embed_backfill"
	ctx, span := observability.StartSpan(ctx, op)
	defer func() {
		span.SetAttributes(attribute.Int("catalog.embedded", res.Embedded), attribute.Int("catalog.failed", res.Failed))
		observability.EndSpan(span, err)
	}()

	failed := map[uuid.UUID]bool{}
	var lastErr error
	for {
		if err := ctx.Err(); err != nil {
			return res, receipts.Wrap(receipts.KindInternal, op, err)
		}
		list, err := b.products.ListMissingEmbedding(dbctx.Context{Ctx: ctx}, b.batch+len(failed))
		if err != nil {
			return res, receipts.NewError(receipts.KindInternal, op, "list products missing embeddings", err)
		}
		pending := make([]*types.Product, 0, len(list))
		for _, p := range list {
			if !failed[p.ID] {
				pending = append(pending, p)
			}
		}
		if len(pending) == 0 {
			break
		}
		for _, p := range pending {
			if err := b.embedOne(ctx, p); err != nil {
				if ctx.Err() != nil {
					return res, receipts.Wrap(receipts.KindInternal, op, ctx.Err())
				}
				failed[p.ID] = true
				res.Failed++
				lastErr = err
				b.log.Warn("product embedding failed", "product_id", p.ID, "product_name", p.Name, "kind", receipts.KindOf(err), "error", err)
				continue
			}
			res.Embedded++
		}
		if progress != nil {
			progress(res.Embedded)
		}
	}

	b.log.Info("catalog embedding backfill finished", "embedded", res.Embedded, "failed", res.Failed)
	if res.Embedded == 0 && lastErr != nil {
		return res, lastErr
	}
	return res, nil
}

func (b *Backfiller) embedOne(ctx context.Context, p *types.Product) error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return receipts.Errorf(receipts.KindInvalidInput, "catalog.embed", "product %s has no name", p.ID)
	}
	vec, err := receipts.Retry(ctx, b.retry, b.log, "embed_product", func(ctx context.Context) ([]float32, error) {
		return b.embed.Embed(ctx, name)
	})
	if err != nil {
		return err
	}
	if err := b.products.UpdateEmbedding(dbctx.Context{Ctx: ctx}, p.ID, vec); err != nil {
		return receipts.NewError(receipts.KindInternal, "catalog.embed", "store embedding", err)
	}
	return nil
}
