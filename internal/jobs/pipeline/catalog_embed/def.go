package catalog_embed

import (
	"context"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/modules/catalog"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

type Backfill interface {
	Run(ctx context.Context, progress func(embedded int)) (catalog.BackfillResult, error)
}

type Pipeline struct {
	log      *logger.Logger
	backfill Backfill
}

func New(baseLog *logger.Logger, backfill Backfill) *Pipeline {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Pipeline{
		log:      baseLog.With("job", types.JobTypeCatalogEmbed),
		backfill: backfill,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeCatalogEmbed }
