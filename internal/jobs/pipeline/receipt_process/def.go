package receipt_process

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts/pipeline"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

// Runner is the receipt pipeline as seen by the job.
type Runner interface {
	Run(ctx context.Context, receiptID uuid.UUID, sink receipts.ProgressSink) (pipeline.Result, error)
}

type Pipeline struct {
	log    *logger.Logger
	runner Runner
}

func New(baseLog *logger.Logger, runner Runner) *Pipeline {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Pipeline{
		log:    baseLog.With("job", types.JobTypeReceiptProcess),
		runner: runner,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeReceiptProcess }
