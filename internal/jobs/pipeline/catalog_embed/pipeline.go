package catalog_embed

import (
	"fmt"

	jobrt "github.com/yungbote/stockscan-backend/internal/jobs/runtime"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
)

const stage = "embed_products"

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	jc.Progress(stage, 1, "Embedding catalog products")
	res, err := p.backfill.Run(jc.Ctx, func(embedded int) {
		// Total is unknown up front; progress stays below 100 until Succeed.
		pct := 1 + embedded
		if pct > 99 {
			pct = 99
		}
		jc.Progress(stage, pct, fmt.Sprintf("Embedded %d products", embedded))
	})
	if err != nil {
		if receipts.IsRetryable(err) {
			jc.Fail(stage, err)
		} else {
			jc.FailPermanently(stage, err)
		}
		return nil
	}
	jc.Succeed("done", res)
	return nil
}
