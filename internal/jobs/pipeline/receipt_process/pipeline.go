package receipt_process

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	jobrt "github.com/yungbote/stockscan-backend/internal/jobs/runtime"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
)

// Run drives one receipt through the pipeline. Retryable adapter failures
// leave the run failed so the worker tries again; the next attempt picks the
// receipt back up from failed. Anything else ends the run dead.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	receiptID, ok := jc.EntityID("receipt_id")
	if !ok || receiptID == uuid.Nil {
		jc.FailPermanently("validate", fmt.Errorf("missing receipt_id"))
		return nil
	}

	res, err := p.runner.Run(jc.Ctx, receiptID, jc)
	if err != nil {
		stage := strings.TrimSpace(jc.Job.Stage)
		if stage == "" || stage == "queued" {
			stage = receipts.StageExtraction
		}
		if receipts.IsRetryable(err) {
			p.log.Warn("Receipt run failed; leaving job for retry",
				"receipt_id", receiptID.String(),
				"stage", stage,
				"attempt", jc.Job.Attempts,
				"kind", string(receipts.KindOf(err)),
				"error", err,
			)
			jc.Fail(stage, err)
		} else {
			p.log.Error("Receipt run failed permanently",
				"receipt_id", receiptID.String(),
				"stage", stage,
				"attempt", jc.Job.Attempts,
				"kind", string(receipts.KindOf(err)),
				"error", err,
			)
			jc.FailPermanently(stage, err)
		}
		return nil
	}

	if res.Skipped {
		jc.Succeed("skipped", map[string]any{
			"receipt_id": receiptID.String(),
			"skipped":    true,
			"status":     string(res.Status),
		})
		return nil
	}

	out := map[string]any{
		"receipt_id": receiptID.String(),
		"status":     string(res.Status),
	}
	if res.Proposal != nil {
		out["total_items"] = res.Proposal.TotalItems
		out["unmatched_items"] = len(res.Proposal.UnmatchedItems)
	}
	jc.Succeed("done", out)
	return nil
}
