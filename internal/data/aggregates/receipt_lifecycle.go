package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/stockscan-backend/internal/data/repos"
	types "github.com/yungbote/stockscan-backend/internal/domain"
	domainagg "github.com/yungbote/stockscan-backend/internal/domain/aggregates"
	"github.com/yungbote/stockscan-backend/internal/platform/dbctx"
)

type ReceiptLifecycleAggregateDeps struct {
	Base BaseDeps

	Receipts repos.ReceiptRepo
}

type receiptLifecycleAggregate struct {
	deps ReceiptLifecycleAggregateDeps
}

func NewReceiptLifecycleAggregate(deps ReceiptLifecycleAggregateDeps) domainagg.ReceiptLifecycleAggregate {
	deps.Base = deps.Base.withDefaults()
	return &receiptLifecycleAggregate{deps: deps}
}

func (a *receiptLifecycleAggregate) Contract() domainagg.Contract {
	return domainagg.ReceiptLifecycleAggregateContract
}

var receiptTable = types.Receipt{}.TableName()

func (a *receiptLifecycleAggregate) BeginProcessing(ctx context.Context, receiptID uuid.UUID) (domainagg.BeginProcessingResult, error) {
	const op = "Receipts.Lifecycle.BeginProcessing"
	var out domainagg.BeginProcessingResult
	if err := a.check(op, receiptID); err != nil {
		return out, err
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		rec, err := a.lock(dbc, op, receiptID)
		if err != nil {
			return err
		}
		out.Receipt = rec
		switch rec.Status {
		case types.ReceiptProcessing:
			out.Started = true
			return nil
		case types.ReceiptFailed:
			ok, err := a.deps.Base.CASGuard.UpdateByStatus(dbc, receiptTable, rec.ID, []string{string(types.ReceiptFailed)}, map[string]any{
				"status":         types.ReceiptProcessing,
				"error_message":  nil,
				"proposed_items": nil,
			})
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, "receipt changed while restarting"); err != nil {
				return err
			}
			rec.Status = types.ReceiptProcessing
			rec.ErrorMessage = nil
			rec.ProposedItems = nil
			out.Started = true
			return nil
		default:
			return nil
		}
	})
	return out, err
}

func (a *receiptLifecycleAggregate) RecordExtraction(ctx context.Context, receiptID uuid.UUID, rawText string) error {
	const op = "Receipts.Lifecycle.RecordExtraction"
	if err := a.check(op, receiptID); err != nil {
		return err
	}
	return executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		ok, err := a.deps.Base.CASGuard.UpdateByStatus(dbc, receiptTable, receiptID, []string{string(types.ReceiptProcessing)}, map[string]any{
			"raw_extraction_text": rawText,
		})
		if err != nil {
			return err
		}
		return RequireCASSuccess(ok, "receipt is no longer processing")
	})
}

func (a *receiptLifecycleAggregate) Propose(ctx context.Context, in domainagg.ProposeReceiptInput) error {
	const op = "Receipts.Lifecycle.Propose"
	if err := a.check(op, in.ReceiptID); err != nil {
		return err
	}
	if len(in.Proposal.Items) == 0 {
		return domainagg.NewError(domainagg.CodeValidation, op, "proposal has no items", nil)
	}
	payload, err := json.Marshal(in.Proposal)
	if err != nil {
		return domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	return executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		ok, err := a.deps.Base.CASGuard.UpdateByStatus(dbc, receiptTable, in.ReceiptID, []string{string(types.ReceiptProcessing)}, map[string]any{
			"status":         types.ReceiptPendingConfirmation,
			"proposed_items": datatypes.JSON(payload),
			"error_message":  nil,
		})
		if err != nil {
			return err
		}
		return RequireCASSuccess(ok, "receipt is no longer processing")
	})
}

func (a *receiptLifecycleAggregate) MarkFailed(ctx context.Context, in domainagg.MarkReceiptFailedInput) (domainagg.MarkReceiptFailedResult, error) {
	const op = "Receipts.Lifecycle.MarkFailed"
	var out domainagg.MarkReceiptFailedResult
	if err := a.check(op, in.ReceiptID); err != nil {
		return out, err
	}
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		msg = "processing failed"
	}
	updates := map[string]any{
		"status":        types.ReceiptFailed,
		"error_message": msg,
	}
	if in.RawText != nil {
		updates["raw_extraction_text"] = *in.RawText
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		ok, err := a.deps.Base.CASGuard.UpdateByStatus(dbc, receiptTable, in.ReceiptID, []string{string(types.ReceiptProcessing)}, updates)
		if err != nil {
			return err
		}
		out.Applied = ok
		return nil
	})
	return out, err
}

func (a *receiptLifecycleAggregate) ResetForReprocess(ctx context.Context, receiptID uuid.UUID) (*types.Receipt, error) {
	const op = "Receipts.Lifecycle.ResetForReprocess"
	if err := a.check(op, receiptID); err != nil {
		return nil, err
	}
	var out *types.Receipt
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		rec, err := a.lock(dbc, op, receiptID)
		if err != nil {
			return err
		}
		if err := RequireStatusAllowed(string(rec.Status), string(types.ReceiptFailed)); err != nil {
			return err
		}
		ok, err := a.deps.Base.CASGuard.UpdateByStatus(dbc, receiptTable, rec.ID, []string{string(types.ReceiptFailed)}, map[string]any{
			"status":         types.ReceiptProcessing,
			"error_message":  nil,
			"proposed_items": nil,
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "receipt changed while resetting"); err != nil {
			return err
		}
		rec.Status = types.ReceiptProcessing
		rec.ErrorMessage = nil
		rec.ProposedItems = nil
		out = rec
		return nil
	})
	return out, err
}

func (a *receiptLifecycleAggregate) check(op string, receiptID uuid.UUID) error {
	if receiptID == uuid.Nil {
		return domainagg.NewError(domainagg.CodeValidation, op, "missing receipt_id", nil)
	}
	if a.deps.Receipts == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "receipt repo not configured", nil)
	}
	return nil
}

func (a *receiptLifecycleAggregate) lock(dbc dbctx.Context, op string, receiptID uuid.UUID) (*types.Receipt, error) {
	rec, err := a.deps.Receipts.GetByIDForUpdate(dbc, receiptID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("receipt %s", receiptID), domainagg.ErrReceiptNotFound)
	}
	return rec, nil
}
