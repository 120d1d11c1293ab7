package aggregates

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/stockscan-backend/internal/domain"
)

// Sentinels carried as the Cause of CodeNotFound errors so callers can tell
// which entity was missing.
var (
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrProductNotFound = errors.New("product not found")
)

var ReceiptLifecycleAggregateContract = Contract{
	Name:             "Receipts.LifecycleAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Owns pipeline-side receipt status transitions: processing, pending_confirmation, failed.",
}

// ReceiptLifecycleAggregate guards every status change a pipeline run makes.
// Transitions are compare-and-set on the receipt status, so a duplicate or
// late run can never overwrite a receipt another run already finished.
type ReceiptLifecycleAggregate interface {
	Aggregate

	// BeginProcessing claims a receipt for a run. processing stays processing,
	// failed moves back to processing with its error cleared. Any other status
	// returns Started=false without writing.
	BeginProcessing(ctx context.Context, receiptID uuid.UUID) (BeginProcessingResult, error)

	// RecordExtraction stores the raw extraction text while processing.
	RecordExtraction(ctx context.Context, receiptID uuid.UUID, rawText string) error

	// Propose stores the proposal and moves processing to pending_confirmation.
	Propose(ctx context.Context, in ProposeReceiptInput) error

	// MarkFailed moves processing to failed. Applied=false means the receipt
	// had already left processing.
	MarkFailed(ctx context.Context, in MarkReceiptFailedInput) (MarkReceiptFailedResult, error)

	// ResetForReprocess moves failed back to processing for a new run.
	ResetForReprocess(ctx context.Context, receiptID uuid.UUID) (*types.Receipt, error)
}

type BeginProcessingResult struct {
	Receipt *types.Receipt
	Started bool
}

type ProposeReceiptInput struct {
	ReceiptID uuid.UUID
	Proposal  types.Proposal
}

type MarkReceiptFailedInput struct {
	ReceiptID uuid.UUID
	Message   string
	RawText   *string
}

type MarkReceiptFailedResult struct {
	Applied bool
}

var InventoryReconciliationAggregateContract = Contract{
	Name:             "Inventory.ReconciliationAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Applies a confirmed receipt to stock: transaction header, items, product quantities and receipt status in one unit.",
}

// InventoryReconciliationAggregate applies confirmed receipts to stock.
//
// Write failures return *Error with codes CodeValidation (empty or invalid
// items), CodeNotFound (Cause ErrReceiptNotFound or ErrProductNotFound),
// CodeConflict (receipt not pending_confirmation), CodeRetryable, CodeInternal.
type InventoryReconciliationAggregate interface {
	Aggregate

	ConfirmReceipt(ctx context.Context, in ConfirmReceiptInput) (ConfirmReceiptResult, error)
}

type ConfirmReceiptInput struct {
	ReceiptID uuid.UUID
	Items     []types.ValidatedItem
}

type ConfirmReceiptResult struct {
	Transaction *types.Transaction
	// LowStock lists the affected products whose quantity is still below
	// their reorder point after the update.
	LowStock    []*types.Product
	ConfirmedAt time.Time
}
