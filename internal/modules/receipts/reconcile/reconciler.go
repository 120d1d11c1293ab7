package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	domainagg "github.com/yungbote/stockscan-backend/internal/domain/aggregates"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/observability"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

type Result struct {
	Transaction *types.Transaction `json:"transaction"`
	LowStock    []*types.Product   `json:"low_stock_products"`
}

// Reconciler applies a reviewed proposal to stock. All writes happen in the
// reconciliation aggregate; this layer validates input and translates
// storage codes into receipt error kinds.
type Reconciler struct {
	log      *logger.Logger
	agg      domainagg.InventoryReconciliationAggregate
	validate *validator.Validate
}

func New(log *logger.Logger, agg domainagg.InventoryReconciliationAggregate) *Reconciler {
	return &Reconciler{
		log:      log.With("component", "InventoryReconciler"),
		agg:      agg,
		validate: validator.New(),
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, receiptID uuid.UUID, items []types.ValidatedItem) (res Result, err error) {
	const op = "receipts.reconcile"
	ctx, span := observability.StartSpan(ctx, op,
		attribute.String("receipt.id", receiptID.String()),
		attribute.Int("receipt.items", len(items)),
	)
	defer func() { observability.EndSpan(span, err) }()

	if receiptID == uuid.Nil {
		return Result{}, receipts.NewError(receipts.KindInvalidInput, op, "missing receipt id", nil)
	}
	if len(items) == 0 {
		return Result{}, receipts.NewError(receipts.KindInvalidInput, op, "no items to confirm", nil)
	}
	for i := range items {
		if verr := r.validate.Struct(items[i]); verr != nil {
			return Result{}, receipts.NewError(receipts.KindInvalidInput, op, fmt.Sprintf("item %d is invalid", i), verr)
		}
	}

	out, err := r.agg.ConfirmReceipt(ctx, domainagg.ConfirmReceiptInput{ReceiptID: receiptID, Items: items})
	if err != nil {
		mapped := fromAggregate(op, err)
		r.log.Warn("receipt confirmation rejected", "receipt_id", receiptID, "kind", receipts.KindOf(mapped), "error", err)
		return Result{}, mapped
	}

	for _, p := range out.LowStock {
		r.log.Warn("low stock",
			"product_id", p.ID,
			"product_name", p.Name,
			"quantity", p.Quantity,
			"reorder_point", p.ReorderPoint,
		)
	}
	r.log.Info("receipt confirmed",
		"receipt_id", receiptID,
		"transaction_id", out.Transaction.ID,
		"total_items", out.Transaction.TotalItems,
		"low_stock", len(out.LowStock),
	)
	return Result{Transaction: out.Transaction, LowStock: out.LowStock}, nil
}

func fromAggregate(op string, err error) error {
	switch {
	case errors.Is(err, domainagg.ErrProductNotFound):
		return receipts.NewError(receipts.KindProductNotFound, op, "product not found", err)
	case errors.Is(err, domainagg.ErrReceiptNotFound):
		return receipts.NewError(receipts.KindNotFound, op, "receipt not found", err)
	}
	switch domainagg.CodeOf(err) {
	case domainagg.CodeConflict:
		return receipts.NewError(receipts.KindStateConflict, op, "receipt is not pending confirmation", err)
	case domainagg.CodeValidation:
		return receipts.NewError(receipts.KindInvalidInput, op, "", err)
	default:
		return receipts.NewError(receipts.KindInternal, op, "", err)
	}
}
