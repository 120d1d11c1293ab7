package aggregates

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/stockscan-backend/internal/data/repos"
	types "github.com/yungbote/stockscan-backend/internal/domain"
	domainagg "github.com/yungbote/stockscan-backend/internal/domain/aggregates"
	"github.com/yungbote/stockscan-backend/internal/platform/dbctx"
)

type InventoryReconciliationAggregateDeps struct {
	Base BaseDeps

	Receipts     repos.ReceiptRepo
	Products     repos.ProductRepo
	Transactions repos.TransactionRepo
}

type inventoryReconciliationAggregate struct {
	deps InventoryReconciliationAggregateDeps
}

func NewInventoryReconciliationAggregate(deps InventoryReconciliationAggregateDeps) domainagg.InventoryReconciliationAggregate {
	deps.Base = deps.Base.withDefaults()
	return &inventoryReconciliationAggregate{deps: deps}
}

func (a *inventoryReconciliationAggregate) Contract() domainagg.Contract {
	return domainagg.InventoryReconciliationAggregateContract
}

func (a *inventoryReconciliationAggregate) ConfirmReceipt(ctx context.Context, in domainagg.ConfirmReceiptInput) (domainagg.ConfirmReceiptResult, error) {
	const op = "Inventory.Reconciliation.ConfirmReceipt"
	var out domainagg.ConfirmReceiptResult
	if in.ReceiptID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing receipt_id", nil)
	}
	if len(in.Items) == 0 {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "no items to confirm", nil)
	}
	for i, it := range in.Items {
		if it.ProductID == uuid.Nil {
			return out, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("item %d: missing product_id", i), nil)
		}
		if it.Quantity <= 0 {
			return out, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("item %d: quantity must be positive", i), nil)
		}
	}
	if a.deps.Receipts == nil || a.deps.Products == nil || a.deps.Transactions == nil {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "reconciliation repos not configured", nil)
	}

	confirmedAt := time.Now().UTC()
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		rec, err := a.deps.Receipts.GetByIDForUpdate(dbc, in.ReceiptID)
		if err != nil {
			return err
		}
		if rec == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("receipt %s", in.ReceiptID), domainagg.ErrReceiptNotFound)
		}
		if err := RequireStatusAllowed(string(rec.Status), string(types.ReceiptPendingConfirmation)); err != nil {
			return err
		}

		products, err := a.lockProducts(dbc, op, in.Items)
		if err != nil {
			return err
		}

		txn, err := a.deps.Transactions.Create(dbc, &types.Transaction{
			ReceiptID:  rec.ID,
			TotalItems: len(in.Items),
			CreatedAt:  confirmedAt,
		})
		if err != nil {
			return err
		}

		lines := make([]*types.TransactionItem, 0, len(in.Items))
		for i, it := range in.Items {
			p := products[it.ProductID]
			if err := a.deps.Products.IncrementQuantity(dbc, p.ID, it.Quantity); err != nil {
				return err
			}
			p.Quantity += it.Quantity
			lines = append(lines, &types.TransactionItem{
				TransactionID: txn.ID,
				Position:      i,
				ProductID:     p.ID,
				ProductName:   firstNonBlank(it.ProductName, p.Name),
				Quantity:      it.Quantity,
				Unit:          firstNonBlank(it.Unit, p.Unit),
				Confidence:    1.0,
				OriginalText:  it.OriginalText,
				CreatedAt:     confirmedAt,
			})
		}
		if _, err := a.deps.Transactions.CreateItems(dbc, lines); err != nil {
			return err
		}

		ok, err := a.deps.Base.CASGuard.UpdateByStatus(dbc, receiptTable, rec.ID, []string{string(types.ReceiptPendingConfirmation)}, map[string]any{
			"status":       types.ReceiptConfirmed,
			"confirmed_at": confirmedAt,
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "receipt changed while confirming"); err != nil {
			return err
		}

		txn.Items = lines
		out.Transaction = txn
		out.LowStock = lowStock(products)
		out.ConfirmedAt = confirmedAt
		return nil
	})
	if err != nil {
		return domainagg.ConfirmReceiptResult{}, err
	}
	return out, nil
}

// lockProducts row-locks every referenced product in id order so two
// confirmations touching the same products cannot deadlock.
func (a *inventoryReconciliationAggregate) lockProducts(dbc dbctx.Context, op string, items []types.ValidatedItem) (map[uuid.UUID]*types.Product, error) {
	ids := make([]uuid.UUID, 0, len(items))
	seen := make(map[uuid.UUID]bool, len(items))
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })

	out := make(map[uuid.UUID]*types.Product, len(ids))
	for _, id := range ids {
		p, err := a.deps.Products.GetByIDForUpdate(dbc, id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("product %s", id), domainagg.ErrProductNotFound)
		}
		out[id] = p
	}
	return out, nil
}

func lowStock(products map[uuid.UUID]*types.Product) []*types.Product {
	out := make([]*types.Product, 0)
	for _, p := range products {
		if p.IsLowStock() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
