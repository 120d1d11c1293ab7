package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/stockscan-backend/internal/domain/inventory"
	"github.com/yungbote/stockscan-backend/internal/domain/receipts"
)

func SeedProduct(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, quantity, reorderPoint int, embedding []float32) *inventory.Product {
	tb.Helper()
	p := &inventory.Product{
		ID:           uuid.New(),
		Name:         name,
		Unit:         "ชิ้น",
		Quantity:     quantity,
		ReorderPoint: reorderPoint,
		Embedding:    inventory.EncodeVector(embedding),
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed product: %v", err)
	}
	return p
}

func SeedReceipt(tb testing.TB, ctx context.Context, tx *gorm.DB, status receipts.Status) *receipts.Receipt {
	tb.Helper()
	r := &receipts.Receipt{
		ID:             uuid.New(),
		ImageReference: "receipts/" + uuid.NewString() + ".jpg",
		Status:         status,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed receipt: %v", err)
	}
	return r
}
