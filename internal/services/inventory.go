package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/stockscan-backend/internal/data/repos"
	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/platform/dbctx"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

type InventoryService interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*types.Transaction, error)
	GetTransactionForReceipt(ctx context.Context, receiptID uuid.UUID) (*types.Transaction, error)
	LowStock(ctx context.Context) ([]*types.Product, error)
	// EnqueueCatalogEmbed queues a backfill of products without embeddings.
	EnqueueCatalogEmbed(ctx context.Context) (*types.JobRun, error)
}

type inventoryService struct {
	log          *logger.Logger
	products     repos.ProductRepo
	transactions repos.TransactionRepo
	jobs         JobService
}

func NewInventoryService(log *logger.Logger, products repos.ProductRepo, transactions repos.TransactionRepo, jobs JobService) InventoryService {
	if log == nil {
		log = logger.Nop()
	}
	return &inventoryService{
		log:          log.With("service", "InventoryService"),
		products:     products,
		transactions: transactions,
		jobs:         jobs,
	}
}

func (s *inventoryService) GetTransaction(ctx context.Context, id uuid.UUID) (*types.Transaction, error) {
	const op = "inventory.transaction"
	if id == uuid.Nil {
		return nil, receipts.NewError(receipts.KindInvalidInput, op, "missing transaction id", nil)
	}
	txn, err := s.transactions.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, receipts.Wrap(receipts.KindInternal, op, err)
	}
	if txn == nil {
		return nil, receipts.NewError(receipts.KindNotFound, op, "transaction not found", nil)
	}
	return txn, nil
}

func (s *inventoryService) GetTransactionForReceipt(ctx context.Context, receiptID uuid.UUID) (*types.Transaction, error) {
	const op = "inventory.receipt_transaction"
	txn, err := s.transactions.GetByReceiptID(dbctx.Context{Ctx: ctx}, receiptID)
	if err != nil {
		return nil, receipts.Wrap(receipts.KindInternal, op, err)
	}
	if txn == nil {
		return nil, receipts.NewError(receipts.KindNotFound, op, "receipt has no transaction", nil)
	}
	return txn, nil
}

func (s *inventoryService) LowStock(ctx context.Context) ([]*types.Product, error) {
	out, err := s.products.ListLowStock(dbctx.Context{Ctx: ctx})
	if err != nil {
		return nil, receipts.Wrap(receipts.KindInternal, "inventory.low_stock", err)
	}
	if out == nil {
		out = []*types.Product{}
	}
	return out, nil
}

func (s *inventoryService) EnqueueCatalogEmbed(ctx context.Context) (*types.JobRun, error) {
	job, err := s.jobs.Enqueue(dbctx.Context{Ctx: ctx}, types.JobTypeCatalogEmbed, "", nil, nil)
	if err != nil {
		return nil, receipts.Wrap(receipts.KindInternal, "inventory.catalog_embed", err)
	}
	s.log.Info("catalog embedding backfill queued", "job_id", job.ID)
	return job, nil
}
