package inventory

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/platform/dbctx"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

type TransactionRepo interface {
	Create(dbc dbctx.Context, txn *types.Transaction) (*types.Transaction, error)
	CreateItems(dbc dbctx.Context, items []*types.TransactionItem) ([]*types.TransactionItem, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Transaction, error)
	GetByReceiptID(dbc dbctx.Context, receiptID uuid.UUID) (*types.Transaction, error)
}

type transactionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTransactionRepo(db *gorm.DB, baseLog *logger.Logger) TransactionRepo {
	return &transactionRepo{
		db:  db,
		log: baseLog.With("repo", "TransactionRepo"),
	}
}

// Create writes the header row only; items go through CreateItems.
func (r *transactionRepo) Create(dbc dbctx.Context, txn *types.Transaction) (*types.Transaction, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if txn == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Omit("Items").Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *transactionRepo) CreateItems(dbc dbctx.Context, items []*types.TransactionItem) ([]*types.TransactionItem, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(items) == 0 {
		return []*types.TransactionItem{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *transactionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Transaction, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	return r.findOne(transaction.WithContext(dbc.Ctx).Where("id = ?", id))
}

func (r *transactionRepo) GetByReceiptID(dbc dbctx.Context, receiptID uuid.UUID) (*types.Transaction, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if receiptID == uuid.Nil {
		return nil, nil
	}
	return r.findOne(transaction.WithContext(dbc.Ctx).Where("receipt_id = ?", receiptID))
}

func (r *transactionRepo) findOne(q *gorm.DB) (*types.Transaction, error) {
	var out types.Transaction
	if err := q.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}
