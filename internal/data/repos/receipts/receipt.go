package receipts

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/platform/dbctx"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

type ReceiptRepo interface {
	Create(dbc dbctx.Context, receipts []*types.Receipt) ([]*types.Receipt, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Receipt, error)
	GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Receipt, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.ReceiptStatus, updates map[string]interface{}) (bool, error)
}

type receiptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReceiptRepo(db *gorm.DB, baseLog *logger.Logger) ReceiptRepo {
	return &receiptRepo{
		db:  db,
		log: baseLog.With("repo", "ReceiptRepo"),
	}
}

func (r *receiptRepo) Create(dbc dbctx.Context, receipts []*types.Receipt) ([]*types.Receipt, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(receipts) == 0 {
		return []*types.Receipt{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}

// GetByID returns (nil, nil) when the receipt does not exist.
func (r *receiptRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Receipt, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Receipt
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

// GetByIDForUpdate locks the receipt row for the rest of dbc.Tx.
func (r *receiptRepo) GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Receipt, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Receipt
	if err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *receiptRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Receipt{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateFieldsIfStatus applies updates only while the receipt is in one of
// the allowed statuses. It reports whether a row changed.
func (r *receiptRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.ReceiptStatus, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	q := transaction.WithContext(dbc.Ctx).
		Model(&types.Receipt{}).
		Where("id = ?", id)
	if len(allowed) > 0 {
		q = q.Where("status IN ?", allowed)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
