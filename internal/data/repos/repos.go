package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/stockscan-backend/internal/data/repos/inventory"
	"github.com/yungbote/stockscan-backend/internal/data/repos/jobs"
	"github.com/yungbote/stockscan-backend/internal/data/repos/receipts"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

type ReceiptRepo = receipts.ReceiptRepo

type ProductRepo = inventory.ProductRepo
type TransactionRepo = inventory.TransactionRepo

type JobRunRepo = jobs.JobRunRepo
type JobRunEventRepo = jobs.JobRunEventRepo

func NewReceiptRepo(db *gorm.DB, baseLog *logger.Logger) ReceiptRepo {
	return receipts.NewReceiptRepo(db, baseLog)
}

func NewProductRepo(db *gorm.DB, baseLog *logger.Logger) ProductRepo {
	return inventory.NewProductRepo(db, baseLog)
}
func NewTransactionRepo(db *gorm.DB, baseLog *logger.Logger) TransactionRepo {
	return inventory.NewTransactionRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
func NewJobRunEventRepo(db *gorm.DB, baseLog *logger.Logger) JobRunEventRepo {
	return jobs.NewJobRunEventRepo(db, baseLog)
}
