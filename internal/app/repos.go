package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/stockscan-backend/internal/data/repos"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

type Repos struct {
	Receipts     repos.ReceiptRepo
	Products     repos.ProductRepo
	Transactions repos.TransactionRepo
	JobRuns      repos.JobRunRepo
	JobEvents    repos.JobRunEventRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Receipts:     repos.NewReceiptRepo(db, log),
		Products:     repos.NewProductRepo(db, log),
		Transactions: repos.NewTransactionRepo(db, log),
		JobRuns:      repos.NewJobRunRepo(db, log),
		JobEvents:    repos.NewJobRunEventRepo(db, log),
	}
}
