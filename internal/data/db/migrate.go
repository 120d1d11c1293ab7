package db

import (
	"fmt"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("enable pgvector: %w", err)
		}
	}
	return db.AutoMigrate(
		// Catalog + stock ledger
		&types.Product{},
		&types.Transaction{},
		&types.TransactionItem{},

		// Receipt intake
		&types.Receipt{},

		// Jobs
		&types.JobRun{},
		&types.JobRunEvent{},
	)
}
