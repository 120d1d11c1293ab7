package inventory

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Transaction records one confirmed receipt's stock-in. Immutable once written.
type Transaction struct {
	ID         uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	ReceiptID  uuid.UUID          `gorm:"type:uuid;column:receipt_id;not null;uniqueIndex" json:"receipt_id"`
	TotalItems int                `gorm:"column:total_items;not null" json:"total_items"`
	Items      []*TransactionItem `gorm:"foreignKey:TransactionID" json:"items,omitempty"`
	CreatedAt  time.Time          `gorm:"not null;index" json:"created_at"`
}

func (Transaction) TableName() string { return "inventory_transaction" }

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type TransactionItem struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID uuid.UUID `gorm:"type:uuid;column:transaction_id;not null;index" json:"transaction_id"`
	Position      int       `gorm:"column:position;not null" json:"position"`
	ProductID     uuid.UUID `gorm:"type:uuid;column:product_id;not null;index" json:"product_id"`
	ProductName   string    `gorm:"column:product_name;not null" json:"product_name"`
	Quantity      int       `gorm:"column:quantity;not null" json:"quantity"`
	Unit          string    `gorm:"column:unit" json:"unit"`
	Confidence    float64   `gorm:"column:confidence;not null;default:1" json:"confidence"`
	OriginalText  string    `gorm:"column:original_text;type:text" json:"original_text"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

func (TransactionItem) TableName() string { return "inventory_transaction_item" }

func (i *TransactionItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
