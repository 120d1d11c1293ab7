package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// Product is a catalog entry. Quantity only changes inside a reconciliation.
type Product struct {
	ID           uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string           `gorm:"column:name;not null;index" json:"name"`
	Description  string           `gorm:"column:description;type:text" json:"description,omitempty"`
	Unit         string           `gorm:"column:unit;not null" json:"unit"`
	Quantity     int              `gorm:"column:quantity;not null;default:0" json:"quantity"`
	ReorderPoint int              `gorm:"column:reorder_point;not null;default:0" json:"reorder_point"`
	Embedding    *pgvector.Vector `gorm:"column:embedding;type:vector" json:"-"`
	CreatedAt    time.Time        `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time        `gorm:"not null" json:"updated_at"`
}

func (Product) TableName() string { return "product" }

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Product) IsLowStock() bool {
	return p != nil && p.Quantity < p.ReorderPoint
}

// Vector returns the stored embedding, or nil when there is none.
func (p *Product) Vector() []float32 {
	if p == nil || p.Embedding == nil {
		return nil
	}
	return p.Embedding.Slice()
}

// EncodeVector is the inverse of Vector.
func EncodeVector(v []float32) *pgvector.Vector {
	if len(v) == 0 {
		return nil
	}
	out := pgvector.NewVector(v)
	return &out
}
