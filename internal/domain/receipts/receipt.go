package receipts

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusProcessing          Status = "processing"
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusConfirmed           Status = "confirmed"
	StatusFailed              Status = "failed"
)

// Receipt is owned by the pipeline while processing and by the confirmation
// workflow once it reaches pending_confirmation.
type Receipt struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ImageReference    string         `gorm:"column:image_reference;not null" json:"image_reference"`
	Status            Status         `gorm:"column:status;not null;index" json:"status"`
	RawExtractionText *string        `gorm:"column:raw_extraction_text;type:text" json:"raw_extraction_text,omitempty"`
	ProposedItems     datatypes.JSON `gorm:"column:proposed_items;type:jsonb" json:"proposed_items,omitempty"`
	ErrorMessage      *string        `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	ConfirmedAt       *time.Time     `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null" json:"updated_at"`
}

func (Receipt) TableName() string { return "receipt" }

func (r *Receipt) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Terminal reports whether the pipeline has nothing left to do for the receipt.
func (s Status) Terminal() bool {
	return s == StatusPendingConfirmation || s == StatusConfirmed
}
