package receipts

import "github.com/google/uuid"

// ExtractedItem is a raw line item as read off the receipt image.
type ExtractedItem struct {
	Name         string `json:"name"`
	QuantityText string `json:"quantity"`
	OriginalText string `json:"original_text"`
}

// MatchedProduct is the catalog candidate chosen for an extracted item.
type MatchedProduct struct {
	ProductID       uuid.UUID `json:"product_id"`
	ProductName     string    `json:"product_name"`
	Unit            string    `json:"unit"`
	SimilarityScore float64   `json:"similarity_score"`
}

// ValidatedItem is the machine-actionable form of a line item.
type ValidatedItem struct {
	ProductID    uuid.UUID `json:"product_id" validate:"required"`
	ProductName  string    `json:"product_name" validate:"required"`
	Quantity     int       `json:"quantity" validate:"gt=0"`
	Unit         string    `json:"unit"`
	Confidence   float64   `json:"confidence" validate:"gte=0,lte=1"`
	OriginalText string    `json:"original_text"`
}

// UnmatchedItem is kept on the proposal so the reviewer can see what was skipped.
type UnmatchedItem struct {
	Name         string `json:"name"`
	Quantity     string `json:"quantity"`
	OriginalText string `json:"original_text"`
}

// Proposal is the payload persisted on Receipt.ProposedItems.
type Proposal struct {
	ReceiptID      uuid.UUID       `json:"receipt_id"`
	Items          []ValidatedItem `json:"items"`
	TotalItems     int             `json:"total_items"`
	UnmatchedItems []UnmatchedItem `json:"unmatched_items"`
	ImageURL       string          `json:"image_url"`
}
