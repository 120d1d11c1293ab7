package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/stockscan-backend/internal/http/response"
	"github.com/yungbote/stockscan-backend/internal/services"
)

type InventoryHandler struct {
	inventory services.InventoryService
}

func NewInventoryHandler(inventory services.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventory: inventory}
}

// GET /api/transactions/:id
func (h *InventoryHandler) GetTransaction(c *gin.Context) {
	id, err := pathUUID(c, "id", "invalid_transaction_id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	txn, err := h.inventory.GetTransaction(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"transaction": txn})
}

// GET /api/products/low-stock
func (h *InventoryHandler) LowStock(c *gin.Context) {
	products, err := h.inventory.LowStock(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"products": products})
}

// POST /api/catalog/embeddings
func (h *InventoryHandler) EmbedCatalog(c *gin.Context) {
	job, err := h.inventory.EnqueueCatalogEmbed(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"job": job})
}
