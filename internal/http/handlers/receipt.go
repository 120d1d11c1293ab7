package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/http/response"
	"github.com/yungbote/stockscan-backend/internal/platform/apierr"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/services"
)

// multipart overhead on top of the image limit
const uploadFormSlack = 1 << 20

type ReceiptHandler struct {
	log       *logger.Logger
	receipts  services.ReceiptService
	inventory services.InventoryService
}

func NewReceiptHandler(log *logger.Logger, receipts services.ReceiptService, inventory services.InventoryService) *ReceiptHandler {
	return &ReceiptHandler{
		log:       log.With("handler", "ReceiptHandler"),
		receipts:  receipts,
		inventory: inventory,
	}
}

// POST /api/receipts (multipart field "image")
func (h *ReceiptHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxReceiptImageBytes+uploadFormSlack)
	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondError(c, http.StatusRequestEntityTooLarge, "image_too_large", err)
			return
		}
		response.RespondError(c, http.StatusBadRequest, "missing_image", err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_image", err)
		return
	}
	defer f.Close()

	view, err := h.receipts.Upload(c.Request.Context(), services.UploadReceiptInput{
		Filename: fh.Filename,
		Body:     f,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"receipt": view, "job": view.Job})
}

// GET /api/receipts/:id
func (h *ReceiptHandler) Get(c *gin.Context) {
	id, err := pathUUID(c, "id", "invalid_receipt_id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	view, err := h.receipts.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"receipt": view})
}

// POST /api/receipts/:id/reprocess
func (h *ReceiptHandler) Reprocess(c *gin.Context) {
	id, err := pathUUID(c, "id", "invalid_receipt_id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	view, err := h.receipts.Reprocess(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"receipt": view, "job": view.Job})
}

type confirmRequest struct {
	Items []types.ValidatedItem `json:"items"`
}

// POST /api/receipts/:id/confirm
func (h *ReceiptHandler) Confirm(c *gin.Context) {
	id, err := pathUUID(c, "id", "invalid_receipt_id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErr(c, apierr.New(http.StatusBadRequest, "invalid_body", err))
		return
	}
	res, err := h.receipts.Confirm(c.Request.Context(), id, req.Items)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/receipts/:id/transaction
func (h *ReceiptHandler) Transaction(c *gin.Context) {
	id, err := pathUUID(c, "id", "invalid_receipt_id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	txn, err := h.inventory.GetTransactionForReceipt(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"transaction": txn})
}
