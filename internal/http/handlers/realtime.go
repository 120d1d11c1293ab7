package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/stockscan-backend/internal/http/response"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/realtime"
)

// RealtimeHandler streams job updates over SSE. A stream is scoped to one
// receipt or one job; the id doubles as the hub channel.
type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/receipts/:id/events
func (h *RealtimeHandler) ReceiptEvents(c *gin.Context) {
	h.stream(c, "invalid_receipt_id")
}

// GET /api/jobs/:id/stream
func (h *RealtimeHandler) JobEvents(c *gin.Context) {
	h.stream(c, "invalid_job_id")
}

func (h *RealtimeHandler) stream(c *gin.Context, code string) {
	id, err := pathUUID(c, "id", code)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	client := h.hub.NewSSEClient()
	h.hub.AddChannel(client, id.String())
	h.log.Debug("SSE stream open", "client_id", client.ID, "channel", id)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.hub.CloseClient(client)
	h.log.Debug("SSE stream closed", "client_id", client.ID, "channel", id)
}
