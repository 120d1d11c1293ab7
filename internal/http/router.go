package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/stockscan-backend/internal/http/handlers"
	httpMW "github.com/yungbote/stockscan-backend/internal/http/middleware"
	"github.com/yungbote/stockscan-backend/internal/observability"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string
	// ServiceName labels HTTP spans.
	ServiceName string
	// FilesDir is served under /files when images live on local disk.
	FilesDir string

	ReceiptHandler   *httpH.ReceiptHandler
	InventoryHandler *httpH.InventoryHandler
	JobHandler       *httpH.JobHandler
	RealtimeHandler  *httpH.RealtimeHandler
	HealthHandler    *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	if cfg.FilesDir != "" {
		r.Static("/files", cfg.FilesDir)
	}

	api := r.Group("/api")
	{
		// Receipts
		if cfg.ReceiptHandler != nil {
			api.POST("/receipts", cfg.ReceiptHandler.Upload)
			api.GET("/receipts/:id", cfg.ReceiptHandler.Get)
			api.POST("/receipts/:id/reprocess", cfg.ReceiptHandler.Reprocess)
			api.POST("/receipts/:id/confirm", cfg.ReceiptHandler.Confirm)
			api.GET("/receipts/:id/transaction", cfg.ReceiptHandler.Transaction)
		}

		// Inventory
		if cfg.InventoryHandler != nil {
			api.GET("/transactions/:id", cfg.InventoryHandler.GetTransaction)
			api.GET("/products/low-stock", cfg.InventoryHandler.LowStock)
			api.POST("/catalog/embeddings", cfg.InventoryHandler.EmbedCatalog)
		}

		// Job
		if cfg.JobHandler != nil {
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
			api.GET("/jobs/:id/events", cfg.JobHandler.ListEvents)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/receipts/:id/events", cfg.RealtimeHandler.ReceiptEvents)
			api.GET("/jobs/:id/stream", cfg.RealtimeHandler.JobEvents)
		}
	}

	return r
}
