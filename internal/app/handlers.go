package app

import (
	"context"

	"gorm.io/gorm"

	httpH "github.com/yungbote/stockscan-backend/internal/http/handlers"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/realtime"
)

type Handlers struct {
	Receipt   *httpH.ReceiptHandler
	Inventory *httpH.InventoryHandler
	Job       *httpH.JobHandler
	Realtime  *httpH.RealtimeHandler
	Health    *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, clients Clients, svc Services, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	checks := map[string]httpH.Pinger{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if clients.Redis != nil {
		checks["redis"] = clients.pingRedis
	}
	return Handlers{
		Receipt:   httpH.NewReceiptHandler(log, svc.Receipts, svc.Inventory),
		Inventory: httpH.NewInventoryHandler(svc.Inventory),
		Job:       httpH.NewJobHandler(svc.Jobs),
		Realtime:  httpH.NewRealtimeHandler(log, hub),
		Health:    httpH.NewHealthHandler(checks),
	}
}
