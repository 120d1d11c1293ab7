package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/stockscan-backend/internal/data/db"
	httpapi "github.com/yungbote/stockscan-backend/internal/http"
	"github.com/yungbote/stockscan-backend/internal/observability"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/realtime"
	"github.com/yungbote/stockscan-backend/internal/services"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Server   *httpapi.Server
	Repos    Repos
	Clients  Clients
	Services Services
	SSEHub   *realtime.SSEHub
	Metrics  *observability.Metrics

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	metrics := observability.Init(log)
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	fail := func(err error) (*App, error) {
		_ = otelShutdown(context.Background())
		log.Sync()
		return nil, err
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		return fail(fmt.Errorf("init postgres: %w", err))
	}
	if err := pg.AutoMigrateAll(); err != nil {
		return fail(fmt.Errorf("postgres automigrate: %w", err))
	}
	theDB := pg.DB()

	clients, err := wireClients(log, cfg)
	if err != nil {
		return fail(err)
	}
	images, err := newImageStore(context.Background(), log, cfg)
	if err != nil {
		clients.Close()
		return fail(err)
	}

	hub := realtime.NewSSEHub(log)
	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(serviceDeps{
		DB:      theDB,
		Log:     log,
		Cfg:     cfg,
		Metrics: metrics,
		Repos:   reposet,
		Clients: clients,
		Images:  images.store,
		Hub:     hub,
	})
	if err != nil {
		clients.Close()
		return fail(err)
	}

	h := wireHandlers(log, theDB, clients, serviceset, hub)
	server := httpapi.NewServer(httpapi.RouterConfig{
		Log:              log,
		Metrics:          metrics,
		CORSOrigins:      cfg.CORSOrigins,
		ServiceName:      cfg.ServiceName,
		FilesDir:         images.filesDir,
		ReceiptHandler:   h.Receipt,
		InventoryHandler: h.Inventory,
		JobHandler:       h.Job,
		RealtimeHandler:  h.Realtime,
		HealthHandler:    h.Health,
	})

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Server:       server,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		SSEHub:       hub,
		Metrics:      metrics,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background loops: job worker, metrics endpoint and
// collectors, and the job bus forwarder.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Start(ctx)
	}

	if a.Metrics != nil {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
		a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB)
		if a.Clients.Redis != nil {
			a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
		}
	}

	if a.Clients.JobBus != nil {
		if err := services.ForwardJobBus(ctx, a.Clients.JobBus, a.SSEHub); err != nil {
			a.Log.Warn("Job bus forwarder failed to start; streams only see local updates", "error", err)
		}
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", addr)
	return a.Server.Run(addr)
}

// Close drains the HTTP server, stops the background loops and waits for
// in-flight jobs before releasing clients.
func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("HTTP shutdown", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Wait()
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("OTel shutdown", "error", err)
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
