package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/stockscan-backend/internal/data/aggregates"
	domainagg "github.com/yungbote/stockscan-backend/internal/domain/aggregates"
	"github.com/yungbote/stockscan-backend/internal/jobs/pipeline/catalog_embed"
	"github.com/yungbote/stockscan-backend/internal/jobs/pipeline/receipt_process"
	"github.com/yungbote/stockscan-backend/internal/jobs/runtime"
	"github.com/yungbote/stockscan-backend/internal/jobs/worker"
	"github.com/yungbote/stockscan-backend/internal/modules/catalog"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts/adapters"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts/matching"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts/pipeline"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts/reconcile"
	"github.com/yungbote/stockscan-backend/internal/normalization"
	"github.com/yungbote/stockscan-backend/internal/observability"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/realtime"
	"github.com/yungbote/stockscan-backend/internal/services"
)

type Services struct {
	Lifecycle domainagg.ReceiptLifecycleAggregate
	Pipeline  *pipeline.Orchestrator
	Reconcile *reconcile.Reconciler
	Backfill  *catalog.Backfiller

	Notifier  services.JobNotifier
	Jobs      services.JobService
	Receipts  services.ReceiptService
	Inventory services.InventoryService

	JobWorker *worker.Worker
}

type serviceDeps struct {
	DB      *gorm.DB
	Log     *logger.Logger
	Cfg     Config
	Metrics *observability.Metrics
	Repos   Repos
	Clients Clients
	Images  receipts.ImageStore
	Hub     *realtime.SSEHub
}

func wireServices(d serviceDeps) (Services, error) {
	log := d.Log
	log.Info("Wiring services...")

	base := aggregates.BaseDeps{
		DB:    d.DB,
		Log:   log,
		Hooks: aggregates.NewObservabilityHooks(d.Metrics, log),
	}
	lifecycle := aggregates.NewReceiptLifecycleAggregate(aggregates.ReceiptLifecycleAggregateDeps{
		Base:     base,
		Receipts: d.Repos.Receipts,
	})
	reconciliation := aggregates.NewInventoryReconciliationAggregate(aggregates.InventoryReconciliationAggregateDeps{
		Base:         base,
		Receipts:     d.Repos.Receipts,
		Products:     d.Repos.Products,
		Transactions: d.Repos.Transactions,
	})

	norm, err := normalization.NewDefault(d.Cfg.VariantsFile)
	if err != nil {
		return Services{}, fmt.Errorf("init normalizer: %w", err)
	}

	embedder, err := adapters.NewCachedEmbedder(log, d.Clients.OpenAI, d.Clients.EmbeddingCache, norm)
	if err != nil {
		return Services{}, fmt.Errorf("init embedder: %w", err)
	}
	extractor, err := newExtractor(log, d.Cfg, d.Clients)
	if err != nil {
		return Services{}, err
	}
	validator, err := adapters.NewLLMValidator(log, d.Clients.OpenAI, d.Cfg.Pipeline.ConfidenceWarn)
	if err != nil {
		return Services{}, fmt.Errorf("init validator: %w", err)
	}
	matcher := matching.New(matching.Deps{
		Log:        log,
		Catalog:    d.Repos.Products,
		Embedder:   embedder,
		Normalizer: norm,
		Config:     d.Cfg.Match,
	})

	orchestrator := pipeline.New(pipeline.Deps{
		Log:       log,
		Lifecycle: lifecycle,
		Images:    d.Images,
		Extractor: extractor,
		Matcher:   matcher,
		Validator: validator,
		Metrics:   d.Metrics,
		Config:    d.Cfg.Pipeline,
	})
	reconciler := reconcile.New(log, reconciliation)
	backfill := catalog.NewBackfiller(catalog.BackfillDeps{
		Log:      log,
		Products: d.Repos.Products,
		Embedder: embedder,
		Retry:    d.Cfg.Pipeline.Retry,
	})

	notifier := services.NewJobNotifier(log, newJobEmitter(log, d.Clients, d.Hub))
	jobs := services.NewJobService(d.DB, log, d.Repos.JobRuns, d.Repos.JobEvents, notifier)

	receiptSvc := services.NewReceiptService(services.ReceiptServiceDeps{
		DB:         d.DB,
		Log:        log,
		Receipts:   d.Repos.Receipts,
		Lifecycle:  lifecycle,
		Jobs:       jobs,
		Images:     d.Images,
		Reconciler: reconciler,
	})
	inventory := services.NewInventoryService(log, d.Repos.Products, d.Repos.Transactions, jobs)

	out := Services{
		Lifecycle: lifecycle,
		Pipeline:  orchestrator,
		Reconcile: reconciler,
		Backfill:  backfill,
		Notifier:  notifier,
		Jobs:      jobs,
		Receipts:  receiptSvc,
		Inventory: inventory,
	}

	if d.Cfg.WorkerEnabled {
		registry := runtime.NewRegistry()
		if err := registry.Register(receipt_process.New(log, orchestrator)); err != nil {
			return Services{}, fmt.Errorf("register receipt_process: %w", err)
		}
		if err := registry.Register(catalog_embed.New(log, backfill)); err != nil {
			return Services{}, fmt.Errorf("register catalog_embed: %w", err)
		}
		out.JobWorker = worker.NewWorker(worker.Deps{
			DB:       d.DB,
			Log:      log,
			Repo:     d.Repos.JobRuns,
			Events:   d.Repos.JobEvents,
			Registry: registry,
			Notify:   notifier,
			Metrics:  d.Metrics,
			Config:   d.Cfg.Worker,
		})
	} else {
		log.Warn("Job worker disabled; queued receipts wait for another instance")
	}
	return out, nil
}

func newExtractor(log *logger.Logger, cfg Config, c Clients) (receipts.Extractor, error) {
	switch cfg.ExtractionMode {
	case ExtractionOCRLLM:
		x, err := adapters.NewOCRExtractor(log, c.Vision, c.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("init ocr extractor: %w", err)
		}
		return x, nil
	default:
		x, err := adapters.NewVisionExtractor(log, c.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("init vision extractor: %w", err)
		}
		return x, nil
	}
}

// newJobEmitter publishes through Redis when it is configured so every API
// replica can serve the stream; otherwise updates go straight to the hub.
func newJobEmitter(log *logger.Logger, c Clients, hub *realtime.SSEHub) services.JobEmitter {
	local := &services.HubEmitter{Hub: hub}
	if c.JobBus == nil {
		return local
	}
	return &services.RedisEmitter{Bus: c.JobBus, Fallback: local, Log: log}
}
