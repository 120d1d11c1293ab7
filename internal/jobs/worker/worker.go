package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/stockscan-backend/internal/data/repos"
	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/jobs/runtime"
	"github.com/yungbote/stockscan-backend/internal/observability"
	"github.com/yungbote/stockscan-backend/internal/platform/dbctx"
	"github.com/yungbote/stockscan-backend/internal/platform/envutil"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/services"
)

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	// StaleRunning is how long a running job may go without a heartbeat
	// before another worker reclaims it.
	StaleRunning time.Duration
	JobTimeout   time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Concurrency:  envutil.Int("WORKER_CONCURRENCY", 4),
		PollInterval: envutil.Seconds("WORKER_POLL_SECONDS", time.Second),
		MaxAttempts:  envutil.Int("JOB_MAX_ATTEMPTS", 5),
		RetryDelay:   envutil.Seconds("JOB_RETRY_DELAY_SECONDS", 30*time.Second),
		StaleRunning: envutil.Seconds("JOB_STALE_SECONDS", 5*time.Minute),
		JobTimeout:   envutil.Seconds("JOB_TIMEOUT_SECONDS", 10*time.Minute),
	}
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = 5 * time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 10 * time.Minute
	}
	return c
}

type Deps struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Repo     repos.JobRunRepo
	Events   repos.JobRunEventRepo
	Registry *runtime.Registry
	Notify   services.JobNotifier
	Metrics  *observability.Metrics
	Config   Config
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	events   repos.JobRunEventRepo
	registry *runtime.Registry
	notify   services.JobNotifier
	metrics  *observability.Metrics
	cfg      Config
	wg       sync.WaitGroup
}

func NewWorker(deps Deps) *Worker {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Worker{
		db:       deps.DB,
		log:      log.With("component", "JobWorker"),
		repo:     deps.Repo,
		events:   deps.Events,
		registry: deps.Registry,
		notify:   deps.Notify,
		metrics:  deps.Metrics,
		cfg:      deps.Config.withDefaults(),
	}
}

// Start launches the polling loops. They stop when ctx is done; Wait blocks
// until in-flight runs have returned.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool",
		"concurrency", w.cfg.Concurrency,
		"job_types", w.registry.Types(),
		"job_timeout", w.cfg.JobTimeout.String(),
	)
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.runLoop(ctx, i+1)
	}
}

func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// Drain the queue before waiting for the next tick.
			for ctx.Err() == nil {
				ran, err := w.RunOnce(ctx)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
				}
				if !ran {
					break
				}
			}
		}
	}
}

// RunOnce claims and executes at most one job. It reports whether a job ran.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleRunning)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.execute(ctx, job)
	return true, nil
}

func (w *Worker) execute(parent context.Context, job *types.JobRun) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, w.cfg.JobTimeout)
	defer cancel()

	stopHeartbeat := w.heartbeat(ctx, job)
	defer stopHeartbeat()

	jc := runtime.NewContext(ctx, job, runtime.Deps{
		DB:          w.db,
		Repo:        w.repo,
		Events:      w.events,
		Notify:      w.notify,
		Log:         w.log,
		MaxAttempts: w.cfg.MaxAttempts,
	})
	defer func() {
		w.metrics.ObserveJobRun(job.JobType, jc.Job.Status, time.Since(start))
	}()

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
		jc.FailPermanently("dispatch", &missingHandlerError{JobType: job.JobType})
		return
	}

	jc.Log.Info("job started", "attempt", job.Attempts)
	func() {
		defer func() {
			if r := recover(); r != nil {
				jc.Log.Error("Job handler panic", "panic", r, "stack", string(debug.Stack()))
				jc.Fail("panic", &panicError{Val: r})
			}
		}()

		runErr := h.Run(jc)
		if ctx.Err() == context.DeadlineExceeded && !jc.Terminal() {
			jc.Fail("timeout", fmt.Errorf("job exceeded %s", w.cfg.JobTimeout))
			return
		}
		switch {
		case runErr != nil && !jc.Terminal():
			// Handlers normally settle the run themselves.
			jc.Fail("run", runErr)
		case runErr == nil && !jc.Terminal():
			jc.Succeed("done", nil)
		}
	}()
	jc.Log.Info("job finished", "status", jc.Job.Status, "elapsed", time.Since(start).String())
}

// heartbeat keeps a long run from looking stale to other workers.
func (w *Worker) heartbeat(ctx context.Context, job *types.JobRun) func() {
	every := w.cfg.StaleRunning / 3
	if every <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := w.repo.Heartbeat(dbctx.Context{Ctx: ctx}, job.ID); err != nil {
					w.log.Warn("job heartbeat failed", "job_id", job.ID, "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
