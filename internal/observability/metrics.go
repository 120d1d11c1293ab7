package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/domain/jobs"
	"github.com/yungbote/stockscan-backend/internal/platform/envutil"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

// Metrics is the process-wide registry served on /metrics. All methods are
// safe on a nil receiver so callers never need to check METRICS_ENABLED.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *GaugeVec

	pipelineStage    *HistogramVec
	pipelineOutcomes *CounterVec
	itemsProcessed   *CounterVec

	aggregateOps       *CounterVec
	aggregateLatency   *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec

	jobRuns    *CounterVec
	jobLatency *HistogramVec
	queueDepth *GaugeVec

	dbPool    *GaugeVec
	redisUp   *GaugeVec
	redisPing *GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

// Init builds the shared registry once. It returns nil when metrics are off.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics registry initialized")
		}
	})
	return instance
}

// New returns a standalone registry.
func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("stockscan_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("stockscan_api_request_duration_seconds", "API request latency by method/route/status.", []string{"method", "route", "status"}, latencyBuckets),
		apiInflight: NewGaugeVec("stockscan_api_inflight_requests", "In-flight API requests.", nil),

		pipelineStage:    NewHistogramVec("stockscan_pipeline_stage_duration_seconds", "Receipt pipeline stage latency by stage/status.", []string{"stage", "status"}, latencyBuckets),
		pipelineOutcomes: NewCounterVec("stockscan_pipeline_runs_total", "Receipt pipeline runs by outcome.", []string{"outcome"}),
		itemsProcessed:   NewCounterVec("stockscan_pipeline_items_total", "Line items seen by the pipeline by stage/result.", []string{"stage", "result"}),

		aggregateOps:       NewCounterVec("stockscan_aggregate_operations_total", "Aggregate writes by operation/status.", []string{"op", "status"}),
		aggregateLatency:   NewHistogramVec("stockscan_aggregate_operation_duration_seconds", "Aggregate write latency by operation.", []string{"op"}, latencyBuckets),
		aggregateConflicts: NewCounterVec("stockscan_aggregate_conflicts_total", "Aggregate writes rejected by a state guard.", []string{"op"}),
		aggregateRetries:   NewCounterVec("stockscan_aggregate_retryable_total", "Aggregate writes that failed with a retryable storage error.", []string{"op"}),

		jobRuns:    NewCounterVec("stockscan_job_runs_total", "Job runs finished by type/status.", []string{"job_type", "status"}),
		jobLatency: NewHistogramVec("stockscan_job_run_duration_seconds", "Job run latency by type.", []string{"job_type"}, latencyBuckets),
		queueDepth: NewGaugeVec("stockscan_job_queue_depth", "Job runs by status.", []string{"status"}),

		dbPool:    NewGaugeVec("stockscan_db_pool", "database/sql pool stats.", []string{"stat"}),
		redisUp:   NewGaugeVec("stockscan_redis_up", "1 when the last Redis ping succeeded.", nil),
		redisPing: NewGaugeVec("stockscan_redis_ping_seconds", "Latency of the last Redis ping.", nil),
	}
}

// StartServer exposes the registry on its own listener until ctx ends.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && log != nil {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	all := []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.pipelineStage, m.pipelineOutcomes, m.itemsProcessed,
		m.aggregateOps, m.aggregateLatency, m.aggregateConflicts, m.aggregateRetries,
		m.jobRuns, m.jobLatency, m.queueDepth,
		m.dbPool, m.redisUp, m.redisPing,
	}
	for _, p := range all {
		if err := p.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Add(1)
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Add(-1)
}

func (m *Metrics) ObservePipelineStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.pipelineStage.Observe(dur.Seconds(), stage, status)
}

// IncPipelineOutcome counts finished runs: proposed, failed, or skipped.
func (m *Metrics) IncPipelineOutcome(outcome string) {
	if m == nil {
		return
	}
	m.pipelineOutcomes.Inc(outcome)
}

func (m *Metrics) AddPipelineItems(stage, result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.itemsProcessed.Add(float64(n), stage, result)
}

func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.Inc(op, status)
	m.aggregateLatency.Observe(dur.Seconds(), op)
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.Inc(op)
}

func (m *Metrics) IncAggregateRetry(op string) {
	if m == nil {
		return
	}
	m.aggregateRetries.Inc(op)
}

func (m *Metrics) ObserveJobRun(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.Inc(jobType, status)
	m.jobLatency.Observe(dur.Seconds(), jobType)
}

// JobRunCount reports finished runs of jobType that ended with status.
func (m *Metrics) JobRunCount(jobType, status string) float64 {
	if m == nil {
		return 0
	}
	return m.jobRuns.Value(jobType, status)
}

func scrapeInterval() time.Duration {
	return envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go tick(ctx, scrapeInterval(), func() {
		sqlDB, err := db.DB()
		if err != nil {
			if log != nil {
				log.Warn("metrics: db stats unavailable", "error", err)
			}
			return
		}
		stats := sqlDB.Stats()
		m.dbPool.Set(float64(stats.OpenConnections), "open_connections")
		m.dbPool.Set(float64(stats.InUse), "in_use")
		m.dbPool.Set(float64(stats.Idle), "idle")
		m.dbPool.Set(float64(stats.WaitCount), "wait_count")
		m.dbPool.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
		m.dbPool.Set(float64(stats.MaxOpenConnections), "max_open_connections")
	})
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb goredis.Cmdable) {
	if m == nil || rdb == nil {
		return
	}
	go tick(ctx, scrapeInterval(), func() {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err != nil {
			m.redisUp.Set(0)
			if log != nil && ctx.Err() == nil {
				log.Warn("metrics: redis ping failed", "error", err)
			}
			return
		}
		m.redisUp.Set(1)
		m.redisPing.Set(time.Since(start).Seconds())
	})
}

func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go tick(ctx, scrapeInterval(), func() { m.collectQueueDepth(ctx, log, db) })
}

func (m *Metrics) collectQueueDepth(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	for _, s := range []string{jobs.StatusQueued, jobs.StatusRunning, jobs.StatusSucceeded, jobs.StatusFailed, jobs.StatusDead, jobs.StatusCanceled} {
		m.queueDepth.Set(0, s)
	}
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).
		Model(&types.JobRun{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		if log != nil && ctx.Err() == nil {
			log.Warn("metrics: job queue depth query failed", "error", err)
		}
		return
	}
	for _, row := range rows {
		m.queueDepth.Set(float64(row.Count), row.Status)
	}
}

func tick(ctx context.Context, every time.Duration, fn func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
