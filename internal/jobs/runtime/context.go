package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/stockscan-backend/internal/data/repos"
	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/platform/ctxutil"
	"github.com/yungbote/stockscan-backend/internal/platform/dbctx"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/services"
)

/*
Context is the execution handle for a single job run.
Handlers never touch job_run directly; every state change goes through
Progress, Fail, FailPermanently or Succeed, which:
  - persist the change guarded so a canceled run is never overwritten,
  - append a row to the job_run_event timeline,
  - notify stream subscribers.
*/
type Context struct {
	Ctx    context.Context
	DB     *gorm.DB
	Job    *types.JobRun
	Repo   repos.JobRunRepo
	Events repos.JobRunEventRepo
	Notify services.JobNotifier
	Log    *logger.Logger
	// MaxAttempts escalates Fail to FailPermanently on the last attempt.
	MaxAttempts int

	payload map[string]any
}

type Deps struct {
	DB     *gorm.DB
	Repo   repos.JobRunRepo
	Events repos.JobRunEventRepo
	Notify services.JobNotifier
	Log    *logger.Logger

	MaxAttempts int
}

// NewContext decodes the payload eagerly. A malformed payload yields an empty
// map; handlers validate the fields they need.
func NewContext(ctx context.Context, job *types.JobRun, deps Deps) *Context {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	c := &Context{
		Ctx:    ctxutil.Default(ctx),
		DB:     deps.DB,
		Job:    job,
		Repo:   deps.Repo,
		Events: deps.Events,
		Notify: deps.Notify,
		Log:    log,

		MaxAttempts: deps.MaxAttempts,
	}
	if job != nil {
		c.Log = log.With("job_id", job.ID, "job_type", job.JobType)
	}
	if err := c.decodePayload(); err != nil {
		c.Log.Warn("job payload is not valid JSON", "error", err)
	}
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	payload := c.Payload()
	traceID := payloadString(payload, "trace_id")
	reqID := payloadString(payload, "request_id")
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{TraceID: traceID, RequestID: reqID})
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadUUID reads key as a UUID. Missing, nil or unparseable values report false.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s := payloadString(c.Payload(), key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// EntityID prefers the run's entity binding and falls back to payload[key].
func (c *Context) EntityID(key string) (uuid.UUID, bool) {
	if c.Job != nil && c.Job.EntityID != nil && *c.Job.EntityID != uuid.Nil {
		return *c.Job.EntityID, true
	}
	return c.PayloadUUID(key)
}

func payloadString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// writeCtx survives cancellation of the run so terminal writes land after a timeout.
func (c *Context) writeCtx() context.Context {
	return context.WithoutCancel(ctxutil.Default(c.Ctx))
}

func (c *Context) update(fields map[string]interface{}) bool {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return true
	}
	ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.writeCtx()}, c.Job.ID, []string{types.JobStatusCanceled}, fields)
	if err != nil {
		c.Log.Warn("job state write failed", "error", err)
		return false
	}
	return ok
}

func (c *Context) record(kind types.JobEventKind, msg string) {
	if c.Events == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	_, err := c.Events.Create(dbctx.Context{Ctx: c.writeCtx()}, []*types.JobRunEvent{{
		JobID:    c.Job.ID,
		JobType:  c.Job.JobType,
		Kind:     string(kind),
		Status:   c.Job.Status,
		Stage:    c.Job.Stage,
		Progress: c.Job.Progress,
		Message:  msg,
	}})
	if err != nil {
		c.Log.Warn("job event write failed", "kind", kind, "error", err)
	}
}

// Progress records a non-terminal checkpoint and refreshes the heartbeat.
// It satisfies the receipt pipeline's progress sink.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	if !c.update(map[string]interface{}{
		"stage":        stage,
		"progress":     pct,
		"message":      msg,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	c.record(types.JobEventProgress, msg)
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job, stage, pct, msg)
	}
}

// Fail marks the run failed. The worker claims failed runs again after the
// retry delay; the last allowed attempt ends dead instead.
func (c *Context) Fail(stage string, err error) {
	if c != nil && c.Job != nil && c.MaxAttempts > 0 && c.Job.Attempts >= c.MaxAttempts {
		c.Log.Warn("job retries exhausted", "attempts", c.Job.Attempts)
		c.fail(types.JobStatusDead, stage, err)
		return
	}
	c.fail(types.JobStatusFailed, stage, err)
}

// FailPermanently marks the run dead; it is never claimed again.
func (c *Context) FailPermanently(stage string, err error) {
	c.fail(types.JobStatusDead, stage, err)
}

func (c *Context) fail(status, stage string, err error) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if !c.update(map[string]interface{}{
		"status":        status,
		"stage":         stage,
		"message":       "",
		"error":         msg,
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Status = status
		c.Job.Stage = stage
		c.Job.Message = ""
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}
	c.record(types.JobEventFailed, msg)
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.Job, stage, msg)
	}
}

// Succeed stores result as JSON and marks the run succeeded.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	var res datatypes.JSON
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			c.Log.Warn("job result is not serializable", "error", err)
		} else {
			res = datatypes.JSON(b)
		}
	}
	if !c.update(map[string]interface{}{
		"status":       types.JobStatusSucceeded,
		"stage":        finalStage,
		"progress":     100,
		"message":      "",
		"error":        "",
		"result":       res,
		"locked_at":    nil,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Status = types.JobStatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Message = ""
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	c.record(types.JobEventSucceeded, "")
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.Job)
	}
}

// Terminal reports whether Fail, FailPermanently or Succeed already ran.
func (c *Context) Terminal() bool {
	if c == nil || c.Job == nil {
		return false
	}
	switch c.Job.Status {
	case types.JobStatusFailed, types.JobStatusDead, types.JobStatusSucceeded, types.JobStatusCanceled:
		return true
	}
	return false
}
