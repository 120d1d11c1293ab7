package services

import (
	"context"
	"time"

	redisclient "github.com/yungbote/stockscan-backend/internal/clients/redis"
	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/realtime"
)

const publishTimeout = 2 * time.Second

// JobEmitter delivers job updates to stream subscribers.
type JobEmitter interface {
	Emit(ctx context.Context, update types.JobUpdate)
}

// HubEmitter broadcasts straight into the local hub. Used when Redis is not
// configured and by the Redis forwarder on the receiving side.
type HubEmitter struct{ Hub *realtime.SSEHub }

func (e *HubEmitter) Emit(_ context.Context, update types.JobUpdate) {
	if e == nil || e.Hub == nil {
		return
	}
	for _, msg := range sseMessages(update) {
		e.Hub.Broadcast(msg)
	}
}

// RedisEmitter publishes to the job bus so every API replica sees the update.
// A failed publish falls back to the local hub.
type RedisEmitter struct {
	Bus      redisclient.JobBus
	Fallback JobEmitter
	Log      *logger.Logger
}

func (e *RedisEmitter) Emit(ctx context.Context, update types.JobUpdate) {
	if e == nil || e.Bus == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.Bus.Publish(pctx, update); err != nil {
		if e.Log != nil {
			e.Log.Warn("job bus publish failed; delivering locally", "job_id", update.JobID, "error", err)
		}
		if e.Fallback != nil {
			e.Fallback.Emit(ctx, update)
		}
	}
}

// ForwardJobBus pipes bus messages into the local hub until ctx ends.
func ForwardJobBus(ctx context.Context, bus redisclient.JobBus, hub *realtime.SSEHub) error {
	local := &HubEmitter{Hub: hub}
	return bus.StartForwarder(ctx, func(m types.JobUpdate) { local.Emit(ctx, m) })
}

// sseMessages addresses an update to the job channel and, when the run is
// bound to an entity, to the entity channel as well.
func sseMessages(update types.JobUpdate) []realtime.SSEMessage {
	event := sseEventFor(update.Kind)
	out := []realtime.SSEMessage{{Channel: update.JobID.String(), Event: event, Data: update}}
	if update.EntityID != nil {
		out = append(out, realtime.SSEMessage{Channel: update.EntityID.String(), Event: event, Data: update})
	}
	return out
}

func sseEventFor(kind string) realtime.SSEEvent {
	switch types.JobEventKind(kind) {
	case types.JobEventCreated:
		return realtime.SSEEventJobCreated
	case types.JobEventFailed:
		return realtime.SSEEventJobFailed
	case types.JobEventSucceeded:
		return realtime.SSEEventJobDone
	default:
		return realtime.SSEEventJobProgress
	}
}
