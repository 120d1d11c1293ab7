package services

import (
	"context"
	"time"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

// =========================
// Job notifier
// =========================

type JobNotifier interface {
	JobCreated(job *types.JobRun)
	JobProgress(job *types.JobRun, stage string, progress int, message string)
	JobFailed(job *types.JobRun, stage string, errorMessage string)
	JobDone(job *types.JobRun)
}

type jobNotifier struct {
	log  *logger.Logger
	emit JobEmitter
}

func NewJobNotifier(log *logger.Logger, emit JobEmitter) JobNotifier {
	if log == nil {
		log = logger.Nop()
	}
	return &jobNotifier{log: log.With("service", "JobNotifier"), emit: emit}
}

func (n *jobNotifier) JobCreated(job *types.JobRun) {
	n.send(job, types.JobEventCreated, job.Stage, job.Progress, "", "")
}

func (n *jobNotifier) JobProgress(job *types.JobRun, stage string, progress int, message string) {
	n.send(job, types.JobEventProgress, stage, progress, message, "")
}

func (n *jobNotifier) JobFailed(job *types.JobRun, stage string, errorMessage string) {
	n.log.Debug("job failed", "job_id", job.ID, "job_type", job.JobType, "stage", stage)
	n.send(job, types.JobEventFailed, stage, job.Progress, "", errorMessage)
}

func (n *jobNotifier) JobDone(job *types.JobRun) {
	n.send(job, types.JobEventSucceeded, job.Stage, 100, "", "")
}

func (n *jobNotifier) send(job *types.JobRun, kind types.JobEventKind, stage string, progress int, message, errMsg string) {
	if n == nil || n.emit == nil || job == nil {
		return
	}
	n.emit.Emit(context.Background(), JobUpdateFor(job, kind, stage, progress, message, errMsg))
}

func JobUpdateFor(job *types.JobRun, kind types.JobEventKind, stage string, progress int, message, errMsg string) types.JobUpdate {
	return types.JobUpdate{
		JobID:      job.ID,
		JobType:    job.JobType,
		EntityType: job.EntityType,
		EntityID:   job.EntityID,
		Kind:       string(kind),
		Status:     job.Status,
		Stage:      stage,
		Progress:   progress,
		Message:    message,
		Error:      errMsg,
		At:         time.Now().UTC(),
	}
}
