package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type JobEventKind string

const (
	JobEventCreated   JobEventKind = "created"
	JobEventProgress  JobEventKind = "progress"
	JobEventFailed    JobEventKind = "failed"
	JobEventSucceeded JobEventKind = "succeeded"
)

// JobRunEvent is an append-only timeline of a run's progress messages.
type JobRunEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobID     uuid.UUID `gorm:"type:uuid;column:job_id;not null;index" json:"job_id"`
	JobType   string    `gorm:"column:job_type;not null;index" json:"job_type"`
	Kind      string    `gorm:"column:kind;not null" json:"kind"`
	Status    string    `gorm:"column:status;not null" json:"status"`
	Stage     string    `gorm:"column:stage;not null" json:"stage"`
	Progress  int       `gorm:"column:progress;not null" json:"progress"`
	Message   string    `gorm:"column:message;type:text" json:"message,omitempty"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (JobRunEvent) TableName() string { return "job_run_event" }

func (e *JobRunEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
