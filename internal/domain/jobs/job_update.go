package jobs

import (
	"time"

	"github.com/google/uuid"
)

// JobUpdate is the message fanned out to listeners when a run changes state.
type JobUpdate struct {
	JobID      uuid.UUID  `json:"job_id"`
	JobType    string     `json:"job_type"`
	EntityType string     `json:"entity_type,omitempty"`
	EntityID   *uuid.UUID `json:"entity_id,omitempty"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Stage      string     `json:"stage"`
	Progress   int        `json:"progress"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	At         time.Time  `json:"at"`
}
