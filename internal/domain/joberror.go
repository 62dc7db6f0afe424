package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobError is an append-only record of a terminal per-job pipeline
// failure. Exactly one is written per failed job per §7's user-visible
// behavior guarantee.
type JobError struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID     uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`
	Message   string    `gorm:"column:message;type:text;not null" json:"message"`
	Code      string    `gorm:"column:code" json:"code,omitempty"`
	Timestamp time.Time `gorm:"column:timestamp;not null;default:now();index" json:"timestamp"`
}

func (JobError) TableName() string { return "scheduler_job_error" }
