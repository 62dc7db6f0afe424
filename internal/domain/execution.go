package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ExecutionStatus is the lifecycle status of a persisted JobExecution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// ExecutionSummary is folded into a JobExecution once the executor
// returns: aggregate counters over the results it produced.
type ExecutionSummary struct {
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	TotalDurationMs int64     `json:"totalDurationMs"`
	SuccessCount    int       `json:"successCount"`
	FailureCount    int       `json:"failureCount"`
}

// JobExecution is the persisted record of one cycle's plan/execute pass
// for a job, tagged the way internal/domain/jobs/job_run.go tags its
// columns (uuid primary key, jsonb for freeform plan content).
type JobExecution struct {
	ID    uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`

	Plan       datatypes.JSON  `gorm:"column:plan;type:jsonb" json:"plan,omitempty"`
	Confidence float64         `gorm:"column:confidence;not null;default:0" json:"confidence"`
	Reasoning  string          `gorm:"column:reasoning;type:text" json:"reasoning,omitempty"`
	Strategy   string          `gorm:"column:strategy;not null" json:"strategy"`
	Status     ExecutionStatus `gorm:"column:status;not null;index" json:"status"`

	Results datatypes.JSON `gorm:"column:results;type:jsonb" json:"results,omitempty"`
	Summary datatypes.JSON `gorm:"column:summary;type:jsonb" json:"summary,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (JobExecution) TableName() string { return "scheduler_job_execution" }
