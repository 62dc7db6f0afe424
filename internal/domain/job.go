// Package domain holds the persisted row types and in-memory value types
// exchanged between the scheduling engine's components. Persisted types are
// GORM models; everything else is a plain value struct passed by id and
// copy, never by live reference, so components never hold a pointer into
// another component's row.
package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobStatus is the lifecycle status of a Job row.
type JobStatus string

const (
	JobStatusActive   JobStatus = "active"
	JobStatusPaused   JobStatus = "paused"
	JobStatusArchived JobStatus = "archived"
)

// TokenUsage accumulates reasoner token counters. Counters only ever move
// forward; a Job's totals are the running sum of every reasoner call made
// on its behalf.
type TokenUsage struct {
	InputTokens       int64 `gorm:"column:input_tokens;not null;default:0" json:"input_tokens"`
	OutputTokens      int64 `gorm:"column:output_tokens;not null;default:0" json:"output_tokens"`
	ReasoningTokens   int64 `gorm:"column:reasoning_tokens;not null;default:0" json:"reasoning_tokens"`
	CachedInputTokens int64 `gorm:"column:cached_input_tokens;not null;default:0" json:"cached_input_tokens"`
	TotalTokens       int64 `gorm:"column:total_tokens;not null;default:0" json:"total_tokens"`
}

// Add returns a TokenUsage with delta folded in; callers persist the result.
func (t TokenUsage) Add(delta TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:       t.InputTokens + delta.InputTokens,
		OutputTokens:      t.OutputTokens + delta.OutputTokens,
		ReasoningTokens:   t.ReasoningTokens + delta.ReasoningTokens,
		CachedInputTokens: t.CachedInputTokens + delta.CachedInputTokens,
		TotalTokens:       t.TotalTokens + delta.TotalTokens,
	}
}

// Job is the durable row a cycle claims, plans against, and reschedules.
// Locking fields follow the claim-then-heartbeat shape of the teacher's
// JobRun row, generalized from a single worker claim to lock/unlock pairs
// explicitly owned by the Job Processor pipeline.
type Job struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Definition  string    `gorm:"column:definition;type:text;not null" json:"definition"`
	Status      JobStatus `gorm:"column:status;not null;index" json:"status"`

	Locked        bool       `gorm:"column:locked;not null;default:false;index" json:"locked"`
	LockExpiresAt *time.Time `gorm:"column:lock_expires_at;index" json:"lock_expires_at,omitempty"`
	NextRunAt     *time.Time `gorm:"column:next_run_at;index" json:"next_run_at,omitempty"`

	TokenUsage TokenUsage `gorm:"embedded" json:"token_usage"`

	// DefaultHeaders is the job-level header set, the lowest-precedence tier
	// in the Endpoint Executor's header merge (job defaults < endpoint
	// defaults < plan-supplied).
	DefaultHeaders datatypes.JSON `gorm:"column:default_headers;type:jsonb" json:"default_headers,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Job) TableName() string { return "scheduler_job" }

// IsDue reports whether the job is eligible for a fetchDueJobs batch at the
// given instant: active, unlocked (or its lock has expired), and either no
// NextRunAt or one that has already passed.
func (j Job) IsDue(now time.Time) bool {
	if j.Status != JobStatusActive {
		return false
	}
	if j.Locked && (j.LockExpiresAt == nil || j.LockExpiresAt.After(now)) {
		return false
	}
	if j.NextRunAt != nil && j.NextRunAt.After(now) {
		return false
	}
	return true
}

// Headers decodes DefaultHeaders, never returning nil.
func (j Job) Headers() map[string]string {
	return decodeStringMap(j.DefaultHeaders)
}
