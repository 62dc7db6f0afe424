// Package store is the Data Store Gateway: the only component that talks
// to the persistence layer. Every other component exchanges ids and value
// objects, never rows or transactions, with this package as the sole
// arbiter of job ownership (see internal/domain's package doc).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/brightloop/schedulerd/internal/domain"
)

// ErrStoreUnavailable wraps any persistence-layer failure a Gateway
// operation hits; callers (the Job Processor) treat it as terminal for the
// step that raised it.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrJobNotFound is returned by GetJobContext when the job row no longer
// exists (e.g. deleted between fetchDueJobs and lock).
var ErrJobNotFound = errors.New("job not found")

// TokenUsageDelta is what updateJobTokenUsage adds to a job's running
// totals; it mirrors domain.TokenUsage but is named separately because
// callers pass a delta, never an absolute value.
type TokenUsageDelta = domain.TokenUsage

// EngineMetrics is the persistence-layer view getEngineMetrics exposes;
// distinct from domain.EngineStats, which is the process-local in-memory
// view the Cycle Orchestrator owns.
type EngineMetrics struct {
	ActiveJobs int64
	LockedJobs int64
	DueJobs    int64
}

// Gateway is the narrow interface every other scheduling-engine component
// depends on. All operations may fail with ErrStoreUnavailable.
type Gateway interface {
	// FetchDueJobs returns up to limit ids whose status=active and whose
	// lock is unheld or expired and whose NextRunAt has passed (or is
	// nil). Ordering is deterministic within a cycle (oldest-created
	// first) but otherwise implementation-defined.
	FetchDueJobs(ctx context.Context, limit int) ([]uuid.UUID, error)

	// LockJob attempts an atomic acquisition, returning true iff the row
	// transitioned from unlocked-or-expired to locked with the given
	// expiry. A false return means another processor owns the job this
	// cycle; the caller skips it silently.
	LockJob(ctx context.Context, jobID uuid.UUID, lockExpiresAt time.Time) (bool, error)

	// UnlockJob clears the lock unconditionally. Safe to call from any
	// error path; always returns true unless the store itself failed.
	UnlockJob(ctx context.Context, jobID uuid.UUID) (bool, error)

	// GetJobContext assembles the ephemeral JobContext snapshot for a
	// job, or ErrJobNotFound.
	GetJobContext(ctx context.Context, jobID uuid.UUID) (domain.JobContext, error)

	RecordExecutionPlan(ctx context.Context, jobID uuid.UUID, plan domain.ExecutionPlan) error
	RecordEndpointResults(ctx context.Context, jobID uuid.UUID, results []domain.EndpointExecutionResult) error
	RecordExecutionSummary(ctx context.Context, jobID uuid.UUID, summary domain.ExecutionSummary) error
	UpdateJobSchedule(ctx context.Context, jobID uuid.UUID, decision domain.ScheduleDecision) error
	RecordJobError(ctx context.Context, jobID uuid.UUID, message string, code string) error
	UpdateExecutionStatus(ctx context.Context, jobID uuid.UUID, status domain.ExecutionStatus, errorMessage string) error
	UpdateJobTokenUsage(ctx context.Context, jobID uuid.UUID, delta TokenUsageDelta) error
	GetEngineMetrics(ctx context.Context) (EngineMetrics, error)
}
