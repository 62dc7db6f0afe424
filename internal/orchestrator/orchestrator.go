// Package orchestrator is the Cycle Orchestrator and Engine Lifecycle
// (§4.9): the periodic tick that fetches due jobs, fans them out across a
// bounded worker pool, and folds per-job outcomes into the process-local
// EngineState. Grounded on internal/jobs/worker/worker.go's Start/runLoop
// shape (N goroutines, a ticker, panic-safe dispatch) for the lifecycle
// half, and internal/modules/learning/steps/embed_chunks.go's
// errgroup.SetLimit bounded fan-out for the per-cycle worker pool half.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brightloop/schedulerd/internal/domain"
	"github.com/brightloop/schedulerd/internal/events"
	"github.com/brightloop/schedulerd/internal/jobprocessor"
)

// Processor is the Job Processor seam the orchestrator depends on;
// *jobprocessor.Processor satisfies it, same fake-over-mock pattern as
// jobprocessor.Executor.
type Processor interface {
	Process(ctx context.Context, jobID uuid.UUID) jobprocessor.Outcome
}

// JobError is one entry of a ProcessingResult's aggregate error list.
type JobError struct {
	JobID   uuid.UUID
	Message string
}

// ProcessingResult is processCycle's return value (§4.9 step 4).
type ProcessingResult struct {
	StartTime      time.Time
	EndTime        time.Time
	JobsProcessed  int
	SuccessfulJobs int
	FailedJobs     int
	Errors         []JobError
	// EndpointCalls, ReasonerCalls, and TokenUsage are this cycle's totals,
	// summed from each job's Outcome, for folding into EngineStats.
	EndpointCalls int64
	ReasonerCalls int64
	TokenUsage    domain.TokenUsage
}

// runCycle fetches due jobs and fans them out across a bounded worker pool,
// folding outcomes into the result and the engine's shared progress. ctx
// already carries this cycle's cancellation; e.mu guards every EngineState
// write per §5's shared-resource policy.
func (e *Engine) runCycle(ctx context.Context) ProcessingResult {
	start := time.Now()
	result := ProcessingResult{StartTime: start}

	jobIDs, err := e.gateway.FetchDueJobs(ctx, e.cfg.Scheduler.MaxBatchSize)
	if err != nil {
		e.log.Warn("fetchDueJobs failed", "error", err)
		result.EndTime = time.Now()
		return result
	}
	if len(jobIDs) == 0 {
		result.EndTime = time.Now()
		return result
	}

	e.setProgressTotal(len(jobIDs))

	workerCount := e.cfg.Scheduler.JobProcessingConcurrency
	if workerCount <= 0 {
		workerCount = 1
	}
	if workerCount > len(jobIDs) {
		workerCount = len(jobIDs)
	}

	var (
		aggMu          sync.Mutex
		jobsProcessed  int
		successfulJobs int
		failedJobs     int
		jobErrors      []JobError
		endpointCalls  int64
		reasonerCalls  int64
		tokenUsage     domain.TokenUsage
	)

	// g.Go never returns a non-nil error (jobprocessor.Process reports
	// failure via Outcome, not an error return), so gctx is never
	// cancelled by a sibling job's outcome; only the caller's ctx (this
	// cycle's cancellation) can abort the remaining queue.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount)
	for _, id := range jobIDs {
		jobID := id
		g.Go(func() error {
			outcome := e.processor.Process(gctx, jobID)

			aggMu.Lock()
			jobsProcessed++
			switch {
			case outcome.Skipped:
				// A skipped job neither succeeded nor failed; it simply
				// wasn't this cycle's to run (lock race lost).
			case outcome.Success:
				successfulJobs++
			default:
				failedJobs++
				if outcome.Error != nil {
					jobErrors = append(jobErrors, JobError{JobID: jobID, Message: outcome.Error.Error()})
				}
			}
			endpointCalls += outcome.EndpointCalls
			reasonerCalls += outcome.ReasonerCalls
			tokenUsage = tokenUsage.Add(outcome.TokenUsage)
			aggMu.Unlock()

			e.bumpProgress(jobID, outcome)
			return nil
		})
	}
	_ = g.Wait()

	result.EndTime = time.Now()
	result.JobsProcessed = jobsProcessed
	result.SuccessfulJobs = successfulJobs
	result.FailedJobs = failedJobs
	result.Errors = jobErrors
	result.EndpointCalls = endpointCalls
	result.ReasonerCalls = reasonerCalls
	result.TokenUsage = tokenUsage
	return result
}

// setProgressTotal publishes progress.total before the worker pool starts
// pulling from jobIDs (§4.9 step 3).
func (e *Engine) setProgressTotal(total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	e.progress = &domain.EngineProgress{
		Total:     total,
		StartedAt: now,
		UpdatedAt: now,
		Endpoints: domain.EndpointProgressTotals{ByID: map[uuid.UUID]int64{}},
	}
}

// bumpProgress increments progress.completed atomically (guarded by e.mu,
// per §5's "atomic operations or a state mutex") and fires
// onExecutionProgress, folding endpoint counts from the job's results too.
// Endpoints.Total is driven from PlannedEndpoints (set once the plan is
// durably recorded), not from len(EndpointResults), so Total reflects what
// was planned even when some of those endpoints never finished executing —
// it can lead Completed instead of always matching it.
func (e *Engine) bumpProgress(jobID uuid.UUID, outcome jobprocessor.Outcome) {
	e.mu.Lock()
	var snapshot events.ExecutionProgress
	if e.progress != nil {
		e.progress.Completed++
		e.progress.UpdatedAt = time.Now()
		e.progress.Endpoints.Total += int64(outcome.PlannedEndpoints)
		for _, r := range outcome.EndpointResults {
			e.progress.Endpoints.Completed++
			e.progress.Endpoints.ByID[r.EndpointID]++
		}
		snapshot = events.ExecutionProgress{Total: e.progress.Total, Completed: e.progress.Completed}
	}
	e.mu.Unlock()
	e.hooks.OnExecutionProgress(snapshot)
}
