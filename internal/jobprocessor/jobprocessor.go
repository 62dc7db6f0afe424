// Package jobprocessor is the Job Processor (§4.8): the per-job pipeline a
// Cycle Orchestrator worker runs once per claimed id — lock, fetch
// context, plan, execute, persist, schedule, unlock — with every
// best-effort error-path side effect swallowed so a single job's failure
// never escapes to the worker loop. Grounded on
// internal/jobs/worker/worker.go's claim→dispatch→panic-recover→
// fail-safety-net shape (the panic recovery here plays the same role
// worker.runLoop's recover() does) and internal/jobs/runtime/context.go's
// capability-object idea, generalized from a single job-handler callback
// to the fixed five-step pipeline this spec describes.
package jobprocessor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/brightloop/schedulerd/internal/domain"
	"github.com/brightloop/schedulerd/internal/escalation"
	"github.com/brightloop/schedulerd/internal/events"
	"github.com/brightloop/schedulerd/internal/platform/config"
	"github.com/brightloop/schedulerd/internal/platform/logger"
	"github.com/brightloop/schedulerd/internal/reasoner"
	"github.com/brightloop/schedulerd/internal/store"
)

// Executor is the Endpoint Executor seam the Job Processor depends on;
// *executor.Executor satisfies it, and tests supply a hand-rolled fake
// instead, the same seam-over-mock pattern store.Gateway and
// reasoner.Gateway use.
type Executor interface {
	ExecuteEndpoints(ctx context.Context, jc domain.JobContext, plan domain.ExecutionPlan) ([]domain.EndpointExecutionResult, error)
}

// Outcome is what Process returns to its caller (the Cycle Orchestrator's
// worker loop): whether the job was this processor's to run at all, and
// if it ran, whether it completed successfully.
type Outcome struct {
	// Skipped is true when the pipeline did not run: the job was not locked
	// by this processor (lost the lock race, vanished from the store
	// between fetch and lock, or LockJob returned an error), or its context
	// could not be fetched after locking (the job is unlocked again).
	Skipped bool
	// Success is only meaningful when Skipped is false.
	Success bool
	// Error is the step failure that ended the pipeline, if any.
	Error error
	// EndpointResults lets the caller fold per-endpoint counters (e.g. for
	// EngineProgress.Endpoints) into the cycle aggregate.
	EndpointResults []domain.EndpointExecutionResult
	// PlannedEndpoints is len(plan.Endpoints) once the plan is durably
	// recorded, independent of how many of them ever finish executing —
	// EngineProgress.Endpoints.Total is driven from this, not from
	// EndpointResults, so Total can lead Completed instead of always
	// matching it.
	PlannedEndpoints int
	// EndpointCalls is the number of actual HTTP attempts issued across
	// EndpointResults (Σ Attempts), for EngineStats.EndpointCalls.
	EndpointCalls int64
	// ReasonerCalls is the number of provider.GenerateJSON invocations
	// this job's plan/schedule calls made, including any repair attempt.
	ReasonerCalls int64
	// TokenUsage is this job's plan+schedule token usage, for
	// EngineStats.TokenTotals.
	TokenUsage domain.TokenUsage
}

// Processor runs the fixed plan→execute→schedule pipeline for one job id
// at a time; it holds no per-job state between calls, so a single
// Processor is safely shared by every worker goroutine in a cycle's pool.
type Processor struct {
	log      *logger.Logger
	gateway  store.Gateway
	reasoner reasoner.Gateway
	executor Executor
	hooks    events.Hooks
	cfg      config.Config
}

// New constructs a Processor.
func New(log *logger.Logger, gateway store.Gateway, reasonerGW reasoner.Gateway, exec Executor, hooks events.Hooks, cfg config.Config) *Processor {
	if hooks == nil {
		hooks = events.Noop{}
	}
	return &Processor{
		log:      log.With("component", "jobprocessor.Processor"),
		gateway:  gateway,
		reasoner: reasonerGW,
		executor: exec,
		hooks:    hooks,
		cfg:      cfg,
	}
}

// Process runs the full per-job pipeline for jobID under cancellation.
// It never returns an error the caller must act on beyond inspecting
// Outcome: every step failure from planning onward is recorded against the store on a
// best-effort basis and reported back as Outcome.Error, never panicked or
// propagated past this call.
func (p *Processor) Process(ctx context.Context, jobID uuid.UUID) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("job processor panic", "job_id", jobID, "panic", r)
			p.failBestEffort(ctx, jobID, errFromRecover(r))
			out = Outcome{Success: false, Error: errFromRecover(r)}
		}
	}()

	now := time.Now()
	locked, err := p.gateway.LockJob(ctx, jobID, now.Add(p.cfg.Scheduler.StaleLockThresholdMs))
	if err != nil {
		p.log.Warn("lockJob failed", "job_id", jobID, "error", err)
		return Outcome{Skipped: true}
	}
	if !locked {
		return Outcome{Skipped: true}
	}

	_ = p.gateway.UpdateExecutionStatus(ctx, jobID, domain.ExecutionRunning, "")

	jc, err := p.gateway.GetJobContext(ctx, jobID)
	if err != nil {
		p.log.Warn("getJobContext failed", "job_id", jobID, "error", err)
		p.unlockBestEffort(ctx, jobID)
		return Outcome{Skipped: true}
	}

	jc.ExecutionContext.CurrentTime = now
	if jc.ExecutionContext.SystemEnvironment == "" {
		jc.ExecutionContext.SystemEnvironment = domain.EnvProduction
	}
	if p.cfg.Execution.AllowCancellation {
		jc.ExecutionContext.Cancellation = ctx
	}

	planResult, err := p.reasoner.Plan(ctx, jc)
	reasonerCalls := int64(planResult.Usage.Calls)
	tokenUsage := planResult.Usage.ToTokenUsage()
	if err != nil {
		return p.failWithUsage(ctx, jobID, "plan", err, reasonerCalls, tokenUsage)
	}
	if planResult.Usage.TotalTokens > 0 {
		_ = p.gateway.UpdateJobTokenUsage(ctx, jobID, tokenUsage)
	}
	if err := p.gateway.RecordExecutionPlan(ctx, jobID, planResult.Plan); err != nil {
		return p.failWithUsage(ctx, jobID, "recordExecutionPlan", err, reasonerCalls, tokenUsage)
	}
	plannedEndpoints := len(planResult.Plan.Endpoints)

	results, execErr := p.executor.ExecuteEndpoints(ctx, jc, planResult.Plan)
	var endpointCalls int64
	for _, r := range results {
		endpointCalls += int64(r.Attempts)
	}
	if err := p.gateway.RecordEndpointResults(ctx, jobID, results); err != nil {
		out := p.failWithUsage(ctx, jobID, "recordEndpointResults", err, reasonerCalls, tokenUsage)
		out.EndpointCalls = endpointCalls
		out.PlannedEndpoints = plannedEndpoints
		return out
	}
	summary := summarize(results)
	if err := p.gateway.RecordExecutionSummary(ctx, jobID, summary); err != nil {
		out := p.failWithUsage(ctx, jobID, "recordExecutionSummary", err, reasonerCalls, tokenUsage)
		out.EndpointCalls = endpointCalls
		out.PlannedEndpoints = plannedEndpoints
		return out
	}
	p.evaluateEscalation(jobID, summary, results)
	if execErr != nil {
		// A circular-dependency plan is a malformed-plan outcome, not a
		// per-endpoint failure; it still reaches schedule so the reasoner
		// gets a chance to recover the job on the next cycle.
		p.log.Warn("executeEndpoints reported a strategy-level error", "job_id", jobID, "error", execErr)
	}

	scheduleResult, err := p.reasoner.Schedule(ctx, jc, results)
	reasonerCalls += int64(scheduleResult.Usage.Calls)
	tokenUsage = tokenUsage.Add(scheduleResult.Usage.ToTokenUsage())
	if err != nil {
		var malformed *reasoner.MalformedResponse
		if pre := planResult.Plan.PreliminaryNextRunAt; pre != nil && errors.As(err, &malformed) {
			if next, perr := time.Parse(time.RFC3339, *pre); perr == nil {
				_ = p.gateway.UpdateJobSchedule(ctx, jobID, domain.ScheduleDecision{NextRunAt: next})
			}
		}
		out := p.failWithUsage(ctx, jobID, "schedule", err, reasonerCalls, tokenUsage)
		out.EndpointCalls = endpointCalls
		out.PlannedEndpoints = plannedEndpoints
		return out
	}
	if scheduleResult.Usage.TotalTokens > 0 {
		_ = p.gateway.UpdateJobTokenUsage(ctx, jobID, scheduleResult.Usage.ToTokenUsage())
	}
	if err := p.gateway.UpdateJobSchedule(ctx, jobID, scheduleResult.Decision); err != nil {
		out := p.failWithUsage(ctx, jobID, "updateJobSchedule", err, reasonerCalls, tokenUsage)
		out.EndpointCalls = endpointCalls
		out.PlannedEndpoints = plannedEndpoints
		return out
	}

	_ = p.gateway.UpdateExecutionStatus(ctx, jobID, domain.ExecutionCompleted, "")
	p.unlockBestEffort(ctx, jobID)
	return Outcome{
		Success:          true,
		EndpointResults:  results,
		PlannedEndpoints: plannedEndpoints,
		EndpointCalls:    endpointCalls,
		ReasonerCalls:    reasonerCalls,
		TokenUsage:       tokenUsage,
	}
}

// fail records the step failure on a best-effort basis (recordJobError,
// updateExecutionStatus(failed), unlockJob — each independently swallowed)
// and returns the Outcome the caller folds into the cycle aggregate.
func (p *Processor) fail(ctx context.Context, jobID uuid.UUID, step string, err error) Outcome {
	p.log.Warn("job processor step failed", "job_id", jobID, "step", step, "error", err)
	p.failBestEffort(ctx, jobID, err)
	return Outcome{Success: false, Error: err}
}

// failWithUsage is fail plus whatever reasoner usage had already accrued
// before the failing step, so a plan/schedule-stage failure still reports
// the tokens/calls it spent toward EngineStats.
func (p *Processor) failWithUsage(ctx context.Context, jobID uuid.UUID, step string, err error, reasonerCalls int64, tokenUsage domain.TokenUsage) Outcome {
	out := p.fail(ctx, jobID, step, err)
	out.ReasonerCalls = reasonerCalls
	out.TokenUsage = tokenUsage
	return out
}

func (p *Processor) failBestEffort(ctx context.Context, jobID uuid.UUID, err error) {
	_ = p.gateway.RecordJobError(ctx, jobID, err.Error(), "")
	_ = p.gateway.UpdateExecutionStatus(ctx, jobID, domain.ExecutionFailed, err.Error())
	p.unlockBestEffort(ctx, jobID)
}

func (p *Processor) unlockBestEffort(ctx context.Context, jobID uuid.UUID) {
	if _, err := p.gateway.UnlockJob(ctx, jobID); err != nil {
		p.log.Warn("unlockJob failed", "job_id", jobID, "error", err)
	}
}

// evaluateEscalation runs the pure Escalation Evaluator over this cycle's
// outcome and logs the recommendation; there is no store operation to
// persist disabledEndpoints (§4.1's Gateway contract names none), so the
// result is advisory/observability-only, the way job_notifier.go's SSE
// events are a side channel rather than a durable record.
func (p *Processor) evaluateEscalation(jobID uuid.UUID, summary domain.ExecutionSummary, results []domain.EndpointExecutionResult) {
	attempted := len(results)
	if attempted == 0 {
		return
	}
	var failedIDs []string
	for _, r := range results {
		if !r.Success && !r.Aborted {
			failedIDs = append(failedIDs, r.EndpointID.String())
		}
	}
	res := escalation.Compute(escalation.Input{
		Failures:  summary.FailureCount,
		Attempted: attempted,
		Config: escalation.Config{
			WarnFailureRatio:     p.cfg.Execution.Escalation.WarnFailureRatio,
			CriticalFailureRatio: p.cfg.Execution.Escalation.CriticalFailureRatio,
		},
		FailedEndpointIDs: failedIDs,
	})
	if res.Level == escalation.LevelNone {
		return
	}
	p.log.Warn("job escalation",
		"job_id", jobID, "level", res.Level, "recovery_action", res.RecoveryAction, "disabled_endpoints", res.DisabledEndpoints)
}

// summarize folds executor results into the §4.8 step-6 summary:
// TotalDurationMs is the sum of every result's ExecutionTimeMs,
// StartTime/EndTime are the earliest and latest result timestamps, and
// FailureCount excludes aborted calls.
func summarize(results []domain.EndpointExecutionResult) domain.ExecutionSummary {
	summary := domain.ExecutionSummary{}
	if len(results) == 0 {
		now := time.Now()
		summary.StartTime, summary.EndTime = now, now
		return summary
	}
	var totalMs int64
	start, end := results[0].Timestamp, results[0].Timestamp
	for _, r := range results {
		totalMs += r.ExecutionTimeMs
		if r.Timestamp.Before(start) {
			start = r.Timestamp
		}
		if r.Timestamp.After(end) {
			end = r.Timestamp
		}
		if r.Success {
			summary.SuccessCount++
		} else if !r.Aborted {
			summary.FailureCount++
		}
	}
	summary.StartTime = start
	summary.EndTime = end
	summary.TotalDurationMs = totalMs
	return summary
}

type panicError struct{ val any }

func errFromRecover(v any) error { return &panicError{val: v} }

func (e *panicError) Error() string { return "job processor panic: unexpected error" }
