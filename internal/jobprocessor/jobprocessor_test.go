package jobprocessor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/brightloop/schedulerd/internal/domain"
	"github.com/brightloop/schedulerd/internal/events"
	"github.com/brightloop/schedulerd/internal/platform/config"
	"github.com/brightloop/schedulerd/internal/platform/logger"
	"github.com/brightloop/schedulerd/internal/reasoner"
	"github.com/brightloop/schedulerd/internal/store/storetest"
)

// fakeReasoner scripts Plan/Schedule results per test the way
// internal/store/storetest.Fake scripts store results, with no mocking
// library involved.
type fakeReasoner struct {
	planResult     reasoner.PlanResult
	planErr        error
	scheduleResult reasoner.ScheduleResult
	scheduleErr    error
}

func (f *fakeReasoner) Plan(ctx context.Context, jc domain.JobContext) (reasoner.PlanResult, error) {
	return f.planResult, f.planErr
}

func (f *fakeReasoner) Schedule(ctx context.Context, jc domain.JobContext, results []domain.EndpointExecutionResult) (reasoner.ScheduleResult, error) {
	return f.scheduleResult, f.scheduleErr
}

// fakeExecutor returns a scripted result set for any plan handed to it.
type fakeExecutor struct {
	results []domain.EndpointExecutionResult
	err     error
}

func (f *fakeExecutor) ExecuteEndpoints(ctx context.Context, jc domain.JobContext, plan domain.ExecutionPlan) ([]domain.EndpointExecutionResult, error) {
	return f.results, f.err
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func testCfg() config.Config {
	return config.Config{
		Scheduler: config.Scheduler{StaleLockThresholdMs: time.Minute},
		Execution: config.Execution{
			Escalation: config.Escalation{WarnFailureRatio: 0.3, CriticalFailureRatio: 0.6},
		},
	}
}

func seededJob(store *storetest.Fake) uuid.UUID {
	id := uuid.New()
	epID := uuid.New()
	store.SeedJob(domain.Job{ID: id, Status: domain.JobStatusActive}, []domain.Endpoint{{ID: epID, Method: "GET", URL: "http://ep"}})
	return id
}

func TestProcessHappyPathEndToEnd(t *testing.T) {
	s := storetest.New()
	jobID := seededJob(s)

	plan := domain.ExecutionPlan{ExecutionStrategy: domain.StrategySequential}
	results := []domain.EndpointExecutionResult{{EndpointID: uuid.New(), Success: true, StatusCode: 200, Timestamp: time.Now()}}
	nextRun := time.Now().Add(5 * time.Minute)

	r := &fakeReasoner{
		planResult:     reasoner.PlanResult{Plan: plan},
		scheduleResult: reasoner.ScheduleResult{Decision: domain.ScheduleDecision{NextRunAt: nextRun, Confidence: 0.8}},
	}
	ex := &fakeExecutor{results: results}

	p := New(testLogger(t), s, r, ex, events.Noop{}, testCfg())
	out := p.Process(context.Background(), jobID)

	if out.Skipped || !out.Success || out.Error != nil {
		t.Fatalf("expected success, got %+v", out)
	}
	job, ok := s.Job(jobID)
	if !ok {
		t.Fatalf("expected job to remain in store")
	}
	if job.Locked {
		t.Fatalf("expected job to be unlocked after success")
	}
	if job.NextRunAt == nil || !job.NextRunAt.Equal(nextRun) {
		t.Fatalf("expected nextRunAt persisted, got %+v", job.NextRunAt)
	}
	if sched, ok := s.Schedule(jobID); !ok || sched.Confidence != 0.8 {
		t.Fatalf("expected schedule decision persisted, got %+v", sched)
	}
}

func TestProcessSkipsWhenLockLost(t *testing.T) {
	s := storetest.New()
	jobID := seededJob(s)
	// pre-lock the job as if another processor already owns it this cycle.
	if _, err := s.LockJob(context.Background(), jobID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	p := New(testLogger(t), s, &fakeReasoner{}, &fakeExecutor{}, events.Noop{}, testCfg())
	out := p.Process(context.Background(), jobID)
	if !out.Skipped {
		t.Fatalf("expected skip when lock already held, got %+v", out)
	}
}

func TestProcessSkipsOnMissingJob(t *testing.T) {
	s := storetest.New()
	p := New(testLogger(t), s, &fakeReasoner{}, &fakeExecutor{}, events.Noop{}, testCfg())
	out := p.Process(context.Background(), uuid.New())
	if !out.Skipped {
		t.Fatalf("expected skip for a job absent from the store, got %+v", out)
	}
}

func TestProcessRecordsErrorAndUnlocksOnPlanFailure(t *testing.T) {
	s := storetest.New()
	jobID := seededJob(s)

	boom := errors.New("provider unavailable")
	r := &fakeReasoner{planErr: boom}
	p := New(testLogger(t), s, r, &fakeExecutor{}, events.Noop{}, testCfg())

	out := p.Process(context.Background(), jobID)
	if out.Skipped || out.Success || out.Error == nil {
		t.Fatalf("expected a recorded plan failure, got %+v", out)
	}

	job, ok := s.Job(jobID)
	if !ok || job.Locked {
		t.Fatalf("expected job unlocked after failure, got %+v ok=%v", job, ok)
	}
	errs := s.Errors(jobID)
	if len(errs) != 1 || errs[0].Message != boom.Error() {
		t.Fatalf("expected one recorded job error matching plan failure, got %+v", errs)
	}
}

func TestProcessRecordsErrorOnScheduleFailure(t *testing.T) {
	s := storetest.New()
	jobID := seededJob(s)

	boom := errors.New("schedule malformed")
	r := &fakeReasoner{
		planResult:  reasoner.PlanResult{Plan: domain.ExecutionPlan{ExecutionStrategy: domain.StrategySequential}},
		scheduleErr: boom,
	}
	ex := &fakeExecutor{results: []domain.EndpointExecutionResult{{EndpointID: uuid.New(), Success: true, Timestamp: time.Now()}}}
	p := New(testLogger(t), s, r, ex, events.Noop{}, testCfg())

	out := p.Process(context.Background(), jobID)
	if out.Success || out.Error == nil {
		t.Fatalf("expected a recorded schedule failure, got %+v", out)
	}
	if summary, ok := s.Summary(jobID); !ok || summary.SuccessCount != 1 {
		t.Fatalf("expected the execution summary to persist even though schedule failed, got %+v", summary)
	}
}

func TestSummarizeExcludesAbortedFromFailureCount(t *testing.T) {
	now := time.Now()
	results := []domain.EndpointExecutionResult{
		{Success: true, Timestamp: now, ExecutionTimeMs: 10},
		{Success: false, Timestamp: now.Add(time.Millisecond), ExecutionTimeMs: 5},
		{Success: false, Aborted: true, Timestamp: now.Add(2 * time.Millisecond)},
	}
	summary := summarize(results)
	if summary.SuccessCount != 1 || summary.FailureCount != 1 {
		t.Fatalf("expected aborted result excluded from failureCount, got %+v", summary)
	}
	if summary.TotalDurationMs != 15 {
		t.Fatalf("expected totalDurationMs to sum executionTimeMs, got %d", summary.TotalDurationMs)
	}
}
