package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/brightloop/schedulerd/internal/domain"
	"github.com/brightloop/schedulerd/internal/events"
	"github.com/brightloop/schedulerd/internal/jobprocessor"
	"github.com/brightloop/schedulerd/internal/platform/config"
	"github.com/brightloop/schedulerd/internal/platform/logger"
	"github.com/brightloop/schedulerd/internal/store/storetest"
)

// fakeProcessor scripts an Outcome per job id and records call order and
// observed concurrency, the way executor_test.go's fakeCaller scripts
// per-URL responses.
type fakeProcessor struct {
	mu          sync.Mutex
	outcomes    map[uuid.UUID]jobprocessor.Outcome
	delay       time.Duration
	inFlight    int
	maxInFlight int
	calls       []uuid.UUID
	blockUntil  chan struct{} // if set, every call waits for this to close
}

func (f *fakeProcessor) Process(ctx context.Context, jobID uuid.UUID) jobprocessor.Outcome {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.calls = append(f.calls, jobID)
	f.mu.Unlock()

	if f.blockUntil != nil {
		// Mirrors an in-flight HTTP call that only observes cancellation
		// at its own timeout boundary, not instantly: Stop must still
		// wait for this call to return on its own.
		<-f.blockUntil
	} else if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	out, ok := f.outcomes[jobID]
	f.mu.Unlock()
	if !ok {
		return jobprocessor.Outcome{Success: true}
	}
	if ctx.Err() != nil {
		return jobprocessor.Outcome{Success: false, Error: ctx.Err()}
	}
	return out
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
		Scheduler: config.Scheduler{
			MaxBatchSize:             50,
			ProcessingIntervalMs:     10 * time.Millisecond,
			JobProcessingConcurrency: 2,
		},
	}
}

func seedDueJob(s *storetest.Fake) uuid.UUID {
	id := uuid.New()
	s.SeedJob(domain.Job{ID: id, Status: domain.JobStatusActive}, nil)
	return id
}

func TestProcessCycleEmptyBatchFinalizesImmediately(t *testing.T) {
	s := storetest.New()
	p := &fakeProcessor{outcomes: map[uuid.UUID]jobprocessor.Outcome{}}
	e := New(testLogger(t), s, p, events.Noop{}, testCfg())

	result, err := e.ProcessCycle(context.Background())
	if err != nil {
		t.Fatalf("ProcessCycle: %v", err)
	}
	if result.JobsProcessed != 0 {
		t.Fatalf("expected zero jobs processed for an empty batch, got %+v", result)
	}
	state := e.GetState()
	if state.Progress != nil {
		t.Fatalf("expected progress cleared after an empty cycle, got %+v", state.Progress)
	}
}

func TestProcessCycleFoldsOutcomesIntoResultAndStats(t *testing.T) {
	s := storetest.New()
	idA, idB, idC := seedDueJob(s), seedDueJob(s), seedDueJob(s)

	p := &fakeProcessor{outcomes: map[uuid.UUID]jobprocessor.Outcome{
		idA: {Success: true},
		idB: {Success: false, Error: context.DeadlineExceeded},
		idC: {Skipped: true},
	}}
	e := New(testLogger(t), s, p, events.Noop{}, testCfg())

	result, err := e.ProcessCycle(context.Background())
	if err != nil {
		t.Fatalf("ProcessCycle: %v", err)
	}
	if result.JobsProcessed != 3 || result.SuccessfulJobs != 1 || result.FailedJobs != 1 {
		t.Fatalf("expected 3 processed / 1 success / 1 failure, got %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0].JobID != idB {
		t.Fatalf("expected one aggregate error for the failed job, got %+v", result.Errors)
	}

	state := e.GetState()
	if state.Stats.CyclesProcessed != 1 || state.Stats.JobsProcessed != 3 {
		t.Fatalf("expected stats folded from the cycle, got %+v", state.Stats)
	}
}

func TestProcessCycleBoundsConcurrencyToJobProcessingConcurrency(t *testing.T) {
	s := storetest.New()
	for i := 0; i < 6; i++ {
		seedDueJob(s)
	}
	p := &fakeProcessor{outcomes: map[uuid.UUID]jobprocessor.Outcome{}, delay: 20 * time.Millisecond}
	cfg := testCfg()
	cfg.Scheduler.JobProcessingConcurrency = 2
	e := New(testLogger(t), s, p, events.Noop{}, cfg)

	if _, err := e.ProcessCycle(context.Background()); err != nil {
		t.Fatalf("ProcessCycle: %v", err)
	}
	if p.maxInFlight > 2 {
		t.Fatalf("expected at most 2 concurrent jobs, observed %d", p.maxInFlight)
	}
}

func TestStopWaitsForInFlightCycleBeforeReportingStopped(t *testing.T) {
	s := storetest.New()
	seedDueJob(s)
	block := make(chan struct{})
	p := &fakeProcessor{outcomes: map[uuid.UUID]jobprocessor.Outcome{}, blockUntil: block}
	e := New(testLogger(t), s, p, events.Noop{}, testCfg())

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Give the tick loop a chance to pick up the seeded job.
	deadline := time.After(time.Second)
	for {
		p.mu.Lock()
		started := len(p.calls) > 0
		p.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for cycle to start processing the seeded job")
		case <-time.After(time.Millisecond):
		}
	}

	stopDone := make(chan struct{})
	go func() {
		e.Stop(context.Background())
		close(stopDone)
	}()

	select {
	case <-stopDone:
		t.Fatal("Stop returned before the in-flight cycle unwound")
	case <-time.After(30 * time.Millisecond):
	}

	close(block)
	select {
	case <-stopDone:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the in-flight cycle unblocked")
	}

	state := e.GetState()
	if state.Status != domain.EngineStopped {
		t.Fatalf("expected status=stopped after Stop returns, got %s", state.Status)
	}
}

func TestStartRequiresStoppedStatus(t *testing.T) {
	s := storetest.New()
	p := &fakeProcessor{outcomes: map[uuid.UUID]jobprocessor.Outcome{}}
	e := New(testLogger(t), s, p, events.Noop{}, testCfg())

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := e.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail while already running")
	}
	e.Stop(context.Background())
}

func TestGetStateReturnsDefensiveCopy(t *testing.T) {
	s := storetest.New()
	seedDueJob(s)
	p := &fakeProcessor{outcomes: map[uuid.UUID]jobprocessor.Outcome{}}
	e := New(testLogger(t), s, p, events.Noop{}, testCfg())

	if _, err := e.ProcessCycle(context.Background()); err != nil {
		t.Fatalf("ProcessCycle: %v", err)
	}
	state := e.GetState()
	state.Stats.JobsProcessed = 999
	freshState := e.GetState()
	if freshState.Stats.JobsProcessed == 999 {
		t.Fatal("expected GetState to return a copy, mutation leaked into engine state")
	}
}
