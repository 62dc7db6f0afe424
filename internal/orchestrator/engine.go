package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightloop/schedulerd/internal/domain"
	"github.com/brightloop/schedulerd/internal/events"
	"github.com/brightloop/schedulerd/internal/platform/config"
	"github.com/brightloop/schedulerd/internal/platform/logger"
	"github.com/brightloop/schedulerd/internal/store"
)

// Engine is the single process-local Engine Lifecycle instance: it owns
// EngineState and the periodic tick that drives processCycle.
// Grounded on worker.Worker, generalized from "N goroutines each claiming
// independently" to "one ticker goroutine driving one cycle at a time,
// each cycle internally fanning out across a worker pool" per §4.9's
// "exactly one running cycle at a time" rule.
type Engine struct {
	log       *logger.Logger
	gateway   store.Gateway
	processor Processor
	hooks     events.Hooks
	cfg       config.Config

	mu                 sync.Mutex
	status             domain.EngineStatus
	startTime          *time.Time
	stopTime           *time.Time
	lastProcessingTime *time.Time
	stats              domain.EngineStats
	progress           *domain.EngineProgress
	cancelCycle        context.CancelFunc

	tickerDone chan struct{}
	tickerWG   sync.WaitGroup
	cycleWG    sync.WaitGroup
}

// New constructs an Engine in the stopped state.
func New(log *logger.Logger, gateway store.Gateway, processor Processor, hooks events.Hooks, cfg config.Config) *Engine {
	if hooks == nil {
		hooks = events.Noop{}
	}
	return &Engine{
		log:       log.With("component", "orchestrator.Engine"),
		gateway:   gateway,
		processor: processor,
		hooks:     hooks,
		cfg:       cfg,
		status:    domain.EngineStopped,
	}
}

// Start requires status=stopped; it flips to running and schedules a
// repeating tick at processingIntervalMs. A tick arriving while a cycle is
// still in flight is dropped, never queued (§5: "the periodic tick must
// not overlap itself").
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.status != domain.EngineStopped {
		e.mu.Unlock()
		return fmt.Errorf("orchestrator: start requires status=stopped, got %s", e.status)
	}
	now := time.Now()
	e.status = domain.EngineRunning
	e.startTime = &now
	e.stopTime = nil
	e.tickerDone = make(chan struct{})
	e.mu.Unlock()

	interval := e.cfg.Scheduler.ProcessingIntervalMs
	if interval <= 0 {
		interval = 15 * time.Second
	}

	e.tickerWG.Add(1)
	go e.tickLoop(ctx, interval)
	e.log.Info("engine started", "processing_interval_ms", interval.Milliseconds())
	return nil
}

// tickLoop drives processCycle on a fixed interval until Stop closes
// tickerDone. A busy flag (not a buffered queue) enforces non-overlap.
func (e *Engine) tickLoop(ctx context.Context, interval time.Duration) {
	defer e.tickerWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var busy sync.Mutex
	for {
		select {
		case <-e.tickerDone:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !busy.TryLock() {
				e.log.Warn("processing cycle overlapped tick, dropping")
				continue
			}
			e.cycleWG.Add(1)
			go func() {
				defer e.cycleWG.Done()
				defer busy.Unlock()
				if _, err := e.ProcessCycle(ctx); err != nil {
					e.log.Warn("processing cycle failed", "error", err)
				}
			}()
		}
	}
}

// ProcessCycle runs one full cycle (§4.9 steps 1-4): mint a cycle id and
// cancellation, fetch due jobs, fan them out, fold counters into stats,
// and clear progress/cancellation. The returned error is always nil: a
// fetchDueJobs failure is logged inside runCycle and yields an empty
// result, and per-job failures are recorded in ProcessingResult.Errors
// rather than raised.
func (e *Engine) ProcessCycle(parentCtx context.Context) (ProcessingResult, error) {
	cycleCtx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	cycleID := uuid.New()
	e.log.Debug("processing cycle started", "cycle_id", cycleID)

	e.mu.Lock()
	e.cancelCycle = cancel
	e.mu.Unlock()

	result := e.runCycle(cycleCtx)

	e.mu.Lock()
	e.stats.CyclesProcessed++
	e.stats.JobsProcessed += int64(result.JobsProcessed)
	e.stats.SuccessfulJobs += int64(result.SuccessfulJobs)
	e.stats.FailedJobs += int64(result.FailedJobs)
	e.stats.EndpointCalls += result.EndpointCalls
	e.stats.ReasonerCalls += result.ReasonerCalls
	e.stats.TokenTotals = e.stats.TokenTotals.Add(result.TokenUsage)
	if snap, ok := e.hooks.(events.StatsSource); ok {
		s := snap.StatsSnapshot()
		e.stats.MalformedResponsesPlan = s.MalformedResponsesPlan
		e.stats.MalformedResponsesSchedule = s.MalformedResponsesSchedule
		e.stats.RepairAttemptsPlan = s.RepairAttemptsPlan
		e.stats.RepairAttemptsSchedule = s.RepairAttemptsSchedule
		e.stats.RepairSuccessesPlan = s.RepairSuccessesPlan
		e.stats.RepairSuccessesSchedule = s.RepairSuccessesSchedule
		e.stats.RepairFailuresPlan = s.RepairFailuresPlan
		e.stats.RepairFailuresSchedule = s.RepairFailuresSchedule
	}
	durationMs := result.EndTime.Sub(result.StartTime).Milliseconds()
	e.stats.LastCycleDurationMs = durationMs
	if e.stats.CyclesProcessed == 1 {
		e.stats.AvgCycleDurationMs = float64(durationMs)
	} else {
		n := float64(e.stats.CyclesProcessed)
		e.stats.AvgCycleDurationMs = e.stats.AvgCycleDurationMs + (float64(durationMs)-e.stats.AvgCycleDurationMs)/n
	}
	lastProcessed := result.EndTime
	e.lastProcessingTime = &lastProcessed
	finalTotal, finalCompleted := 0, 0
	if e.progress != nil {
		finalTotal, finalCompleted = e.progress.Total, e.progress.Completed
	}
	e.progress = nil
	e.cancelCycle = nil
	e.mu.Unlock()

	e.hooks.OnExecutionProgress(events.ExecutionProgress{Total: finalTotal, Completed: finalCompleted})
	return result, nil
}

// Stop cancels any in-flight cycle's cancellation token, stops the tick
// loop, waits for the in-flight cycle (if any) to unwind, and sets
// status=stopped only once that wait returns (§8 scenario 6).
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	if e.status != domain.EngineRunning {
		e.mu.Unlock()
		return
	}
	if e.cancelCycle != nil {
		e.cancelCycle()
	}
	done := e.tickerDone
	e.mu.Unlock()

	if done != nil {
		close(done)
	}
	e.tickerWG.Wait()
	e.cycleWG.Wait()

	now := time.Now()
	e.mu.Lock()
	e.status = domain.EngineStopped
	e.stopTime = &now
	e.mu.Unlock()
	e.log.Info("engine stopped")
}

// GetState returns a defensive snapshot; callers never see the live
// struct or a shared Progress pointer.
func (e *Engine) GetState() domain.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()

	var progressCopy *domain.EngineProgress
	if e.progress != nil {
		byID := make(map[uuid.UUID]int64, len(e.progress.Endpoints.ByID))
		for k, v := range e.progress.Endpoints.ByID {
			byID[k] = v
		}
		cp := *e.progress
		cp.Endpoints.ByID = byID
		progressCopy = &cp
	}

	return domain.EngineState{
		Status:             e.status,
		StartTime:          copyTime(e.startTime),
		StopTime:           copyTime(e.stopTime),
		LastProcessingTime: copyTime(e.lastProcessingTime),
		Stats:              e.stats,
		Progress:           progressCopy,
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
