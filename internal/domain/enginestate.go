package domain

import (
	"time"

	"github.com/google/uuid"
)

// EngineStatus is the Engine Lifecycle's process-local status.
type EngineStatus string

const (
	EngineStopped EngineStatus = "stopped"
	EngineRunning EngineStatus = "running"
	EnginePaused  EngineStatus = "paused"
	EngineError   EngineStatus = "error"
)

// EngineStats accumulates totals across every cycle the engine has run.
// The counters only ever increase; LastCycleDurationMs holds the latest
// cycle's duration and AvgCycleDurationMs the running mean. getState
// returns a copy, never the live struct, so callers cannot race on these.
type EngineStats struct {
	CyclesProcessed  int64
	JobsProcessed    int64
	SuccessfulJobs   int64
	FailedJobs       int64
	EndpointCalls    int64
	ReasonerCalls    int64
	TokenTotals      TokenUsage

	MalformedResponsesPlan     int64
	MalformedResponsesSchedule int64
	RepairAttemptsPlan         int64
	RepairAttemptsSchedule     int64
	RepairSuccessesPlan        int64
	RepairSuccessesSchedule    int64
	RepairFailuresPlan         int64
	RepairFailuresSchedule     int64

	LastCycleDurationMs int64
	AvgCycleDurationMs  float64
}

// EndpointProgressTotals is the "endpoints" sub-object of EngineProgress.
// Per the Open Question resolution recorded in DESIGN.md, Total grows by
// each job's planned endpoint count and Completed by one per endpoint
// result, so Total can lead Completed.
type EndpointProgressTotals struct {
	Total     int64
	Completed int64
	ByID      map[uuid.UUID]int64
}

// EngineProgress is present only while a cycle is executing.
type EngineProgress struct {
	Total     int
	Completed int
	StartedAt time.Time
	UpdatedAt time.Time
	Endpoints EndpointProgressTotals
}

// EngineState is the single process-local instance of the engine's
// observable state. The Cycle Orchestrator exclusively owns Progress and
// Cancellation; workers only mutate Progress.Completed through the
// orchestrator's bumpProgress, under the Engine's mutex.
type EngineState struct {
	Status             EngineStatus
	StartTime          *time.Time
	StopTime           *time.Time
	LastProcessingTime *time.Time
	Stats              EngineStats
	Progress           *EngineProgress
}
