// Package events is the engine's event-hook surface: the six notifications
// §6 names, adapted from internal/services/job_notifier.go's JobNotifier
// shape (there: one interface method per SSE event broadcast to a user
// channel; here: one interface method per engine event, broadcast to
// whatever sink the caller wires — by default, structured logs).
package events

import (
	"github.com/google/uuid"

	"github.com/brightloop/schedulerd/internal/domain"
	"github.com/brightloop/schedulerd/internal/platform/logger"
)

// ExecutionProgress mirrors onExecutionProgress({jobId?, total, completed}).
type ExecutionProgress struct {
	JobID     *uuid.UUID
	Total     int
	Completed int
}

// EndpointStatus is the status band of an onEndpointProgress event.
type EndpointStatus string

const (
	EndpointPending EndpointStatus = "pending"
	EndpointRunning EndpointStatus = "running"
	EndpointSuccess EndpointStatus = "success"
	EndpointFailed  EndpointStatus = "failed"
)

// EndpointProgress mirrors onEndpointProgress.
type EndpointProgress struct {
	JobID      uuid.UUID
	EndpointID uuid.UUID
	Status     EndpointStatus
	Attempt    int
	Error      string
}

// RetryAttempt mirrors onRetryAttempt.
type RetryAttempt struct {
	JobID      uuid.UUID
	EndpointID uuid.UUID
	Attempt    int
}

// RetryExhausted mirrors onRetryExhausted.
type RetryExhausted struct {
	JobID      uuid.UUID
	EndpointID uuid.UUID
	Attempts   int
}

// CircuitStateChange mirrors onCircuitStateChange.
type CircuitStateChange struct {
	EndpointID string
	From       domain.CircuitStateName
	To         domain.CircuitStateName
	Reason     string
}

// ReasonerPhase distinguishes a plan call from a schedule call for
// malformed-response reporting.
type ReasonerPhase string

const (
	PhasePlan     ReasonerPhase = "plan"
	PhaseSchedule ReasonerPhase = "schedule"
)

// ReasonerOutcomeKind distinguishes the four reasoner metric events §4.2
// step 5 names; onReasonerMalformed is the public-facing hook name, so the
// Go type stays ReasonerMalformed, but Kind carries all four outcomes.
type ReasonerOutcomeKind string

const (
	ReasonerKindMalformed     ReasonerOutcomeKind = "malformed"
	ReasonerKindRepairAttempt ReasonerOutcomeKind = "repairAttempt"
	ReasonerKindRepairSuccess ReasonerOutcomeKind = "repairSuccess"
	ReasonerKindRepairFailure ReasonerOutcomeKind = "repairFailure"
)

// ReasonerMalformed mirrors onReasonerMalformed, extended with Kind so the
// same hook carries all four step-5 metric outcomes, not just terminal
// failures.
type ReasonerMalformed struct {
	Kind     ReasonerOutcomeKind
	Phase    ReasonerPhase
	Category string
	Repaired bool
}

// Hooks is the full engine event surface. Every other component depends on
// this interface, never on a concrete sink, so tests can assert on a fake
// and production can fan events out to logs/metrics/SSE interchangeably.
type Hooks interface {
	OnExecutionProgress(ExecutionProgress)
	OnEndpointProgress(EndpointProgress)
	OnRetryAttempt(RetryAttempt)
	OnRetryExhausted(RetryExhausted)
	OnCircuitStateChange(CircuitStateChange)
	OnReasonerMalformed(ReasonerMalformed)
}

// Noop discards every event; useful as a default when no sink is wired.
type Noop struct{}

func (Noop) OnExecutionProgress(ExecutionProgress)   {}
func (Noop) OnEndpointProgress(EndpointProgress)     {}
func (Noop) OnRetryAttempt(RetryAttempt)             {}
func (Noop) OnRetryExhausted(RetryExhausted)         {}
func (Noop) OnCircuitStateChange(CircuitStateChange) {}
func (Noop) OnReasonerMalformed(ReasonerMalformed)   {}

var _ Hooks = Noop{}

// LoggingHooks logs circuit state changes at Info, malformed responses and
// retry exhaustion at Warn, and the high-volume per-attempt/progress
// events at Debug, the way job_notifier.go's SSE broadcasts double as the
// operator-visible record of job lifecycle events.
type LoggingHooks struct {
	log *logger.Logger
}

// NewLoggingHooks wraps log as a Hooks sink.
func NewLoggingHooks(log *logger.Logger) *LoggingHooks {
	return &LoggingHooks{log: log.With("component", "events.Hooks")}
}

var _ Hooks = (*LoggingHooks)(nil)

func (h *LoggingHooks) OnExecutionProgress(e ExecutionProgress) {
	h.log.Debug("execution progress", "job_id", e.JobID, "total", e.Total, "completed", e.Completed)
}

func (h *LoggingHooks) OnEndpointProgress(e EndpointProgress) {
	h.log.Debug("endpoint progress",
		"job_id", e.JobID, "endpoint_id", e.EndpointID, "status", e.Status, "attempt", e.Attempt, "error", e.Error)
}

func (h *LoggingHooks) OnRetryAttempt(e RetryAttempt) {
	h.log.Debug("retry attempt", "job_id", e.JobID, "endpoint_id", e.EndpointID, "attempt", e.Attempt)
}

func (h *LoggingHooks) OnRetryExhausted(e RetryExhausted) {
	h.log.Warn("retry exhausted", "job_id", e.JobID, "endpoint_id", e.EndpointID, "attempts", e.Attempts)
}

func (h *LoggingHooks) OnCircuitStateChange(e CircuitStateChange) {
	h.log.Info("circuit state change", "endpoint_id", e.EndpointID, "from", e.From, "to", e.To, "reason", e.Reason)
}

func (h *LoggingHooks) OnReasonerMalformed(e ReasonerMalformed) {
	h.log.Warn("reasoner malformed response", "phase", e.Phase, "category", e.Category, "repaired", e.Repaired)
}
