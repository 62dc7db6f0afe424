package events

import "sync/atomic"

// StatsSnapshot is the malformed-response/repair half of EngineStats —
// the half that's naturally shaped like the events already flowing
// through OnReasonerMalformed, rather than like a per-job outcome.
type StatsSnapshot struct {
	MalformedResponsesPlan     int64
	MalformedResponsesSchedule int64
	RepairAttemptsPlan         int64
	RepairAttemptsSchedule     int64
	RepairSuccessesPlan        int64
	RepairSuccessesSchedule    int64
	RepairFailuresPlan         int64
	RepairFailuresSchedule     int64
}

// StatsSource is the optional capability a Hooks implementation can
// expose so the Cycle Orchestrator can read cumulative reasoner
// counters without the Hooks interface itself growing a method every
// consumer (logging, SSE, a future metrics sink) would have to implement.
type StatsSource interface {
	StatsSnapshot() StatsSnapshot
}

// StatsHooks wraps another Hooks and tallies the §4.2 step-5 outcomes by
// phase, atomically, so one instance can be shared across every
// concurrent job in a cycle. Every other event passes through to Next
// untouched, the way a decorator should.
type StatsHooks struct {
	Next Hooks

	malformedPlan           int64
	malformedSchedule       int64
	repairAttemptsPlan      int64
	repairAttemptsSchedule  int64
	repairSuccessesPlan     int64
	repairSuccessesSchedule int64
	repairFailuresPlan      int64
	repairFailuresSchedule  int64
}

// NewStatsHooks wraps next (defaulting to Noop) with reasoner-outcome
// counting.
func NewStatsHooks(next Hooks) *StatsHooks {
	if next == nil {
		next = Noop{}
	}
	return &StatsHooks{Next: next}
}

var _ Hooks = (*StatsHooks)(nil)
var _ StatsSource = (*StatsHooks)(nil)

func (s *StatsHooks) OnExecutionProgress(e ExecutionProgress)   { s.Next.OnExecutionProgress(e) }
func (s *StatsHooks) OnEndpointProgress(e EndpointProgress)     { s.Next.OnEndpointProgress(e) }
func (s *StatsHooks) OnRetryAttempt(e RetryAttempt)             { s.Next.OnRetryAttempt(e) }
func (s *StatsHooks) OnRetryExhausted(e RetryExhausted)         { s.Next.OnRetryExhausted(e) }
func (s *StatsHooks) OnCircuitStateChange(e CircuitStateChange) { s.Next.OnCircuitStateChange(e) }

func (s *StatsHooks) OnReasonerMalformed(e ReasonerMalformed) {
	switch e.Kind {
	case ReasonerKindMalformed:
		s.bump(e.Phase, &s.malformedPlan, &s.malformedSchedule)
	case ReasonerKindRepairAttempt:
		s.bump(e.Phase, &s.repairAttemptsPlan, &s.repairAttemptsSchedule)
	case ReasonerKindRepairSuccess:
		s.bump(e.Phase, &s.repairSuccessesPlan, &s.repairSuccessesSchedule)
	case ReasonerKindRepairFailure:
		s.bump(e.Phase, &s.repairFailuresPlan, &s.repairFailuresSchedule)
	}
	s.Next.OnReasonerMalformed(e)
}

func (s *StatsHooks) bump(phase ReasonerPhase, plan, schedule *int64) {
	if phase == PhaseSchedule {
		atomic.AddInt64(schedule, 1)
		return
	}
	atomic.AddInt64(plan, 1)
}

// StatsSnapshot returns the cumulative counters observed so far.
func (s *StatsHooks) StatsSnapshot() StatsSnapshot {
	return StatsSnapshot{
		MalformedResponsesPlan:     atomic.LoadInt64(&s.malformedPlan),
		MalformedResponsesSchedule: atomic.LoadInt64(&s.malformedSchedule),
		RepairAttemptsPlan:         atomic.LoadInt64(&s.repairAttemptsPlan),
		RepairAttemptsSchedule:     atomic.LoadInt64(&s.repairAttemptsSchedule),
		RepairSuccessesPlan:        atomic.LoadInt64(&s.repairSuccessesPlan),
		RepairSuccessesSchedule:    atomic.LoadInt64(&s.repairSuccessesSchedule),
		RepairFailuresPlan:         atomic.LoadInt64(&s.repairFailuresPlan),
		RepairFailuresSchedule:     atomic.LoadInt64(&s.repairFailuresSchedule),
	}
}
