package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SystemEnvironment is the deployment environment reported to the reasoner,
// part of ExecutionContext per the external "JobContext" data model.
type SystemEnvironment string

const (
	EnvProduction  SystemEnvironment = "production"
	EnvDevelopment SystemEnvironment = "development"
	EnvTest        SystemEnvironment = "test"
)

// ResourceConstraints is an optional hint surfaced to the reasoner; its
// shape is intentionally open-ended (the provider only cares about the
// JSON it receives), so it travels as a map.
type ResourceConstraints map[string]any

// ExecutionContext carries the per-cycle facts the reasoner needs alongside
// the job/endpoint snapshot: current time, environment, optional resource
// hints, and (if cancellation is enabled) the cycle's cancellation signal.
type ExecutionContext struct {
	CurrentTime         time.Time
	SystemEnvironment   SystemEnvironment
	ResourceConstraints ResourceConstraints
	Cancellation        context.Context
}

// Message is a recent conversational/event entry kept on JobContext for the
// reasoner's benefit; trimmed by the Reasoner Gateway's prompt optimizer.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// EndpointUsage is one append-only record of a prior endpoint invocation,
// the input the prompt optimizer caps to maxEndpointUsageEntries.
type EndpointUsage struct {
	EndpointID      uuid.UUID `json:"endpoint_id"`
	CalledAt        time.Time `json:"called_at"`
	StatusCode      int       `json:"status_code"`
	Success         bool      `json:"success"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
}

// JobContext is the ephemeral snapshot assembled per cycle and handed to
// the Reasoner Gateway and Endpoint Executor. It is never persisted as a
// unit — only its constituent ids and value objects are.
type JobContext struct {
	Job              Job
	Endpoints        []Endpoint
	RecentMessages   []Message
	EndpointUsage    []EndpointUsage
	ExecutionContext ExecutionContext
}

// EndpointByID looks up an endpoint snapshot by id, the lookup
// _executeSingle performs before issuing a call.
func (c JobContext) EndpointByID(id uuid.UUID) (Endpoint, bool) {
	for _, e := range c.Endpoints {
		if e.ID == id {
			return e, true
		}
	}
	return Endpoint{}, false
}
