package domain

import (
	"github.com/google/uuid"
)

// ExecutionStrategy picks the dispatch mode the Endpoint Executor uses for
// an ExecutionPlan's entries.
type ExecutionStrategy string

const (
	StrategySequential ExecutionStrategy = "sequential"
	StrategyParallel   ExecutionStrategy = "parallel"
	StrategyMixed      ExecutionStrategy = "mixed"
)

// PlanEndpoint is one entry in an ExecutionPlan's endpointsToCall list.
// Struct tags are validated by github.com/go-playground/validator/v10 in
// the Reasoner Gateway's semantic-validation pass; DAG-shaped invariants
// that span multiple entries (dependsOn closure, acyclicity) cannot be
// expressed as tags and are checked separately.
type PlanEndpoint struct {
	EndpointID uuid.UUID         `json:"endpointId" validate:"required"`
	Parameters map[string]any    `json:"parameters,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Priority   int               `json:"priority"`
	DependsOn  []uuid.UUID       `json:"dependsOn,omitempty"`
	Critical   bool              `json:"critical"`
}

// ExecutionPlan is the reasoner's first-phase output.
type ExecutionPlan struct {
	Endpoints            []PlanEndpoint    `json:"endpointsToCall" validate:"dive"`
	ExecutionStrategy    ExecutionStrategy `json:"executionStrategy" validate:"required,oneof=sequential parallel mixed"`
	ConcurrencyLimit     *int              `json:"concurrencyLimit,omitempty" validate:"omitempty,gte=1"`
	PreliminaryNextRunAt *string           `json:"preliminaryNextRunAt,omitempty"`
	Reasoning            string            `json:"reasoning"`
	Confidence           float64           `json:"confidence" validate:"gte=0,lte=1"`
}

// DependsOnCloses reports whether every dependsOn id named by some entry is
// itself present as an endpointsToCall entry in the same plan.
func (p ExecutionPlan) DependsOnCloses() bool {
	present := make(map[uuid.UUID]struct{}, len(p.Endpoints))
	for _, e := range p.Endpoints {
		present[e.EndpointID] = struct{}{}
	}
	for _, e := range p.Endpoints {
		for _, dep := range e.DependsOn {
			if _, ok := present[dep]; !ok {
				return false
			}
		}
	}
	return true
}

// IsDAG reports whether the plan's dependsOn edges form a DAG, via a Kahn
// topological sort (grounded on the same shape
// internal/jobs/orchestrator/dag.go uses for its stage dependency graph).
func (p ExecutionPlan) IsDAG() bool {
	indegree := make(map[uuid.UUID]int, len(p.Endpoints))
	adj := make(map[uuid.UUID][]uuid.UUID, len(p.Endpoints))
	for _, e := range p.Endpoints {
		if _, ok := indegree[e.EndpointID]; !ok {
			indegree[e.EndpointID] = 0
		}
		for _, dep := range e.DependsOn {
			adj[dep] = append(adj[dep], e.EndpointID)
			indegree[e.EndpointID]++
		}
	}
	var queue []uuid.UUID
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adj[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return visited == len(indegree)
}

// StablePriorityOrder returns endpoint entries sorted by ascending
// priority, stable on input order for ties, the ordering the sequential
// strategy iterates in.
func (p ExecutionPlan) StablePriorityOrder() []PlanEndpoint {
	out := make([]PlanEndpoint, len(p.Endpoints))
	copy(out, p.Endpoints)
	// insertion sort: plans are small (endpoint counts per job), and
	// stability matters more than asymptotics here.
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && out[j-1].Priority > out[j].Priority {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	return out
}
