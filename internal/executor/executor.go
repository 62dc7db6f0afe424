// Package executor is the Endpoint Executor (§4.6): strategy dispatch
// (sequential/parallel/mixed), per-call timeout/retry/circuit-breaker
// gating, and cancellation propagation. The parallel and mixed strategies
// are built on golang.org/x/sync/errgroup's bounded fan-out
// (errgroup.WithContext + SetLimit), grounded on
// internal/modules/learning/steps/embed_chunks.go's batch-fan-out shape;
// sequential is a stable-priority-sorted loop, grounded on
// internal/jobs/orchestrator/dag.go's Kahn-topological-sort-then-iterate
// shape (repurposed here for priority order rather than dependency order).
package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brightloop/schedulerd/internal/circuit"
	"github.com/brightloop/schedulerd/internal/classify"
	"github.com/brightloop/schedulerd/internal/domain"
	"github.com/brightloop/schedulerd/internal/events"
	"github.com/brightloop/schedulerd/internal/platform/config"
	"github.com/brightloop/schedulerd/internal/platform/logger"
	"github.com/brightloop/schedulerd/internal/retrypolicy"
)

// CircularDependency is raised by the mixed strategy when a wave completes
// with no endpoints admitted while work remains pending.
type CircularDependency struct {
	PendingIDs []uuid.UUID
}

func (e *CircularDependency) Error() string {
	return fmt.Sprintf("circular dependency among %d pending endpoints", len(e.PendingIDs))
}

// Executor dispatches an ExecutionPlan's endpoints under one of three
// strategies, gating every call through a per-endpoint circuit breaker and
// a replaceable retry policy.
type Executor struct {
	cfg      config.Execution
	caller   Caller
	breakers *circuit.Manager
	retry    retrypolicy.Policy
	hooks    events.Hooks
	log      *logger.Logger
}

// New constructs an Executor. A nil retry policy defaults to
// retrypolicy.New(0, 0); a nil hooks defaults to events.Noop{}.
func New(log *logger.Logger, cfg config.Execution, caller Caller, breakers *circuit.Manager, retry retrypolicy.Policy, hooks events.Hooks) *Executor {
	if retry == nil {
		retry = retrypolicy.New(0, 0)
	}
	if hooks == nil {
		hooks = events.Noop{}
	}
	return &Executor{
		cfg:      cfg,
		caller:   caller,
		breakers: breakers,
		retry:    retry,
		hooks:    hooks,
		log:      log.With("component", "executor.Executor"),
	}
}

// ExecuteEndpoints dispatches plan.Endpoints per plan.ExecutionStrategy and
// returns one EndpointExecutionResult per endpoint entry attempted.
func (e *Executor) ExecuteEndpoints(ctx context.Context, jc domain.JobContext, plan domain.ExecutionPlan) ([]domain.EndpointExecutionResult, error) {
	switch plan.ExecutionStrategy {
	case domain.StrategySequential:
		return e.runSequential(ctx, jc, plan), nil
	case domain.StrategyParallel:
		return e.runParallel(ctx, jc, plan)
	case domain.StrategyMixed:
		return e.runMixed(ctx, jc, plan)
	default:
		return e.runSequential(ctx, jc, plan), nil
	}
}

// runSequential iterates endpoints sorted by ascending priority, stopping
// as soon as a critical entry fails (§4.6, invariant 5 in §8).
func (e *Executor) runSequential(ctx context.Context, jc domain.JobContext, plan domain.ExecutionPlan) []domain.EndpointExecutionResult {
	ordered := plan.StablePriorityOrder()
	results := make([]domain.EndpointExecutionResult, 0, len(ordered))
	for _, entry := range ordered {
		res := e.executeSingle(ctx, jc, entry)
		results = append(results, res)
		if entry.Critical && !res.Success {
			break
		}
	}
	return results
}

// concurrencyLimit resolves plan.ConcurrencyLimit against the configured
// default and the hard cap.
func (e *Executor) concurrencyLimit(plan domain.ExecutionPlan) int {
	limit := e.cfg.DefaultConcurrencyLimit
	if plan.ConcurrencyLimit != nil && *plan.ConcurrencyLimit > 0 {
		limit = *plan.ConcurrencyLimit
	}
	if limit <= 0 {
		limit = 1
	}
	if e.cfg.MaxConcurrency > 0 && limit > e.cfg.MaxConcurrency {
		limit = e.cfg.MaxConcurrency
	}
	return limit
}

// runParallel submits every endpoint to a bounded work queue and collects
// all results; no ordering guarantee between entries.
func (e *Executor) runParallel(ctx context.Context, jc domain.JobContext, plan domain.ExecutionPlan) ([]domain.EndpointExecutionResult, error) {
	results := make([]domain.EndpointExecutionResult, len(plan.Endpoints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrencyLimit(plan))

	for i, entry := range plan.Endpoints {
		i, entry := i, entry
		g.Go(func() error {
			results[i] = e.executeSingle(gctx, jc, entry)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// runMixed runs dependency-ordered waves: each wave is the subset of
// not-yet-run endpoints whose dependsOn are all satisfied (completed
// successfully, or absent) and none of whose dependsOn landed in the
// failed-critical set. Iterates until everything has run or a wave admits
// nothing while work remains, which is a CircularDependency.
func (e *Executor) runMixed(ctx context.Context, jc domain.JobContext, plan domain.ExecutionPlan) ([]domain.EndpointExecutionResult, error) {
	pending := make(map[uuid.UUID]domain.PlanEndpoint, len(plan.Endpoints))
	for _, entry := range plan.Endpoints {
		pending[entry.EndpointID] = entry
	}

	succeeded := map[uuid.UUID]struct{}{}
	failedCritical := map[uuid.UUID]struct{}{}
	resultByID := map[uuid.UUID]domain.EndpointExecutionResult{}

	var mu sync.Mutex

	for len(pending) > 0 {
		var wave []domain.PlanEndpoint
		for _, entry := range pending {
			if waveReady(entry, succeeded, failedCritical) {
				wave = append(wave, entry)
			}
		}
		if len(wave) == 0 {
			pendingIDs := make([]uuid.UUID, 0, len(pending))
			for id := range pending {
				pendingIDs = append(pendingIDs, id)
			}
			sort.Slice(pendingIDs, func(i, j int) bool { return pendingIDs[i].String() < pendingIDs[j].String() })
			return orderedResults(plan, resultByID), &CircularDependency{PendingIDs: pendingIDs}
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.concurrencyLimit(plan))
		for _, entry := range wave {
			entry := entry
			g.Go(func() error {
				res := e.executeSingle(gctx, jc, entry)
				mu.Lock()
				resultByID[entry.EndpointID] = res
				if res.Success {
					succeeded[entry.EndpointID] = struct{}{}
				} else if entry.Critical {
					failedCritical[entry.EndpointID] = struct{}{}
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		for _, entry := range wave {
			delete(pending, entry.EndpointID)
		}
	}

	return orderedResults(plan, resultByID), nil
}

// waveReady reports whether entry's dependencies are all resolved: each
// dependsOn id is either already succeeded, or absent from both succeeded
// and failedCritical would block the wave — a dependency that failed
// critically blocks this entry from ever running.
func waveReady(entry domain.PlanEndpoint, succeeded, failedCritical map[uuid.UUID]struct{}) bool {
	for _, dep := range entry.DependsOn {
		if _, blocked := failedCritical[dep]; blocked {
			return false
		}
		if _, ok := succeeded[dep]; !ok {
			return false
		}
	}
	return true
}

// orderedResults returns results in plan.Endpoints order, omitting entries
// that never ran (blocked permanently by a critical-failed dependency).
func orderedResults(plan domain.ExecutionPlan, byID map[uuid.UUID]domain.EndpointExecutionResult) []domain.EndpointExecutionResult {
	out := make([]domain.EndpointExecutionResult, 0, len(byID))
	for _, entry := range plan.Endpoints {
		if res, ok := byID[entry.EndpointID]; ok {
			out = append(out, res)
		}
	}
	return out
}

// executeSingle runs one planned endpoint call end to end: lookup, circuit
// gate, header/body assembly, retry loop.
func (e *Executor) executeSingle(ctx context.Context, jc domain.JobContext, entry domain.PlanEndpoint) domain.EndpointExecutionResult {
	now := time.Now()
	endpoint, ok := jc.EndpointByID(entry.EndpointID)
	if !ok {
		return domain.EndpointExecutionResult{
			EndpointID: entry.EndpointID,
			Success:    false,
			StatusCode: 0,
			Timestamp:  now,
			Error:      "endpoint not found",
			Attempts:   0,
		}
	}

	e.hooks.OnEndpointProgress(events.EndpointProgress{JobID: jc.Job.ID, EndpointID: entry.EndpointID, Status: events.EndpointPending})

	headers := mergeHeaders(jc.Job.Headers(), endpoint.Headers(), entry.Headers)
	timeout := e.cfg.DefaultTimeoutMs
	if endpoint.TimeoutMs > 0 {
		timeout = time.Duration(endpoint.TimeoutMs) * time.Millisecond
	}
	maxAttempts := e.cfg.MaxEndpointRetries + 1

	var breaker *circuit.Breaker
	if e.breakers != nil {
		breaker = e.breakers.For(entry.EndpointID.String())
		if breaker.State() == domain.CircuitOpen {
			return domain.EndpointExecutionResult{
				EndpointID: entry.EndpointID,
				Success:    false,
				Timestamp:  now,
				Error:      "circuit_open",
				Attempts:   0,
			}
		}
	}

	e.hooks.OnEndpointProgress(events.EndpointProgress{JobID: jc.Job.ID, EndpointID: entry.EndpointID, Status: events.EndpointRunning, Attempt: 1})

	var lastErr string
	var lastStatus int
	var truncatedBody string
	var truncated bool
	aborted := false
	attempt := 0

	for attempt = 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			aborted = true
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		resp, callErr := e.invoke(callCtx, breaker, CallRequest{
			Method:     endpoint.Method,
			URL:        endpoint.URL,
			Headers:    headers,
			Parameters: entry.Parameters,
			Timeout:    timeout,
		})
		elapsed := time.Since(start)
		cancel()

		abortedThisAttempt := ctx.Err() != nil

		if callErr == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			content, trunc := truncate(resp.Body, e.cfg.ResponseContentLengthLimit)
			e.hooks.OnEndpointProgress(events.EndpointProgress{JobID: jc.Job.ID, EndpointID: entry.EndpointID, Status: events.EndpointSuccess, Attempt: attempt})
			return domain.EndpointExecutionResult{
				EndpointID:      entry.EndpointID,
				Success:         true,
				StatusCode:      resp.StatusCode,
				ExecutionTimeMs: elapsed.Milliseconds(),
				Timestamp:       time.Now(),
				ResponseContent: content,
				Truncated:       trunc,
				Attempts:        attempt,
			}
		}

		statusCode := 0
		if resp.StatusCode != 0 {
			statusCode = resp.StatusCode
		}
		outcome := classify.Call(classify.Failure{Err: callErr, StatusCode: statusCode, Aborted: abortedThisAttempt})

		if abortedThisAttempt {
			aborted = true
			lastErr = "aborted"
			lastStatus = statusCode
			break
		}

		lastStatus = statusCode
		if callErr != nil {
			lastErr = callErr.Error()
		} else {
			content, trunc := truncate(resp.Body, e.cfg.ResponseContentLengthLimit)
			truncatedBody, truncated = content, trunc
			lastErr = fmt.Sprintf("http status %d", statusCode)
		}

		decision := e.retry.Evaluate(retrypolicy.Input{
			Attempt:      attempt,
			MaxAttempts:  maxAttempts,
			Category:     string(outcome.Category),
			Transient:    outcome.Transient,
			StatusCode:   statusCode,
			ErrorMessage: lastErr,
		})

		if decision == retrypolicy.DecisionRetry {
			e.hooks.OnRetryAttempt(events.RetryAttempt{JobID: jc.Job.ID, EndpointID: entry.EndpointID, Attempt: attempt})
			delay := e.retry.NextDelay(attempt)
			select {
			case <-ctx.Done():
				aborted = true
			case <-time.After(delay):
			}
			if aborted {
				break
			}
			continue
		}

		if attempt == maxAttempts {
			e.hooks.OnRetryExhausted(events.RetryExhausted{JobID: jc.Job.ID, EndpointID: entry.EndpointID, Attempts: attempt})
		}
		e.hooks.OnEndpointProgress(events.EndpointProgress{JobID: jc.Job.ID, EndpointID: entry.EndpointID, Status: events.EndpointFailed, Attempt: attempt, Error: lastErr})
		return domain.EndpointExecutionResult{
			EndpointID:      entry.EndpointID,
			Success:         false,
			StatusCode:      lastStatus,
			ExecutionTimeMs: elapsed.Milliseconds(),
			Timestamp:       time.Now(),
			ResponseContent: truncatedBody,
			Truncated:       truncated,
			Error:           lastErr,
			Attempts:        attempt,
		}
	}

	if aborted {
		e.hooks.OnEndpointProgress(events.EndpointProgress{JobID: jc.Job.ID, EndpointID: entry.EndpointID, Status: events.EndpointFailed, Attempt: attempt, Error: "aborted"})
		return domain.EndpointExecutionResult{
			EndpointID: entry.EndpointID,
			Success:    false,
			StatusCode: lastStatus,
			Timestamp:  time.Now(),
			Error:      "aborted",
			Attempts:   attempt,
			Aborted:    true,
		}
	}

	// maxAttempts == 0 defensive fallback; not reachable given MaxEndpointRetries >= 0.
	return domain.EndpointExecutionResult{
		EndpointID: entry.EndpointID,
		Success:    false,
		Timestamp:  time.Now(),
		Error:      lastErr,
		Attempts:   attempt - 1,
	}
}

// invoke runs the HTTP call through the circuit breaker when one is
// configured, or directly otherwise. Only network errors and 5xx responses
// feed the breaker's failure count; a 4xx is a client-side outcome and
// never trips it.
func (e *Executor) invoke(ctx context.Context, breaker *circuit.Breaker, req CallRequest) (CallResponse, error) {
	if breaker == nil {
		return e.caller.Call(ctx, req)
	}
	resp, err := circuit.Execute(ctx, breaker, func(c context.Context) (CallResponse, error) {
		r, callErr := e.caller.Call(c, req)
		if callErr != nil {
			return r, callErr
		}
		if r.StatusCode >= 500 {
			return r, fmt.Errorf("http status %d", r.StatusCode)
		}
		return r, nil
	})
	if err == circuit.ErrOpen {
		return CallResponse{}, err
	}
	return resp, err
}

func mergeHeaders(layers ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

func truncate(body []byte, limit int) (string, bool) {
	if limit <= 0 {
		return "", len(body) > 0
	}
	if len(body) <= limit {
		return string(body), false
	}
	return string(body[:limit]), true
}
