package executor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/brightloop/schedulerd/internal/circuit"
	"github.com/brightloop/schedulerd/internal/domain"
	"github.com/brightloop/schedulerd/internal/events"
	"github.com/brightloop/schedulerd/internal/platform/config"
	"github.com/brightloop/schedulerd/internal/platform/logger"
	"github.com/brightloop/schedulerd/internal/retrypolicy"
)

// fakeCaller is an in-memory Caller the way the pack favors hand-rolled
// fakes over a mocking library; each endpoint id gets its own scripted
// sequence of responses consumed in order, repeating the last entry once
// exhausted.
type fakeCaller struct {
	mu        sync.Mutex
	scripts   map[string][]scriptedCall
	calls     map[string]int
	callOrder []string
}

type scriptedCall struct {
	resp  CallResponse
	err   error
	delay time.Duration
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{scripts: map[string][]scriptedCall{}, calls: map[string]int{}}
}

func (f *fakeCaller) script(url string, calls ...scriptedCall) {
	f.scripts[url] = calls
}

func (f *fakeCaller) Call(ctx context.Context, req CallRequest) (CallResponse, error) {
	f.mu.Lock()
	idx := f.calls[req.URL]
	f.calls[req.URL] = idx + 1
	f.callOrder = append(f.callOrder, req.URL)
	script := f.scripts[req.URL]
	f.mu.Unlock()

	if len(script) == 0 {
		return CallResponse{StatusCode: 200, Body: []byte(`{}`)}, nil
	}
	if idx >= len(script) {
		idx = len(script) - 1
	}
	sc := script[idx]
	if sc.delay > 0 {
		select {
		case <-ctx.Done():
			return CallResponse{}, ctx.Err()
		case <-time.After(sc.delay):
		}
	}
	return sc.resp, sc.err
}

func testConfig() config.Execution {
	return config.Execution{
		MaxConcurrency:             8,
		DefaultConcurrencyLimit:    4,
		DefaultTimeoutMs:           time.Second,
		MaxEndpointRetries:         1,
		ResponseContentLengthLimit: 2000,
	}
}

func newTestExecutor(caller Caller, breakers *circuit.Manager, retry retrypolicy.Policy) *Executor {
	log, err := logger.New("test")
	if err != nil {
		panic(err)
	}
	return New(log, testConfig(), caller, breakers, retry, events.Noop{})
}

func endpoint(id uuid.UUID, url string) domain.Endpoint {
	return domain.Endpoint{ID: id, Method: "GET", URL: url}
}

func jobContext(endpoints ...domain.Endpoint) domain.JobContext {
	return domain.JobContext{
		Job:       domain.Job{ID: uuid.New()},
		Endpoints: endpoints,
	}
}

func TestSequentialStopsOnCriticalFailure(t *testing.T) {
	idA, idB, idC := uuid.New(), uuid.New(), uuid.New()
	caller := newFakeCaller()
	caller.script("http://a", scriptedCall{resp: CallResponse{StatusCode: 200}})
	caller.script("http://b", scriptedCall{resp: CallResponse{StatusCode: 500}}, scriptedCall{resp: CallResponse{StatusCode: 500}})
	caller.script("http://c", scriptedCall{resp: CallResponse{StatusCode: 200}})

	jc := jobContext(endpoint(idA, "http://a"), endpoint(idB, "http://b"), endpoint(idC, "http://c"))
	plan := domain.ExecutionPlan{
		ExecutionStrategy: domain.StrategySequential,
		Endpoints: []domain.PlanEndpoint{
			{EndpointID: idA, Priority: 1},
			{EndpointID: idB, Priority: 2, Critical: true},
			{EndpointID: idC, Priority: 3},
		},
	}

	ex := newTestExecutor(caller, nil, retrypolicy.New(time.Millisecond, time.Millisecond))
	results, err := ex.ExecuteEndpoints(context.Background(), jc, plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected execution to stop after critical failure, got %d results", len(results))
	}
	if !results[0].Success || results[1].Success {
		t.Fatalf("unexpected result shape: %+v", results)
	}
}

func TestParallelRunsAllEndpointsConcurrently(t *testing.T) {
	ids := make([]uuid.UUID, 6)
	endpoints := make([]domain.Endpoint, 6)
	planEntries := make([]domain.PlanEndpoint, 6)
	caller := newFakeCaller()
	for i := range ids {
		ids[i] = uuid.New()
		url := "http://ep" + uuid.New().String()
		endpoints[i] = endpoint(ids[i], url)
		planEntries[i] = domain.PlanEndpoint{EndpointID: ids[i], Priority: i}
		caller.script(url, scriptedCall{resp: CallResponse{StatusCode: 200}, delay: 5 * time.Millisecond})
	}

	jc := jobContext(endpoints...)
	limit := 3
	plan := domain.ExecutionPlan{ExecutionStrategy: domain.StrategyParallel, Endpoints: planEntries, ConcurrencyLimit: &limit}

	ex := newTestExecutor(caller, nil, retrypolicy.New(time.Millisecond, time.Millisecond))
	start := time.Now()
	results, err := ex.ExecuteEndpoints(context.Background(), jc, plan)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Success {
			t.Fatalf("expected all successes, got %+v", r)
		}
	}
	// bounded at 3-wide concurrency: 6 calls of 5ms each takes 2 waves, well
	// under running all 6 sequentially (30ms) but not instant.
	if elapsed >= 30*time.Millisecond {
		t.Fatalf("expected parallel execution to be faster than sequential, took %s", elapsed)
	}
}

func TestMixedRunsDependencyWaves(t *testing.T) {
	idA, idB, idC := uuid.New(), uuid.New(), uuid.New()
	var order []string
	var mu sync.Mutex
	caller := &orderTrackingCaller{fakeCaller: newFakeCaller(), order: &order, mu: &mu}
	caller.script("http://a", scriptedCall{resp: CallResponse{StatusCode: 200}})
	caller.script("http://b", scriptedCall{resp: CallResponse{StatusCode: 200}})
	caller.script("http://c", scriptedCall{resp: CallResponse{StatusCode: 200}})

	jc := jobContext(endpoint(idA, "http://a"), endpoint(idB, "http://b"), endpoint(idC, "http://c"))
	plan := domain.ExecutionPlan{
		ExecutionStrategy: domain.StrategyMixed,
		Endpoints: []domain.PlanEndpoint{
			{EndpointID: idA},
			{EndpointID: idB, DependsOn: []uuid.UUID{idA}},
			{EndpointID: idC, DependsOn: []uuid.UUID{idB}},
		},
	}

	ex := newTestExecutor(caller, nil, retrypolicy.New(time.Millisecond, time.Millisecond))
	results, err := ex.ExecuteEndpoints(context.Background(), jc, plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "http://a" || order[1] != "http://b" || order[2] != "http://c" {
		t.Fatalf("expected strict a->b->c wave order, got %v", order)
	}
}

func TestMixedDetectsCircularDependency(t *testing.T) {
	idA, idB := uuid.New(), uuid.New()
	caller := newFakeCaller()
	jc := jobContext(endpoint(idA, "http://a"), endpoint(idB, "http://b"))
	plan := domain.ExecutionPlan{
		ExecutionStrategy: domain.StrategyMixed,
		Endpoints: []domain.PlanEndpoint{
			{EndpointID: idA, DependsOn: []uuid.UUID{idB}},
			{EndpointID: idB, DependsOn: []uuid.UUID{idA}},
		},
	}

	ex := newTestExecutor(caller, nil, retrypolicy.New(time.Millisecond, time.Millisecond))
	_, err := ex.ExecuteEndpoints(context.Background(), jc, plan)
	var circular *CircularDependency
	if err == nil {
		t.Fatalf("expected a circular dependency error")
	}
	if ce, ok := err.(*CircularDependency); !ok {
		t.Fatalf("expected *CircularDependency, got %T", err)
	} else {
		circular = ce
	}
	if len(circular.PendingIDs) != 2 {
		t.Fatalf("expected both endpoints stuck pending, got %v", circular.PendingIDs)
	}
}

func TestExecuteSingleRetriesTransientFailureThenSucceeds(t *testing.T) {
	id := uuid.New()
	caller := newFakeCaller()
	caller.script("http://flaky",
		scriptedCall{resp: CallResponse{StatusCode: 503}},
		scriptedCall{resp: CallResponse{StatusCode: 200}},
	)
	jc := jobContext(endpoint(id, "http://flaky"))
	plan := domain.ExecutionPlan{
		ExecutionStrategy: domain.StrategySequential,
		Endpoints:         []domain.PlanEndpoint{{EndpointID: id}},
	}

	ex := newTestExecutor(caller, nil, retrypolicy.New(time.Millisecond, time.Millisecond))
	results, err := ex.ExecuteEndpoints(context.Background(), jc, plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || !results[0].Success || results[0].Attempts != 2 {
		t.Fatalf("expected a second-attempt success, got %+v", results)
	}
}

func TestExecuteSingleSkipsCallWhenCircuitOpen(t *testing.T) {
	id := uuid.New()
	caller := newFakeCaller()
	caller.script("http://down",
		scriptedCall{resp: CallResponse{StatusCode: 500}},
	)
	jc := jobContext(endpoint(id, "http://down"))
	plan := domain.ExecutionPlan{
		ExecutionStrategy: domain.StrategySequential,
		Endpoints:         []domain.PlanEndpoint{{EndpointID: id}},
	}

	breakers := circuit.NewManager(circuit.Config{FailureThreshold: 1, CooldownMs: time.Hour}, nil)
	ex := newTestExecutor(caller, breakers, retrypolicy.New(time.Millisecond, time.Millisecond))

	// first cycle trips the breaker after one failing attempt-set.
	if _, err := ex.ExecuteEndpoints(context.Background(), jc, plan); err != nil {
		t.Fatalf("unexpected error on first cycle: %v", err)
	}

	before := len(caller.callOrder)
	results, err := ex.ExecuteEndpoints(context.Background(), jc, plan)
	if err != nil {
		t.Fatalf("unexpected error on second cycle: %v", err)
	}
	if len(caller.callOrder) != before {
		t.Fatalf("expected circuit to skip the call entirely, got %d new calls", len(caller.callOrder)-before)
	}
	if results[0].Success || results[0].Error != "circuit_open" {
		t.Fatalf("expected a circuit_open failure, got %+v", results[0])
	}
}

func TestExecuteSingleMarksAbortedOnCancellation(t *testing.T) {
	id := uuid.New()
	caller := newFakeCaller()
	caller.script("http://slow", scriptedCall{resp: CallResponse{StatusCode: 200}, delay: 200 * time.Millisecond})
	jc := jobContext(endpoint(id, "http://slow"))
	plan := domain.ExecutionPlan{
		ExecutionStrategy: domain.StrategySequential,
		Endpoints:         []domain.PlanEndpoint{{EndpointID: id}},
	}

	ex := newTestExecutor(caller, nil, retrypolicy.New(time.Millisecond, time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	results, err := ex.ExecuteEndpoints(ctx, jc, plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Success || !results[0].Aborted {
		t.Fatalf("expected an aborted result, got %+v", results)
	}
}

func TestHeaderPrecedenceJobEndpointPlan(t *testing.T) {
	id := uuid.New()
	caller := newFakeCaller()
	caller.script("http://h", scriptedCall{resp: CallResponse{StatusCode: 200}})
	job := domain.Job{ID: uuid.New(), DefaultHeaders: mustJSON(map[string]string{"X-Source": "job", "X-Job-Only": "1"})}
	ep := domain.Endpoint{ID: id, Method: "GET", URL: "http://h", DefaultHeaders: mustJSON(map[string]string{"X-Source": "endpoint", "X-Endpoint-Only": "1"})}
	jc := domain.JobContext{Job: job, Endpoints: []domain.Endpoint{ep}}
	plan := domain.ExecutionPlan{
		ExecutionStrategy: domain.StrategySequential,
		Endpoints: []domain.PlanEndpoint{
			{EndpointID: id, Headers: map[string]string{"X-Source": "plan"}},
		},
	}

	var captured map[string]string
	tracking := &headerCapturingCaller{fakeCaller: caller, captured: &captured}
	ex := newTestExecutor(tracking, nil, retrypolicy.New(time.Millisecond, time.Millisecond))
	if _, err := ex.ExecuteEndpoints(context.Background(), jc, plan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured["X-Source"] != "plan" || captured["X-Job-Only"] != "1" || captured["X-Endpoint-Only"] != "1" {
		t.Fatalf("expected plan to win on conflict and job/endpoint-only headers preserved, got %+v", captured)
	}
}

// orderTrackingCaller wraps fakeCaller to record call order under a mutex
// owned by the test, since fakeCaller's own ordering list is unexported.
type orderTrackingCaller struct {
	*fakeCaller
	order *[]string
	mu    *sync.Mutex
}

func (o *orderTrackingCaller) Call(ctx context.Context, req CallRequest) (CallResponse, error) {
	o.mu.Lock()
	*o.order = append(*o.order, req.URL)
	o.mu.Unlock()
	return o.fakeCaller.Call(ctx, req)
}

type headerCapturingCaller struct {
	*fakeCaller
	captured *map[string]string
}

func (h *headerCapturingCaller) Call(ctx context.Context, req CallRequest) (CallResponse, error) {
	*h.captured = req.Headers
	return h.fakeCaller.Call(ctx, req)
}

func mustJSON(m map[string]string) []byte {
	b, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return b
}
