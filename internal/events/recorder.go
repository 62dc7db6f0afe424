package events

import "sync"

// Recorder is an in-memory Hooks sink for tests: every event is appended to
// its slice under a mutex, the way internal/data/repos/jobs/job_run_test.go
// favors plain recording structs over a mocking library.
type Recorder struct {
	mu sync.Mutex

	ExecutionProgress   []ExecutionProgress
	EndpointProgress    []EndpointProgress
	RetryAttempt        []RetryAttempt
	RetryExhausted      []RetryExhausted
	CircuitStateChange  []CircuitStateChange
	ReasonerMalformed   []ReasonerMalformed
}

var _ Hooks = (*Recorder)(nil)

func (r *Recorder) OnExecutionProgress(e ExecutionProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ExecutionProgress = append(r.ExecutionProgress, e)
}

func (r *Recorder) OnEndpointProgress(e EndpointProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EndpointProgress = append(r.EndpointProgress, e)
}

func (r *Recorder) OnRetryAttempt(e RetryAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RetryAttempt = append(r.RetryAttempt, e)
}

func (r *Recorder) OnRetryExhausted(e RetryExhausted) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RetryExhausted = append(r.RetryExhausted, e)
}

func (r *Recorder) OnCircuitStateChange(e CircuitStateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CircuitStateChange = append(r.CircuitStateChange, e)
}

func (r *Recorder) OnReasonerMalformed(e ReasonerMalformed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ReasonerMalformed = append(r.ReasonerMalformed, e)
}
