// Package storetest provides an in-memory Gateway for exercising
// internal/jobprocessor and internal/orchestrator without a database,
// built the way internal/data/repos/jobs/job_run_test.go builds its
// fixtures: plain structs guarded by a mutex, no mocking library.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightloop/schedulerd/internal/domain"
	"github.com/brightloop/schedulerd/internal/store"
)

// Fake is an in-memory store.Gateway. Construct it with New: the zero
// value's maps are nil, so its first write panics.
type Fake struct {
	mu sync.Mutex

	jobs      map[uuid.UUID]*domain.Job
	endpoints map[uuid.UUID][]domain.Endpoint
	usage     map[uuid.UUID][]domain.EndpointUsage
	messages  map[uuid.UUID][]domain.Message

	plans     map[uuid.UUID]domain.ExecutionPlan
	results   map[uuid.UUID][]domain.EndpointExecutionResult
	summaries map[uuid.UUID]domain.ExecutionSummary
	statuses  map[uuid.UUID]domain.ExecutionStatus
	errors    map[uuid.UUID][]domain.JobError
	schedules map[uuid.UUID]domain.ScheduleDecision

	// FailLockJob, when set, makes LockJob return this error instead of
	// acquiring, simulating ErrStoreUnavailable for a specific job.
	FailLockJob map[uuid.UUID]error
}

// New constructs an empty Fake.
func New() *Fake {
	return &Fake{
		jobs:      map[uuid.UUID]*domain.Job{},
		endpoints: map[uuid.UUID][]domain.Endpoint{},
		usage:     map[uuid.UUID][]domain.EndpointUsage{},
		messages:  map[uuid.UUID][]domain.Message{},
		plans:     map[uuid.UUID]domain.ExecutionPlan{},
		results:   map[uuid.UUID][]domain.EndpointExecutionResult{},
		summaries: map[uuid.UUID]domain.ExecutionSummary{},
		statuses:  map[uuid.UUID]domain.ExecutionStatus{},
		errors:    map[uuid.UUID][]domain.JobError{},
		schedules: map[uuid.UUID]domain.ScheduleDecision{},
	}
}

// SeedJob registers a job (and its endpoints) as existing in the fake
// store, the way testutil.SeedUser/SeedMaterialSet seed fixtures for the
// teacher's GORM-backed tests.
func (f *Fake) SeedJob(job domain.Job, endpoints []domain.Endpoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := job
	f.jobs[job.ID] = &j
	f.endpoints[job.ID] = endpoints
}

var _ store.Gateway = (*Fake)(nil)

func (f *Fake) FetchDueJobs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var ids []uuid.UUID
	for id, j := range f.jobs {
		if j.IsDue(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, k int) bool { return f.jobs[ids[i]].CreatedAt.Before(f.jobs[ids[k]].CreatedAt) })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *Fake) LockJob(ctx context.Context, jobID uuid.UUID, lockExpiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailLockJob[jobID]; ok {
		return false, err
	}
	j, ok := f.jobs[jobID]
	if !ok {
		return false, nil
	}
	now := time.Now()
	if j.Locked && (j.LockExpiresAt == nil || j.LockExpiresAt.After(now)) {
		return false, nil
	}
	j.Locked = true
	j.LockExpiresAt = &lockExpiresAt
	return true, nil
}

func (f *Fake) UnlockJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return true, nil
	}
	j.Locked = false
	j.LockExpiresAt = nil
	return true, nil
}

func (f *Fake) GetJobContext(ctx context.Context, jobID uuid.UUID) (domain.JobContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return domain.JobContext{}, store.ErrJobNotFound
	}
	return domain.JobContext{
		Job:            *j,
		Endpoints:      f.endpoints[jobID],
		RecentMessages: f.messages[jobID],
		EndpointUsage:  f.usage[jobID],
	}, nil
}

func (f *Fake) RecordExecutionPlan(ctx context.Context, jobID uuid.UUID, plan domain.ExecutionPlan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans[jobID] = plan
	f.statuses[jobID] = domain.ExecutionRunning
	return nil
}

func (f *Fake) RecordEndpointResults(ctx context.Context, jobID uuid.UUID, results []domain.EndpointExecutionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[jobID] = results
	for _, r := range results {
		f.usage[jobID] = append(f.usage[jobID], domain.EndpointUsage{
			EndpointID:      r.EndpointID,
			CalledAt:        r.Timestamp,
			StatusCode:      r.StatusCode,
			Success:         r.Success,
			ExecutionTimeMs: r.ExecutionTimeMs,
		})
	}
	return nil
}

func (f *Fake) RecordExecutionSummary(ctx context.Context, jobID uuid.UUID, summary domain.ExecutionSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries[jobID] = summary
	f.statuses[jobID] = domain.ExecutionCompleted
	return nil
}

func (f *Fake) UpdateJobSchedule(ctx context.Context, jobID uuid.UUID, decision domain.ScheduleDecision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules[jobID] = decision
	if j, ok := f.jobs[jobID]; ok {
		nextRunAt := decision.NextRunAt
		j.NextRunAt = &nextRunAt
	}
	return nil
}

func (f *Fake) RecordJobError(ctx context.Context, jobID uuid.UUID, message string, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[jobID] = append(f.errors[jobID], domain.JobError{
		ID:        uuid.New(),
		JobID:     jobID,
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	})
	return nil
}

func (f *Fake) UpdateExecutionStatus(ctx context.Context, jobID uuid.UUID, status domain.ExecutionStatus, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[jobID] = status
	return nil
}

func (f *Fake) UpdateJobTokenUsage(ctx context.Context, jobID uuid.UUID, delta domain.TokenUsage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil
	}
	j.TokenUsage = j.TokenUsage.Add(delta)
	return nil
}

func (f *Fake) GetEngineMetrics(ctx context.Context) (store.EngineMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var m store.EngineMetrics
	now := time.Now()
	for _, j := range f.jobs {
		if j.Status == domain.JobStatusActive {
			m.ActiveJobs++
		}
		if j.Locked && j.LockExpiresAt != nil && j.LockExpiresAt.After(now) {
			m.LockedJobs++
		}
		if j.IsDue(now) {
			m.DueJobs++
		}
	}
	return m, nil
}

// Snapshot accessors for assertions in tests.

func (f *Fake) Job(id uuid.UUID) (domain.Job, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return *j, true
}

func (f *Fake) Results(id uuid.UUID) []domain.EndpointExecutionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[id]
}

func (f *Fake) Summary(id uuid.UUID) (domain.ExecutionSummary, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.summaries[id]
	return s, ok
}

func (f *Fake) Errors(id uuid.UUID) []domain.JobError {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors[id]
}

func (f *Fake) Schedule(id uuid.UUID) (domain.ScheduleDecision, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	return s, ok
}
