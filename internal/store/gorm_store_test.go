package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/brightloop/schedulerd/internal/domain"
)

func TestGormGateway(t *testing.T) {
	db := testDB(t)
	tx := testTx(t, db)
	ctx := context.Background()

	gw := NewGormGateway(tx, nil)

	now := time.Now().UTC()
	owner := uuid.New()
	due := domain.Job{
		ID:          uuid.New(),
		OwnerUserID: owner,
		Definition:  "poll a feed",
		Status:      domain.JobStatusActive,
		CreatedAt:   now.Add(-2 * time.Hour),
		UpdatedAt:   now.Add(-2 * time.Hour),
	}
	notDueYet := domain.Job{
		ID:          uuid.New(),
		OwnerUserID: owner,
		Definition:  "future job",
		Status:      domain.JobStatusActive,
		NextRunAt:   ptrTime(now.Add(1 * time.Hour)),
		CreatedAt:   now.Add(-1 * time.Hour),
		UpdatedAt:   now.Add(-1 * time.Hour),
	}
	paused := domain.Job{
		ID:          uuid.New(),
		OwnerUserID: owner,
		Definition:  "paused job",
		Status:      domain.JobStatusPaused,
		CreatedAt:   now.Add(-3 * time.Hour),
		UpdatedAt:   now.Add(-3 * time.Hour),
	}
	if err := tx.Create(&due).Error; err != nil {
		t.Fatalf("seed due: %v", err)
	}
	if err := tx.Create(&notDueYet).Error; err != nil {
		t.Fatalf("seed notDueYet: %v", err)
	}
	if err := tx.Create(&paused).Error; err != nil {
		t.Fatalf("seed paused: %v", err)
	}
	endpoint := domain.Endpoint{
		ID:     uuid.New(),
		JobID:  due.ID,
		Method: "GET",
		URL:    "https://svc.example/ok",
	}
	if err := tx.Create(&endpoint).Error; err != nil {
		t.Fatalf("seed endpoint: %v", err)
	}

	ids, err := gw.FetchDueJobs(ctx, 10)
	if err != nil {
		t.Fatalf("FetchDueJobs: %v", err)
	}
	if len(ids) != 1 || ids[0] != due.ID {
		t.Fatalf("FetchDueJobs: expected only %v, got %v", due.ID, ids)
	}

	ok, err := gw.LockJob(ctx, due.ID, now.Add(5*time.Minute))
	if err != nil || !ok {
		t.Fatalf("LockJob #1: ok=%v err=%v", ok, err)
	}
	ok, err = gw.LockJob(ctx, due.ID, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("LockJob #2: %v", err)
	}
	if ok {
		t.Fatalf("LockJob #2: expected false, job already locked")
	}

	ids, err = gw.FetchDueJobs(ctx, 10)
	if err != nil {
		t.Fatalf("FetchDueJobs after lock: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("FetchDueJobs after lock: expected none, got %v", ids)
	}

	unlocked, err := gw.UnlockJob(ctx, due.ID)
	if err != nil || !unlocked {
		t.Fatalf("UnlockJob: ok=%v err=%v", unlocked, err)
	}

	jc, err := gw.GetJobContext(ctx, due.ID)
	if err != nil {
		t.Fatalf("GetJobContext: %v", err)
	}
	if len(jc.Endpoints) != 1 || jc.Endpoints[0].ID != endpoint.ID {
		t.Fatalf("GetJobContext: expected endpoint %v, got %v", endpoint.ID, jc.Endpoints)
	}

	plan := domain.ExecutionPlan{
		Endpoints:         []domain.PlanEndpoint{{EndpointID: endpoint.ID, Priority: 1, Critical: true}},
		ExecutionStrategy: domain.StrategySequential,
		Confidence:        0.9,
	}
	if err := gw.RecordExecutionPlan(ctx, due.ID, plan); err != nil {
		t.Fatalf("RecordExecutionPlan: %v", err)
	}

	results := []domain.EndpointExecutionResult{{EndpointID: endpoint.ID, Success: true, StatusCode: 200, Attempts: 1, Timestamp: now}}
	if err := gw.RecordEndpointResults(ctx, due.ID, results); err != nil {
		t.Fatalf("RecordEndpointResults: %v", err)
	}

	summary := domain.ExecutionSummary{StartTime: now, EndTime: now, SuccessCount: 1}
	if err := gw.RecordExecutionSummary(ctx, due.ID, summary); err != nil {
		t.Fatalf("RecordExecutionSummary: %v", err)
	}

	decision := domain.ScheduleDecision{NextRunAt: now.Add(5 * time.Minute), Confidence: 0.8}
	if err := gw.UpdateJobSchedule(ctx, due.ID, decision); err != nil {
		t.Fatalf("UpdateJobSchedule: %v", err)
	}

	if err := gw.UpdateJobTokenUsage(ctx, due.ID, domain.TokenUsage{InputTokens: 10, TotalTokens: 10}); err != nil {
		t.Fatalf("UpdateJobTokenUsage: %v", err)
	}

	jc2, err := gw.GetJobContext(ctx, due.ID)
	if err != nil {
		t.Fatalf("GetJobContext after schedule: %v", err)
	}
	if jc2.Job.TokenUsage.TotalTokens != 10 {
		t.Fatalf("expected total_tokens=10, got %d", jc2.Job.TokenUsage.TotalTokens)
	}
	if len(jc2.EndpointUsage) != 1 {
		t.Fatalf("expected 1 derived endpoint usage entry, got %d", len(jc2.EndpointUsage))
	}

	if err := gw.RecordJobError(ctx, due.ID, "boom", "executor_failed"); err != nil {
		t.Fatalf("RecordJobError: %v", err)
	}

	if err := gw.UpdateExecutionStatus(ctx, due.ID, domain.ExecutionFailed, "boom"); err != nil {
		t.Fatalf("UpdateExecutionStatus: %v", err)
	}

	if _, err := gw.GetJobContext(ctx, uuid.New()); err != ErrJobNotFound {
		t.Fatalf("GetJobContext for unknown id: expected ErrJobNotFound, got %v", err)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
