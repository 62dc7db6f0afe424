package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/brightloop/schedulerd/internal/domain"
	"github.com/brightloop/schedulerd/internal/platform/logger"
)

// gormGateway is the Postgres-backed Gateway, grounded on
// internal/data/repos/jobs/job_run.go's ClaimNextRunnable: an atomic
// SELECT ... FOR UPDATE SKIP LOCKED followed by a conditional UPDATE
// inside the same transaction.
type gormGateway struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewGormGateway constructs a Gateway backed by db. log may be nil in
// tests; a nil logger is treated as silent.
func NewGormGateway(db *gorm.DB, log *logger.Logger) Gateway {
	if log != nil {
		log = log.With("component", "store.Gateway")
	}
	return &gormGateway{db: db, log: log}
}

func (g *gormGateway) FetchDueJobs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now()
	var jobs []domain.Job
	err := g.db.WithContext(ctx).
		Where("status = ? AND (locked = ? OR lock_expires_at < ?) AND (next_run_at IS NULL OR next_run_at <= ?)",
			domain.JobStatusActive, false, now, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: fetch due jobs: %v", ErrStoreUnavailable, err)
	}
	ids := make([]uuid.UUID, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids, nil
}

func (g *gormGateway) LockJob(ctx context.Context, jobID uuid.UUID, lockExpiresAt time.Time) (bool, error) {
	now := time.Now()
	var acquired bool
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.Job
		findErr := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("id = ? AND (locked = ? OR lock_expires_at < ?)", jobID, false, now).
			First(&job).Error
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if findErr != nil {
			return findErr
		}
		res := tx.Model(&domain.Job{}).
			Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"locked":          true,
				"lock_expires_at": lockExpiresAt,
				"updated_at":      now,
			})
		if res.Error != nil {
			return res.Error
		}
		acquired = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: lock job: %v", ErrStoreUnavailable, err)
	}
	return acquired, nil
}

func (g *gormGateway) UnlockJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	res := g.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"locked":          false,
			"lock_expires_at": nil,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("%w: unlock job: %v", ErrStoreUnavailable, res.Error)
	}
	return true, nil
}

func (g *gormGateway) GetJobContext(ctx context.Context, jobID uuid.UUID) (domain.JobContext, error) {
	var job domain.Job
	if err := g.db.WithContext(ctx).Where("id = ?", jobID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.JobContext{}, ErrJobNotFound
		}
		return domain.JobContext{}, fmt.Errorf("%w: get job context: %v", ErrStoreUnavailable, err)
	}
	var endpoints []domain.Endpoint
	if err := g.db.WithContext(ctx).Where("job_id = ?", jobID).Find(&endpoints).Error; err != nil {
		return domain.JobContext{}, fmt.Errorf("%w: load endpoints: %v", ErrStoreUnavailable, err)
	}
	usage, err := g.recentEndpointUsage(ctx, jobID, 50)
	if err != nil {
		return domain.JobContext{}, err
	}
	return domain.JobContext{
		Job:            job,
		Endpoints:      endpoints,
		EndpointUsage:  usage,
		RecentMessages: nil,
	}, nil
}

// recentEndpointUsage derives usage entries from the most recent persisted
// JobExecution rows rather than a dedicated table: EndpointUsage is
// append-only observational data, and every field it needs already lives
// on EndpointExecutionResult, so deriving it keeps one write path instead
// of two.
func (g *gormGateway) recentEndpointUsage(ctx context.Context, jobID uuid.UUID, limit int) ([]domain.EndpointUsage, error) {
	var executions []domain.JobExecution
	err := g.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at DESC").
		Limit(limit).
		Find(&executions).Error
	if err != nil {
		return nil, fmt.Errorf("%w: load endpoint usage: %v", ErrStoreUnavailable, err)
	}
	// Emit oldest first, so the newest entries sit at the tail, where the
	// reasoner's capEndpointUsage keeps them.
	var out []domain.EndpointUsage
	for i := len(executions) - 1; i >= 0; i-- {
		exec := executions[i]
		if len(exec.Results) == 0 {
			continue
		}
		var results []domain.EndpointExecutionResult
		if err := json.Unmarshal(exec.Results, &results); err != nil {
			continue
		}
		for _, r := range results {
			out = append(out, domain.EndpointUsage{
				EndpointID:      r.EndpointID,
				CalledAt:        r.Timestamp,
				StatusCode:      r.StatusCode,
				Success:         r.Success,
				ExecutionTimeMs: r.ExecutionTimeMs,
			})
		}
	}
	return out, nil
}

func (g *gormGateway) RecordExecutionPlan(ctx context.Context, jobID uuid.UUID, plan domain.ExecutionPlan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	exec := domain.JobExecution{
		ID:         uuid.New(),
		JobID:      jobID,
		Plan:       raw,
		Confidence: plan.Confidence,
		Reasoning:  plan.Reasoning,
		Strategy:   string(plan.ExecutionStrategy),
		Status:     domain.ExecutionRunning,
	}
	if err := g.db.WithContext(ctx).Create(&exec).Error; err != nil {
		return fmt.Errorf("%w: record execution plan: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (g *gormGateway) RecordEndpointResults(ctx context.Context, jobID uuid.UUID, results []domain.EndpointExecutionResult) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	res := g.db.WithContext(ctx).Model(&domain.JobExecution{}).
		Where("job_id = ?", jobID).
		Order("created_at DESC").
		Limit(1).
		Updates(map[string]interface{}{"results": raw, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("%w: record endpoint results: %v", ErrStoreUnavailable, res.Error)
	}
	return nil
}

func (g *gormGateway) RecordExecutionSummary(ctx context.Context, jobID uuid.UUID, summary domain.ExecutionSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	res := g.db.WithContext(ctx).Model(&domain.JobExecution{}).
		Where("job_id = ?", jobID).
		Order("created_at DESC").
		Limit(1).
		Updates(map[string]interface{}{
			"summary":    raw,
			"status":     domain.ExecutionCompleted,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("%w: record execution summary: %v", ErrStoreUnavailable, res.Error)
	}
	return nil
}

func (g *gormGateway) UpdateJobSchedule(ctx context.Context, jobID uuid.UUID, decision domain.ScheduleDecision) error {
	res := g.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"next_run_at": decision.NextRunAt,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("%w: update job schedule: %v", ErrStoreUnavailable, res.Error)
	}
	return nil
}

func (g *gormGateway) RecordJobError(ctx context.Context, jobID uuid.UUID, message string, code string) error {
	jobErr := domain.JobError{
		ID:        uuid.New(),
		JobID:     jobID,
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
	if err := g.db.WithContext(ctx).Create(&jobErr).Error; err != nil {
		return fmt.Errorf("%w: record job error: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (g *gormGateway) UpdateExecutionStatus(ctx context.Context, jobID uuid.UUID, status domain.ExecutionStatus, errorMessage string) error {
	updates := map[string]interface{}{"status": status, "updated_at": time.Now()}
	res := g.db.WithContext(ctx).Model(&domain.JobExecution{}).
		Where("job_id = ?", jobID).
		Order("created_at DESC").
		Limit(1).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("%w: update execution status: %v", ErrStoreUnavailable, res.Error)
	}
	return nil
}

func (g *gormGateway) UpdateJobTokenUsage(ctx context.Context, jobID uuid.UUID, delta TokenUsageDelta) error {
	res := g.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"input_tokens":        gorm.Expr("input_tokens + ?", delta.InputTokens),
			"output_tokens":       gorm.Expr("output_tokens + ?", delta.OutputTokens),
			"reasoning_tokens":    gorm.Expr("reasoning_tokens + ?", delta.ReasoningTokens),
			"cached_input_tokens": gorm.Expr("cached_input_tokens + ?", delta.CachedInputTokens),
			"total_tokens":        gorm.Expr("total_tokens + ?", delta.TotalTokens),
			"updated_at":          time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("%w: update job token usage: %v", ErrStoreUnavailable, res.Error)
	}
	return nil
}

func (g *gormGateway) GetEngineMetrics(ctx context.Context) (EngineMetrics, error) {
	var m EngineMetrics
	now := time.Now()
	if err := g.db.WithContext(ctx).Model(&domain.Job{}).Where("status = ?", domain.JobStatusActive).Count(&m.ActiveJobs).Error; err != nil {
		return EngineMetrics{}, fmt.Errorf("%w: engine metrics: %v", ErrStoreUnavailable, err)
	}
	if err := g.db.WithContext(ctx).Model(&domain.Job{}).
		Where("locked = ? AND lock_expires_at >= ?", true, now).
		Count(&m.LockedJobs).Error; err != nil {
		return EngineMetrics{}, fmt.Errorf("%w: engine metrics: %v", ErrStoreUnavailable, err)
	}
	if err := g.db.WithContext(ctx).Model(&domain.Job{}).
		Where("status = ? AND (locked = ? OR lock_expires_at < ?) AND (next_run_at IS NULL OR next_run_at <= ?)",
			domain.JobStatusActive, false, now, now).
		Count(&m.DueJobs).Error; err != nil {
		return EngineMetrics{}, fmt.Errorf("%w: engine metrics: %v", ErrStoreUnavailable, err)
	}
	return m, nil
}
