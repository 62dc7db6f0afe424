// Package reasoner is the Reasoner Gateway: prompt optimization, a
// structured-output provider call, schema/semantic validation, and a
// one-shot repair loop, grounded on internal/services/openai_client.go's
// GenerateJSON/do/doOnce retry shape for the provider half and on the
// go-playground/validator/v10 dependency the rest of the pack already
// carries for the validation half.
package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brightloop/schedulerd/internal/classify"
	"github.com/brightloop/schedulerd/internal/domain"
	"github.com/brightloop/schedulerd/internal/events"
	"github.com/brightloop/schedulerd/internal/platform/config"
	"github.com/brightloop/schedulerd/internal/platform/logger"
)

// MalformedResponse is raised on terminal failure to produce a valid
// plan/schedule, even after repair (if attempted).
type MalformedResponse struct {
	Phase    events.ReasonerPhase
	Category classify.ReasonerCategory
	Attempts int
	Repaired bool
}

func (e *MalformedResponse) Error() string {
	return fmt.Sprintf("malformed reasoner response: phase=%s category=%s attempts=%d repaired=%v",
		e.Phase, e.Category, e.Attempts, e.Repaired)
}

// PlanResult bundles a plan with the token usage its provider call
// reported, so the Job Processor can forward it to updateJobTokenUsage.
type PlanResult struct {
	Plan  domain.ExecutionPlan
	Usage Usage
}

// ScheduleResult bundles a schedule decision with its token usage.
type ScheduleResult struct {
	Decision domain.ScheduleDecision
	Usage    Usage
}

// Gateway exposes plan(context) and schedule(context, results) per §4.2.
type Gateway interface {
	Plan(ctx context.Context, jc domain.JobContext) (PlanResult, error)
	Schedule(ctx context.Context, jc domain.JobContext, results []domain.EndpointExecutionResult) (ScheduleResult, error)
}

type gateway struct {
	log      *logger.Logger
	provider Provider
	cfg      config.AIAgent
	hooks    events.Hooks
}

// New constructs a Gateway.
func New(log *logger.Logger, provider Provider, cfg config.AIAgent, hooks events.Hooks) Gateway {
	if hooks == nil {
		hooks = events.Noop{}
	}
	return &gateway{log: log.With("component", "reasoner.Gateway"), provider: provider, cfg: cfg, hooks: hooks}
}

func (g *gateway) Plan(ctx context.Context, jc domain.JobContext) (PlanResult, error) {
	optimized := optimize(jc, g.cfg.PromptOptimization)
	system := planSystemPrompt()
	user := planUserPrompt(optimized)

	plan, usage, err := invokeWithRepair(ctx, g, events.PhasePlan, system, user, planSchema(), decodePlan, validatePlan)
	if err != nil {
		return PlanResult{Usage: usage}, err
	}
	return PlanResult{Plan: plan, Usage: usage}, nil
}

func (g *gateway) Schedule(ctx context.Context, jc domain.JobContext, results []domain.EndpointExecutionResult) (ScheduleResult, error) {
	optimized := optimize(jc, g.cfg.PromptOptimization)
	system := scheduleSystemPrompt()
	user := scheduleUserPrompt(optimized, results)

	decision, usage, err := invokeWithRepair(ctx, g, events.PhaseSchedule, system, user, scheduleSchema(), decodeSchedule, validateSchedule)
	if err != nil {
		if !g.cfg.SemanticStrict {
			if salvaged, ok := salvageSchedule(decision, jc); ok {
				return ScheduleResult{Decision: salvaged, Usage: usage}, nil
			}
		}
		return ScheduleResult{Usage: usage}, err
	}
	return ScheduleResult{Decision: decision, Usage: usage}, nil
}

// invokeWithRepair is the shared plan/schedule pipeline: invoke, decode,
// validate; on failure, optionally repair once with temperature 0 and an
// augmented system prompt; emit metric events for every outcome. Go methods
// cannot be generic, so this takes the gateway explicitly and is called as
// a free function from Plan/Schedule.
func invokeWithRepair[T any](
	ctx context.Context,
	g *gateway,
	phase events.ReasonerPhase,
	system, user string,
	schema map[string]any,
	decode func(map[string]any) (T, error),
	validateFn func(T) error,
) (T, Usage, error) {
	var zero T
	var totalUsage Usage

	schemaName := string(phase)
	raw, usage, callErr := g.provider.GenerateJSON(ctx, system, user, schemaName, schema)
	usage.Calls = 1
	totalUsage = addUsage(totalUsage, usage)

	value, validErr := decodeAndValidate(raw, callErr, decode, validateFn)
	if validErr == nil {
		return value, totalUsage, nil
	}

	category := classify.ReasonerResponse(validErr)
	repairable := g.cfg.RepairMalformedResponses && category.Repairable() && g.cfg.MaxRepairAttempts >= 1

	if !repairable {
		// No repair will be attempted: this detection is the terminal
		// malformed outcome itself, not a precursor to one, so it's the
		// only event fired on this path.
		g.hooks.OnReasonerMalformed(events.ReasonerMalformed{Kind: events.ReasonerKindMalformed, Phase: phase, Category: string(category), Repaired: false})
		return zero, totalUsage, &MalformedResponse{Phase: phase, Category: category, Attempts: 1, Repaired: false}
	}

	g.hooks.OnReasonerMalformed(events.ReasonerMalformed{Kind: events.ReasonerKindRepairAttempt, Phase: phase, Category: string(category), Repaired: false})
	repairedSystem := system + "\n\nThe previous response was malformed because: " + validErr.Error() +
		"; produce a corrected object strictly matching the schema."

	repairRaw, repairUsage, repairErr := g.provider.GenerateJSON(ctx, repairedSystem, user, schemaName, schema)
	repairUsage.Calls = 1
	totalUsage = addUsage(totalUsage, repairUsage)

	repairedValue, repairValidErr := decodeAndValidate(repairRaw, repairErr, decode, validateFn)
	if repairValidErr == nil {
		g.hooks.OnReasonerMalformed(events.ReasonerMalformed{Kind: events.ReasonerKindRepairSuccess, Phase: phase, Category: string(category), Repaired: true})
		return repairedValue, totalUsage, nil
	}

	repairCategory := classify.ReasonerResponse(repairValidErr)
	g.hooks.OnReasonerMalformed(events.ReasonerMalformed{Kind: events.ReasonerKindRepairFailure, Phase: phase, Category: string(repairCategory), Repaired: false})
	return zero, totalUsage, &MalformedResponse{Phase: phase, Category: repairCategory, Attempts: 2, Repaired: false}
}

func decodeAndValidate[T any](raw map[string]any, callErr error, decode func(map[string]any) (T, error), validateFn func(T) error) (T, error) {
	var zero T
	if callErr != nil {
		return zero, callErr
	}
	value, decodeErr := decode(raw)
	if decodeErr != nil {
		return zero, decodeErr
	}
	if err := validateFn(value); err != nil {
		return zero, err
	}
	return value, nil
}

func addUsage(a, b Usage) Usage {
	return Usage{
		InputTokens:       a.InputTokens + b.InputTokens,
		OutputTokens:      a.OutputTokens + b.OutputTokens,
		TotalTokens:       a.TotalTokens + b.TotalTokens,
		ReasoningTokens:   a.ReasoningTokens + b.ReasoningTokens,
		CachedInputTokens: a.CachedInputTokens + b.CachedInputTokens,
		Calls:             a.Calls + b.Calls,
	}
}

// salvageSchedule implements the semanticStrict=false salvage path: when
// the schedule call or its validation fails, fall back to a minimal
// decision built from partial, with a warning appended to reasoning,
// rather than failing the job outright. invokeWithRepair returns the zero
// decision on failure, so nothing from the reasoner's response is kept:
// the result is nextRunAt now+15 minutes, confidence 0, and the warning
// as the whole reasoning.
func salvageSchedule(partial domain.ScheduleDecision, jc domain.JobContext) (domain.ScheduleDecision, bool) {
	salvaged := partial
	if salvaged.NextRunAt.IsZero() || !salvaged.NextRunAt.After(time.Now()) {
		salvaged.NextRunAt = time.Now().Add(15 * time.Minute)
	}
	if salvaged.Confidence < 0 || salvaged.Confidence > 1 {
		salvaged.Confidence = 0
	}
	salvaged.Reasoning = salvaged.Reasoning + " [salvaged: original schedule response failed semantic validation]"
	return salvaged, true
}

func decodePlan(raw map[string]any) (domain.ExecutionPlan, error) {
	var plan domain.ExecutionPlan
	b, err := json.Marshal(raw)
	if err != nil {
		return plan, fmt.Errorf("schema_parse_error: %w", err)
	}
	if err := json.Unmarshal(b, &plan); err != nil {
		return plan, fmt.Errorf("schema_parse_error: %w", err)
	}
	return plan, nil
}

func decodeSchedule(raw map[string]any) (domain.ScheduleDecision, error) {
	var decision domain.ScheduleDecision
	b, err := json.Marshal(raw)
	if err != nil {
		return decision, fmt.Errorf("schema_parse_error: %w", err)
	}
	if err := json.Unmarshal(b, &decision); err != nil {
		return decision, fmt.Errorf("schema_parse_error: %w", err)
	}
	return decision, nil
}
