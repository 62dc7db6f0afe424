package reasoner

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/brightloop/schedulerd/internal/domain"
)

var validate = validator.New()

// validatePlan runs go-playground/validator/v10's struct-tag pass over an
// ExecutionPlan, then the two DAG-shaped invariants tags cannot express:
// every dependsOn id must resolve within the same plan, and the resulting
// graph must be acyclic.
func validatePlan(plan domain.ExecutionPlan) error {
	if err := validate.Struct(plan); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	if !plan.DependsOnCloses() {
		return fmt.Errorf("semantic validation failed: structural_inconsistency: dependsOn references an endpoint not in the plan")
	}
	if !plan.IsDAG() {
		return fmt.Errorf("semantic validation failed: structural_inconsistency: plan contains a dependency cycle")
	}
	return nil
}

// validateSchedule runs the struct-tag pass over a ScheduleDecision, then
// rejects a nextRunAt that is not strictly after the current time as a
// semantic violation, so it takes the same repair/salvage path.
func validateSchedule(decision domain.ScheduleDecision) error {
	if err := validate.Struct(decision); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	if !decision.IsFuture(time.Now()) {
		return fmt.Errorf("semantic validation failed: nextRunAt violates the must-be-future rule")
	}
	return nil
}
