package reasoner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brightloop/schedulerd/internal/domain"
)

// planSchema is the JSON schema the provider call enforces in strict
// structured-output mode for the plan phase, mirroring §6's plan schema.
func planSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"endpointsToCall": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"endpointId": map[string]any{"type": "string"},
						"parameters": map[string]any{"type": "object"},
						"headers":    map[string]any{"type": "object"},
						"priority":   map[string]any{"type": "integer"},
						"dependsOn":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"critical":   map[string]any{"type": "boolean"},
					},
					"required": []string{"endpointId", "priority", "critical"},
				},
			},
			"executionStrategy":   map[string]any{"type": "string", "enum": []string{"sequential", "parallel", "mixed"}},
			"concurrencyLimit":    map[string]any{"type": "integer"},
			"preliminaryNextRunAt": map[string]any{"type": "string"},
			"reasoning":           map[string]any{"type": "string"},
			"confidence":          map[string]any{"type": "number"},
		},
		"required": []string{"endpointsToCall", "executionStrategy", "reasoning", "confidence"},
	}
}

// scheduleSchema is the JSON schema for the schedule phase, per §6.
func scheduleSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"nextRunAt":  map[string]any{"type": "string"},
			"reasoning":  map[string]any{"type": "string"},
			"confidence": map[string]any{"type": "number"},
			"recommendedActions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":     map[string]any{"type": "string"},
						"details":  map[string]any{"type": "string"},
						"priority": map[string]any{"type": "string", "enum": []string{"low", "medium", "high"}},
					},
					"required": []string{"type", "priority"},
				},
			},
		},
		"required": []string{"nextRunAt", "reasoning", "confidence"},
	}
}

// planSystemPrompt is the base system prompt for the plan phase; repair
// re-invokes append a correction notice to this string.
func planSystemPrompt() string {
	return "You are the planning phase of an adaptive job scheduler. Given a job " +
		"definition, its available endpoints, recent message history, and recent " +
		"endpoint usage, decide which endpoints to call this cycle, in what order, " +
		"under what execution strategy, and with what confidence. Only reference " +
		"endpoint ids that are present in the supplied endpoint list. Respond with " +
		"strictly valid JSON matching the provided schema."
}

// scheduleSystemPrompt is the base system prompt for the schedule phase.
func scheduleSystemPrompt() string {
	return "You are the scheduling phase of an adaptive job scheduler. Given a job " +
		"definition and the results of this cycle's endpoint calls, decide the next " +
		"time this job should run. nextRunAt must be a future ISO-8601 timestamp. " +
		"Respond with strictly valid JSON matching the provided schema."
}

func planUserPrompt(jc domain.JobContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job definition: %s\n", jc.Job.Definition)
	fmt.Fprintf(&b, "Current time: %s\n", jc.ExecutionContext.CurrentTime.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "Environment: %s\n", jc.ExecutionContext.SystemEnvironment)
	b.WriteString("Endpoints:\n")
	for _, e := range jc.Endpoints {
		fmt.Fprintf(&b, "- id=%s method=%s url=%s timeout_ms=%d fire_and_forget=%v\n",
			e.ID, e.Method, e.URL, e.TimeoutMs, e.FireAndForget)
	}
	b.WriteString("Recent messages:\n")
	for _, m := range jc.RecentMessages {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), m.Role, m.Content)
	}
	b.WriteString("Recent endpoint usage:\n")
	for _, u := range jc.EndpointUsage {
		fmt.Fprintf(&b, "- endpoint=%s at=%s status=%d success=%v duration_ms=%d\n",
			u.EndpointID, u.CalledAt.Format("2006-01-02T15:04:05Z07:00"), u.StatusCode, u.Success, u.ExecutionTimeMs)
	}
	if jc.ExecutionContext.ResourceConstraints != nil {
		if raw, err := json.Marshal(jc.ExecutionContext.ResourceConstraints); err == nil {
			fmt.Fprintf(&b, "Resource constraints: %s\n", string(raw))
		}
	}
	return b.String()
}

func scheduleUserPrompt(jc domain.JobContext, results []domain.EndpointExecutionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job definition: %s\n", jc.Job.Definition)
	fmt.Fprintf(&b, "Current time: %s\n", jc.ExecutionContext.CurrentTime.Format("2006-01-02T15:04:05Z07:00"))
	b.WriteString("This cycle's endpoint results:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- endpoint=%s success=%v status=%d attempts=%d aborted=%v error=%q\n",
			r.EndpointID, r.Success, r.StatusCode, r.Attempts, r.Aborted, r.Error)
	}
	return b.String()
}
