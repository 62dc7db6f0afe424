// Package config loads the engine's configuration from the environment,
// generalizing internal/app/config.go's GetEnv/GetEnvAsInt-backed
// Config/LoadConfig shape to every key the external-interfaces section
// names, plus duration/float/bool parsing that shape never needed.
package config

import (
	"time"

	"github.com/brightloop/schedulerd/internal/platform/logger"
)

// AIAgent configures the Reasoner Gateway's provider call.
type AIAgent struct {
	Model                    string
	Temperature              float64
	MaxRetries               int
	ValidateSemantics        bool
	SemanticStrict           bool
	RepairMalformedResponses bool
	MaxRepairAttempts        int
	PromptOptimization       PromptOptimization
}

// PromptOptimization configures the context-trimming pass described in
// §4.2 step 1.
type PromptOptimization struct {
	Enabled                bool
	MaxMessages            int
	MinRecentMessages      int
	MaxEndpointUsageEntries int
}

// Escalation configures the Escalation Evaluator's thresholds.
type Escalation struct {
	WarnFailureRatio     float64
	CriticalFailureRatio float64
}

// CircuitBreaker configures the per-endpoint breaker.
type CircuitBreaker struct {
	Enabled                  bool
	FailureThreshold         int
	WindowMs                 time.Duration
	CooldownMs               time.Duration
	HalfOpenMaxCalls         int
	HalfOpenSuccessesToClose int
	HalfOpenFailuresToReopen int
}

// Execution configures the Endpoint Executor.
type Execution struct {
	MaxConcurrency             int
	DefaultConcurrencyLimit    int
	DefaultTimeoutMs           time.Duration
	MaxEndpointRetries         int
	AllowCancellation          bool
	ResponseContentLengthLimit int
	ExecutionPhaseTimeoutMs    time.Duration
	Escalation                 Escalation
	CircuitBreaker             CircuitBreaker
}

// Metrics configures the event/metrics hook.
type Metrics struct {
	Enabled         bool
	SamplingRate    float64
	TrackTokenUsage bool
}

// Scheduler configures the Cycle Orchestrator and Engine Lifecycle.
type Scheduler struct {
	MaxBatchSize            int
	ProcessingIntervalMs    time.Duration
	AutoUnlockStaleJobs     bool
	StaleLockThresholdMs    time.Duration
	JobProcessingConcurrency int
}

// Config is the engine's full configuration surface.
type Config struct {
	AIAgent   AIAgent
	Execution Execution
	Metrics   Metrics
	Scheduler Scheduler
}

// Load reads every key from the environment, falling back to defaults
// chosen to keep a freshly started engine safe (conservative concurrency,
// semantic validation and repair on, circuit breaker on).
func Load(log *logger.Logger) Config {
	return Config{
		AIAgent: AIAgent{
			Model:                    getEnv("AI_AGENT_MODEL", "gpt-4o", log),
			Temperature:              getEnvAsFloat("AI_AGENT_TEMPERATURE", 0.2, log),
			MaxRetries:               getEnvAsInt("AI_AGENT_MAX_RETRIES", 3, log),
			ValidateSemantics:        getEnvAsBool("AI_AGENT_VALIDATE_SEMANTICS", true, log),
			SemanticStrict:           getEnvAsBool("AI_AGENT_SEMANTIC_STRICT", true, log),
			RepairMalformedResponses: getEnvAsBool("AI_AGENT_REPAIR_MALFORMED_RESPONSES", true, log),
			MaxRepairAttempts:        getEnvAsInt("AI_AGENT_MAX_REPAIR_ATTEMPTS", 1, log),
			PromptOptimization: PromptOptimization{
				Enabled:                 getEnvAsBool("PROMPT_OPTIMIZATION_ENABLED", true, log),
				MaxMessages:             getEnvAsInt("PROMPT_OPTIMIZATION_MAX_MESSAGES", 20, log),
				MinRecentMessages:       getEnvAsInt("PROMPT_OPTIMIZATION_MIN_RECENT_MESSAGES", 5, log),
				MaxEndpointUsageEntries: getEnvAsInt("PROMPT_OPTIMIZATION_MAX_ENDPOINT_USAGE_ENTRIES", 10, log),
			},
		},
		Execution: Execution{
			MaxConcurrency:             getEnvAsInt("EXECUTION_MAX_CONCURRENCY", 8, log),
			DefaultConcurrencyLimit:    getEnvAsInt("EXECUTION_DEFAULT_CONCURRENCY_LIMIT", 4, log),
			DefaultTimeoutMs:           getEnvAsDuration("EXECUTION_DEFAULT_TIMEOUT_MS", 10_000, log),
			MaxEndpointRetries:         getEnvAsInt("EXECUTION_MAX_ENDPOINT_RETRIES", 3, log),
			AllowCancellation:          getEnvAsBool("EXECUTION_ALLOW_CANCELLATION", true, log),
			ResponseContentLengthLimit: getEnvAsInt("EXECUTION_RESPONSE_CONTENT_LENGTH_LIMIT", 2000, log),
			ExecutionPhaseTimeoutMs:    getEnvAsDuration("EXECUTION_PHASE_TIMEOUT_MS", 60_000, log),
			Escalation: Escalation{
				WarnFailureRatio:     getEnvAsFloat("ESCALATION_WARN_FAILURE_RATIO", 0.3, log),
				CriticalFailureRatio: getEnvAsFloat("ESCALATION_CRITICAL_FAILURE_RATIO", 0.6, log),
			},
			CircuitBreaker: CircuitBreaker{
				Enabled:                  getEnvAsBool("CIRCUIT_BREAKER_ENABLED", true, log),
				FailureThreshold:         getEnvAsInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5, log),
				WindowMs:                 getEnvAsDuration("CIRCUIT_BREAKER_WINDOW_MS", 60_000, log),
				CooldownMs:               getEnvAsDuration("CIRCUIT_BREAKER_COOLDOWN_MS", 30_000, log),
				HalfOpenMaxCalls:         getEnvAsInt("CIRCUIT_BREAKER_HALF_OPEN_MAX_CALLS", 1, log),
				HalfOpenSuccessesToClose: getEnvAsInt("CIRCUIT_BREAKER_HALF_OPEN_SUCCESSES_TO_CLOSE", 2, log),
				HalfOpenFailuresToReopen: getEnvAsInt("CIRCUIT_BREAKER_HALF_OPEN_FAILURES_TO_REOPEN", 1, log),
			},
		},
		Metrics: Metrics{
			Enabled:         getEnvAsBool("METRICS_ENABLED", true, log),
			SamplingRate:    getEnvAsFloat("METRICS_SAMPLING_RATE", 1.0, log),
			TrackTokenUsage: getEnvAsBool("METRICS_TRACK_TOKEN_USAGE", true, log),
		},
		Scheduler: Scheduler{
			MaxBatchSize:             getEnvAsInt("SCHEDULER_MAX_BATCH_SIZE", 50, log),
			ProcessingIntervalMs:     getEnvAsDuration("SCHEDULER_PROCESSING_INTERVAL_MS", 15_000, log),
			AutoUnlockStaleJobs:      getEnvAsBool("SCHEDULER_AUTO_UNLOCK_STALE_JOBS", true, log),
			StaleLockThresholdMs:     getEnvAsDuration("SCHEDULER_STALE_LOCK_THRESHOLD_MS", 300_000, log),
			JobProcessingConcurrency: getEnvAsInt("SCHEDULER_JOB_PROCESSING_CONCURRENCY", 4, log),
		},
	}
}
