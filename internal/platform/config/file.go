package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brightloop/schedulerd/internal/platform/logger"
)

// fileOverlay mirrors Config with every field optional, the way the
// teacher's internal/jobs/pipeline/learning_build/spec.go describes a
// pipeline as an optional YAML document layered over code defaults;
// generalized here from "describe a stage pipeline" to "override a subset
// of env-derived knobs" since this engine has no stage pipeline of its
// own. A nil field leaves Load's env-derived value untouched.
type fileOverlay struct {
	AIAgent *struct {
		Model                    *string  `yaml:"model"`
		Temperature              *float64 `yaml:"temperature"`
		MaxRetries               *int     `yaml:"max_retries"`
		ValidateSemantics        *bool    `yaml:"validate_semantics"`
		SemanticStrict           *bool    `yaml:"semantic_strict"`
		RepairMalformedResponses *bool    `yaml:"repair_malformed_responses"`
		MaxRepairAttempts        *int     `yaml:"max_repair_attempts"`
		PromptOptimization       *struct {
			Enabled                 *bool `yaml:"enabled"`
			MaxMessages             *int  `yaml:"max_messages"`
			MinRecentMessages       *int  `yaml:"min_recent_messages"`
			MaxEndpointUsageEntries *int  `yaml:"max_endpoint_usage_entries"`
		} `yaml:"prompt_optimization"`
	} `yaml:"ai_agent"`

	Execution *struct {
		MaxConcurrency             *int    `yaml:"max_concurrency"`
		DefaultConcurrencyLimit    *int    `yaml:"default_concurrency_limit"`
		DefaultTimeoutMs           *int64  `yaml:"default_timeout_ms"`
		MaxEndpointRetries         *int    `yaml:"max_endpoint_retries"`
		AllowCancellation          *bool   `yaml:"allow_cancellation"`
		ResponseContentLengthLimit *int    `yaml:"response_content_length_limit"`
		ExecutionPhaseTimeoutMs    *int64  `yaml:"execution_phase_timeout_ms"`
		Escalation                 *struct {
			WarnFailureRatio     *float64 `yaml:"warn_failure_ratio"`
			CriticalFailureRatio *float64 `yaml:"critical_failure_ratio"`
		} `yaml:"escalation"`
		CircuitBreaker *struct {
			Enabled                  *bool  `yaml:"enabled"`
			FailureThreshold         *int   `yaml:"failure_threshold"`
			WindowMs                 *int64 `yaml:"window_ms"`
			CooldownMs               *int64 `yaml:"cooldown_ms"`
			HalfOpenMaxCalls         *int   `yaml:"half_open_max_calls"`
			HalfOpenSuccessesToClose *int   `yaml:"half_open_successes_to_close"`
			HalfOpenFailuresToReopen *int   `yaml:"half_open_failures_to_reopen"`
		} `yaml:"circuit_breaker"`
	} `yaml:"execution"`

	Metrics *struct {
		Enabled         *bool    `yaml:"enabled"`
		SamplingRate    *float64 `yaml:"sampling_rate"`
		TrackTokenUsage *bool    `yaml:"track_token_usage"`
	} `yaml:"metrics"`

	Scheduler *struct {
		MaxBatchSize             *int   `yaml:"max_batch_size"`
		ProcessingIntervalMs     *int64 `yaml:"processing_interval_ms"`
		AutoUnlockStaleJobs      *bool  `yaml:"auto_unlock_stale_jobs"`
		StaleLockThresholdMs     *int64 `yaml:"stale_lock_threshold_ms"`
		JobProcessingConcurrency *int   `yaml:"job_processing_concurrency"`
	} `yaml:"scheduler"`
}

// LoadWithOverlay calls Load for the env-derived baseline, then, if
// CONFIG_FILE names a readable YAML file, overrides whichever fields it
// sets. A missing CONFIG_FILE is not an error — the overlay is optional by
// design, the same way the teacher's LEARNING_BUILD_PIPELINE_YAML falls
// back to an embedded default when unset.
func LoadWithOverlay(log *logger.Logger) (Config, error) {
	cfg := Load(log)

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	applyOverlay(&cfg, overlay)
	log.Info("applied config file overlay", "path", path)
	return cfg, nil
}

func applyOverlay(cfg *Config, o fileOverlay) {
	if a := o.AIAgent; a != nil {
		setStr(&cfg.AIAgent.Model, a.Model)
		setFloat(&cfg.AIAgent.Temperature, a.Temperature)
		setInt(&cfg.AIAgent.MaxRetries, a.MaxRetries)
		setBool(&cfg.AIAgent.ValidateSemantics, a.ValidateSemantics)
		setBool(&cfg.AIAgent.SemanticStrict, a.SemanticStrict)
		setBool(&cfg.AIAgent.RepairMalformedResponses, a.RepairMalformedResponses)
		setInt(&cfg.AIAgent.MaxRepairAttempts, a.MaxRepairAttempts)
		if p := a.PromptOptimization; p != nil {
			setBool(&cfg.AIAgent.PromptOptimization.Enabled, p.Enabled)
			setInt(&cfg.AIAgent.PromptOptimization.MaxMessages, p.MaxMessages)
			setInt(&cfg.AIAgent.PromptOptimization.MinRecentMessages, p.MinRecentMessages)
			setInt(&cfg.AIAgent.PromptOptimization.MaxEndpointUsageEntries, p.MaxEndpointUsageEntries)
		}
	}
	if e := o.Execution; e != nil {
		setInt(&cfg.Execution.MaxConcurrency, e.MaxConcurrency)
		setInt(&cfg.Execution.DefaultConcurrencyLimit, e.DefaultConcurrencyLimit)
		setDurationMs(&cfg.Execution.DefaultTimeoutMs, e.DefaultTimeoutMs)
		setInt(&cfg.Execution.MaxEndpointRetries, e.MaxEndpointRetries)
		setBool(&cfg.Execution.AllowCancellation, e.AllowCancellation)
		setInt(&cfg.Execution.ResponseContentLengthLimit, e.ResponseContentLengthLimit)
		setDurationMs(&cfg.Execution.ExecutionPhaseTimeoutMs, e.ExecutionPhaseTimeoutMs)
		if esc := e.Escalation; esc != nil {
			setFloat(&cfg.Execution.Escalation.WarnFailureRatio, esc.WarnFailureRatio)
			setFloat(&cfg.Execution.Escalation.CriticalFailureRatio, esc.CriticalFailureRatio)
		}
		if cb := e.CircuitBreaker; cb != nil {
			setBool(&cfg.Execution.CircuitBreaker.Enabled, cb.Enabled)
			setInt(&cfg.Execution.CircuitBreaker.FailureThreshold, cb.FailureThreshold)
			setDurationMs(&cfg.Execution.CircuitBreaker.WindowMs, cb.WindowMs)
			setDurationMs(&cfg.Execution.CircuitBreaker.CooldownMs, cb.CooldownMs)
			setInt(&cfg.Execution.CircuitBreaker.HalfOpenMaxCalls, cb.HalfOpenMaxCalls)
			setInt(&cfg.Execution.CircuitBreaker.HalfOpenSuccessesToClose, cb.HalfOpenSuccessesToClose)
			setInt(&cfg.Execution.CircuitBreaker.HalfOpenFailuresToReopen, cb.HalfOpenFailuresToReopen)
		}
	}
	if m := o.Metrics; m != nil {
		setBool(&cfg.Metrics.Enabled, m.Enabled)
		setFloat(&cfg.Metrics.SamplingRate, m.SamplingRate)
		setBool(&cfg.Metrics.TrackTokenUsage, m.TrackTokenUsage)
	}
	if s := o.Scheduler; s != nil {
		setInt(&cfg.Scheduler.MaxBatchSize, s.MaxBatchSize)
		setDurationMs(&cfg.Scheduler.ProcessingIntervalMs, s.ProcessingIntervalMs)
		setBool(&cfg.Scheduler.AutoUnlockStaleJobs, s.AutoUnlockStaleJobs)
		setDurationMs(&cfg.Scheduler.StaleLockThresholdMs, s.StaleLockThresholdMs)
		setInt(&cfg.Scheduler.JobProcessingConcurrency, s.JobProcessingConcurrency)
	}
}

func setStr(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDurationMs(dst *time.Duration, v *int64) {
	if v != nil {
		*dst = time.Duration(*v) * time.Millisecond
	}
}
