// Command schedulerd is the engine launcher, grounded on cmd/main.go's
// app.New/app.Start/defer app.Close/blocking-select shape: wire every
// component, start the Engine Lifecycle's periodic tick, then block until
// signaled instead of a gin router's own blocking Run().
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brightloop/schedulerd/internal/circuit"
	"github.com/brightloop/schedulerd/internal/events"
	"github.com/brightloop/schedulerd/internal/executor"
	"github.com/brightloop/schedulerd/internal/jobprocessor"
	"github.com/brightloop/schedulerd/internal/orchestrator"
	"github.com/brightloop/schedulerd/internal/platform/config"
	"github.com/brightloop/schedulerd/internal/platform/db"
	"github.com/brightloop/schedulerd/internal/platform/logger"
	"github.com/brightloop/schedulerd/internal/reasoner"
	"github.com/brightloop/schedulerd/internal/retrypolicy"
	"github.com/brightloop/schedulerd/internal/store"
)

func envTrue(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func main() {
	if err := run(); err != nil {
		fmt.Printf("schedulerd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	cfg, err := config.LoadWithOverlay(log)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gdb, err := db.Open(log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	gateway := store.NewGormGateway(gdb, log)

	// StatsHooks wraps the logging hooks so the Cycle Orchestrator can read
	// cumulative malformed/repair counters via events.StatsSource without
	// LoggingHooks (or any other Hooks implementation) needing to track them.
	var hooks events.Hooks = events.NewStatsHooks(events.NewLoggingHooks(log))

	provider, err := reasoner.NewOpenAIProvider(log, cfg.AIAgent.Model, cfg.AIAgent.Temperature, cfg.AIAgent.MaxRetries)
	if err != nil {
		return fmt.Errorf("init reasoner provider: %w", err)
	}
	reasonerGW := reasoner.New(log, provider, cfg.AIAgent, hooks)

	breakerCfg := circuit.Config{
		FailureThreshold:         uint32(cfg.Execution.CircuitBreaker.FailureThreshold),
		WindowMs:                 cfg.Execution.CircuitBreaker.WindowMs,
		CooldownMs:               cfg.Execution.CircuitBreaker.CooldownMs,
		HalfOpenMaxCalls:         uint32(cfg.Execution.CircuitBreaker.HalfOpenMaxCalls),
		HalfOpenSuccessesToClose: uint32(cfg.Execution.CircuitBreaker.HalfOpenSuccessesToClose),
		HalfOpenFailuresToReopen: uint32(cfg.Execution.CircuitBreaker.HalfOpenFailuresToReopen),
	}
	var breakers *circuit.Manager
	if cfg.Execution.CircuitBreaker.Enabled {
		breakers = circuit.NewManager(breakerCfg, func(c circuit.StateChange) {
			hooks.OnCircuitStateChange(events.CircuitStateChange{
				EndpointID: c.EndpointID, From: c.From, To: c.To, Reason: c.Reason,
			})
		})
	}

	caller := executor.NewHTTPCaller(cfg.Execution.DefaultTimeoutMs)
	retry := retrypolicy.New(0, 0)
	exec := executor.New(log, cfg.Execution, caller, breakers, retry, hooks)

	proc := jobprocessor.New(log, gateway, reasonerGW, exec, hooks, cfg)
	engine := orchestrator.New(log, gateway, proc, hooks, cfg)

	runEngine := envTrue("RUN_ENGINE", true)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runEngine {
		if err := engine.Start(ctx); err != nil {
			return fmt.Errorf("start engine: %w", err)
		}
		log.Info("engine started", "processing_interval_ms", cfg.Scheduler.ProcessingIntervalMs.Milliseconds())
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	if runEngine {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		engine.Stop(stopCtx)
	}
	return nil
}
