// Package retrypolicy is the pure decision function the Endpoint Executor
// consults after every failed call: retry or stop, and how long to wait.
// Delay math is built on cenkalti/backoff/v5's exponential generator so the
// jitter and doubling come from a maintained implementation rather than a
// hand-rolled one.
package retrypolicy

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Decision is what Evaluate returns.
type Decision string

const (
	DecisionRetry Decision = "retry"
	DecisionStop  Decision = "stop"
)

// Input bundles everything a policy needs to decide whether to retry.
type Input struct {
	Attempt      int
	MaxAttempts  int
	Category     string
	Transient    bool
	StatusCode   int
	ErrorMessage string
}

// Policy is the interface the Endpoint Executor depends on; the engine
// never inlines the retry decision, so alternate policies can be swapped
// in without touching the executor.
type Policy interface {
	Evaluate(in Input) Decision
	NextDelay(attempt int) time.Duration
}

// Default is the standard policy: retry iff the failure is transient and
// attempts remain, with exponential-plus-jitter backoff.
type Default struct {
	// BaseDelay is the unit delay the exponential schedule scales from.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay regardless of attempt number.
	MaxDelay time.Duration
}

// New constructs a Default policy. A zero baseDelay defaults to 200ms; a
// zero maxDelay defaults to 30s.
func New(baseDelay, maxDelay time.Duration) *Default {
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &Default{BaseDelay: baseDelay, MaxDelay: maxDelay}
}

// Evaluate implements Policy: retry iff transient and attempts remain.
func (d *Default) Evaluate(in Input) Decision {
	if !in.Transient {
		return DecisionStop
	}
	if in.MaxAttempts > 0 && in.Attempt >= in.MaxAttempts {
		return DecisionStop
	}
	return DecisionRetry
}

// NextDelay computes base*2^(attempt-1) + uniform(0, base), capped at
// MaxDelay. attempt is 1-indexed (the attempt that just failed).
func (d *Default) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.BaseDelay
	exp.Multiplier = 2
	exp.MaxInterval = d.MaxDelay
	exp.RandomizationFactor = 0

	delay := d.BaseDelay
	for i := 0; i < attempt; i++ {
		next := exp.NextBackOff()
		if next == backoff.Stop {
			delay = d.MaxDelay
			break
		}
		delay = next
	}
	if delay > d.MaxDelay {
		delay = d.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d.BaseDelay) + 1))
	total := delay + jitter
	if total > d.MaxDelay {
		total = d.MaxDelay
	}
	return total
}
