// Package circuit is the per-endpoint Circuit Breaker: closed/open/halfOpen
// state machine built on github.com/sony/gobreaker, layering the two
// independently-configurable half-open thresholds the domain model exposes
// (halfOpenSuccessesToClose, halfOpenFailuresToReopen) on top of gobreaker's
// own single MaxRequests/one-failure semantics.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/brightloop/schedulerd/internal/domain"
)

// ErrOpen is returned by Execute when the breaker short-circuits the call
// without issuing it.
var ErrOpen = errors.New("circuit_open")

// Config mirrors the external-interfaces Circuit Breaker configuration.
type Config struct {
	FailureThreshold         uint32
	WindowMs                 time.Duration
	CooldownMs               time.Duration
	HalfOpenMaxCalls         uint32
	HalfOpenSuccessesToClose uint32
	HalfOpenFailuresToReopen uint32
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.WindowMs == 0 {
		c.WindowMs = 60 * time.Second
	}
	if c.CooldownMs == 0 {
		c.CooldownMs = 30 * time.Second
	}
	if c.HalfOpenMaxCalls == 0 {
		c.HalfOpenMaxCalls = 1
	}
	if c.HalfOpenSuccessesToClose == 0 {
		c.HalfOpenSuccessesToClose = 1
	}
	if c.HalfOpenFailuresToReopen == 0 {
		c.HalfOpenFailuresToReopen = 1
	}
	return c
}

// StateChange is emitted whenever an endpoint's breaker transitions.
type StateChange struct {
	EndpointID string
	From       domain.CircuitStateName
	To         domain.CircuitStateName
	Reason     string
}

// OnStateChange is invoked by Breaker whenever its state transitions.
type OnStateChange func(StateChange)

// Breaker is a single endpoint's circuit, wrapping one gobreaker instance
// plus the extra half-open bookkeeping gobreaker doesn't model natively.
type Breaker struct {
	endpointID string
	cfg        Config
	cb         *gobreaker.CircuitBreaker
	onChange   OnStateChange

	mu                sync.Mutex
	halfOpenFailures  uint32
	halfOpenSuccesses uint32
	halfOpenInFlight  chan struct{}
}

// New constructs a Breaker for a single endpoint.
func New(endpointID string, cfg Config, onChange OnStateChange) *Breaker {
	cfg = cfg.withDefaults()
	b := &Breaker{
		endpointID:       endpointID,
		cfg:              cfg,
		onChange:         onChange,
		halfOpenInFlight: make(chan struct{}, cfg.HalfOpenMaxCalls),
	}

	settings := gobreaker.Settings{
		Name: endpointID,
		// gobreaker closes the breaker once ConsecutiveSuccesses reaches
		// MaxRequests, so the close threshold is HalfOpenSuccessesToClose,
		// not the concurrent-probe cap; HalfOpenMaxCalls only bounds
		// halfOpenInFlight below.
		MaxRequests: cfg.HalfOpenSuccessesToClose,
		Interval:    cfg.WindowMs,
		Timeout:     cfg.CooldownMs,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: b.isSuccessful,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.mu.Lock()
			b.halfOpenFailures = 0
			b.halfOpenSuccesses = 0
			b.mu.Unlock()
			if b.onChange != nil {
				b.onChange(StateChange{
					EndpointID: endpointID,
					From:       mapState(from),
					To:         mapState(to),
					Reason:     "gobreaker_transition",
				})
			}
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// isSuccessful layers halfOpenFailuresToReopen on top of gobreaker's
// built-in "any failure reopens" rule: failures below the configured
// threshold are masked as successes so gobreaker keeps the breaker
// half-open while this type's own counters accumulate toward the real
// threshold.
func (b *Breaker) isSuccessful(err error) bool {
	if err == nil {
		if b.cb != nil && b.cb.State() == gobreaker.StateHalfOpen {
			b.mu.Lock()
			b.halfOpenSuccesses++
			b.mu.Unlock()
		}
		return true
	}
	if b.cb != nil && b.cb.State() == gobreaker.StateHalfOpen {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.halfOpenFailures++
		if b.halfOpenFailures < b.cfg.HalfOpenFailuresToReopen {
			return true
		}
		return false
	}
	return false
}

// State reports the breaker's current gobreaker-backed state.
func (b *Breaker) State() domain.CircuitStateName {
	return mapState(b.cb.State())
}

// Execute gates fn through the breaker: short-circuits with ErrOpen while
// open, caps concurrent probes at HalfOpenMaxCalls while half-open, and
// otherwise runs fn and feeds its outcome back into the state machine.
func Execute[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if b.cb.State() == gobreaker.StateHalfOpen {
		select {
		case b.halfOpenInFlight <- struct{}{}:
			defer func() { <-b.halfOpenInFlight }()
		default:
			return zero, ErrOpen
		}
	}

	var result T
	out, err := b.cb.Execute(func() (interface{}, error) {
		r, callErr := fn(ctx)
		result = r
		return r, callErr
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, ErrOpen
		}
		return result, err
	}
	if v, ok := out.(T); ok {
		return v, nil
	}
	return result, nil
}

func mapState(s gobreaker.State) domain.CircuitStateName {
	switch s {
	case gobreaker.StateOpen:
		return domain.CircuitOpen
	case gobreaker.StateHalfOpen:
		return domain.CircuitHalfOpen
	default:
		return domain.CircuitClosed
	}
}
