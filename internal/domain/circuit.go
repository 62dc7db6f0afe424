package domain

import "time"

// CircuitStateName is one of the three Circuit Breaker states.
type CircuitStateName string

const (
	CircuitClosed   CircuitStateName = "closed"
	CircuitOpen     CircuitStateName = "open"
	CircuitHalfOpen CircuitStateName = "halfOpen"
)

// CircuitState is the shape of one endpoint id's circuit state. The
// Circuit Breaker (internal/circuit) neither builds nor returns it: the
// live state is held by gobreaker, and Breaker.State reports only the
// CircuitStateName.
type CircuitState struct {
	State               CircuitStateName
	ConsecutiveFailures int
	WindowStart         time.Time
	OpenedAt            *time.Time
	HalfOpenInFlight     int
	HalfOpenSuccesses   int
	HalfOpenFailures    int
}
