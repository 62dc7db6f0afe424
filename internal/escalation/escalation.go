// Package escalation is the pure Escalation Evaluator (§4.7): no I/O, no
// library seam beyond a ratio threshold and an enum switch — same
// reasoning as internal/classify, stdlib-only by necessity.
package escalation

// Level is the aggregate-failure-ratio-derived severity band.
type Level string

const (
	LevelNone     Level = "none"
	LevelWarn     Level = "warn"
	LevelCritical Level = "critical"
)

// RecoveryAction is the recommended response to a Level.
type RecoveryAction string

const (
	ActionNone             RecoveryAction = "NONE"
	ActionBackoffOnly      RecoveryAction = "BACKOFF_ONLY"
	ActionDisableEndpoint  RecoveryAction = "DISABLE_ENDPOINT"
	ActionReduceConcurrency RecoveryAction = "REDUCE_CONCURRENCY"
)

// Config carries the two ratio thresholds from execution.escalation.*.
type Config struct {
	WarnFailureRatio     float64
	CriticalFailureRatio float64
}

// Input bundles everything compute needs for one job's post-cycle
// escalation decision.
type Input struct {
	Failures           int
	Attempted          int
	Config             Config
	PreviousLevel      Level
	FailedEndpointIDs  []string
	ExistingDisabled   []string
}

// Result is what compute returns.
type Result struct {
	Level              Level
	RecoveryAction      RecoveryAction
	DisabledEndpoints  []string
	LevelChanged       bool
}

// Compute is referentially transparent: same Input always yields the same
// Result. Ratio = failures/max(attempted,1).
func Compute(in Input) Result {
	attempted := in.Attempted
	if attempted < 1 {
		attempted = 1
	}
	ratio := float64(in.Failures) / float64(attempted)

	level := LevelNone
	switch {
	case ratio >= in.Config.CriticalFailureRatio:
		level = LevelCritical
	case ratio >= in.Config.WarnFailureRatio:
		level = LevelWarn
	}

	res := Result{Level: level}
	switch level {
	case LevelNone:
		res.RecoveryAction = ActionNone
	case LevelWarn:
		res.RecoveryAction = ActionBackoffOnly
	case LevelCritical:
		res.RecoveryAction = ActionDisableEndpoint
		res.DisabledEndpoints = union(in.ExistingDisabled, in.FailedEndpointIDs)
	}

	prev := in.PreviousLevel
	if prev == "" {
		prev = LevelNone
	}
	res.LevelChanged = (prev == LevelNone && level != LevelNone) || (prev != LevelNone && level != prev)
	return res
}

// union merges two id lists, deduplicating while preserving first-seen
// order (a's order, then b's new entries).
func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range a {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range b {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
