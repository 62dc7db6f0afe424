package retrypolicy

import (
	"testing"
	"time"
)

func TestEvaluateStopsOnNonTransient(t *testing.T) {
	p := New(0, 0)
	got := p.Evaluate(Input{Attempt: 1, MaxAttempts: 5, Transient: false})
	if got != DecisionStop {
		t.Fatalf("expected stop for non-transient, got %s", got)
	}
}

func TestEvaluateStopsWhenAttemptsExhausted(t *testing.T) {
	p := New(0, 0)
	got := p.Evaluate(Input{Attempt: 5, MaxAttempts: 5, Transient: true})
	if got != DecisionStop {
		t.Fatalf("expected stop at max attempts, got %s", got)
	}
}

func TestEvaluateRetriesWhenTransientAndAttemptsRemain(t *testing.T) {
	p := New(0, 0)
	got := p.Evaluate(Input{Attempt: 2, MaxAttempts: 5, Transient: true})
	if got != DecisionRetry {
		t.Fatalf("expected retry, got %s", got)
	}
}

func TestNextDelayGrowsAndCaps(t *testing.T) {
	p := New(100*time.Millisecond, 1*time.Second)
	d1 := p.NextDelay(1)
	d3 := p.NextDelay(3)
	if d1 < 100*time.Millisecond || d1 > 200*time.Millisecond {
		t.Fatalf("expected first delay in [base, 2base], got %v", d1)
	}
	if d3 <= d1 {
		t.Fatalf("expected delay to grow with attempt, got d1=%v d3=%v", d1, d3)
	}
	for attempt := 1; attempt <= 20; attempt++ {
		if d := p.NextDelay(attempt); d > p.MaxDelay {
			t.Fatalf("attempt %d: delay %v exceeded max %v", attempt, d, p.MaxDelay)
		}
	}
}
