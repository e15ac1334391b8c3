package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/foyerlabs/foyer/internal/resilience"
)

var errDownstream = errors.New("downstream unavailable")

// trip opens the breaker by feeding it n consecutive failures.
func trip(t *testing.T, cb *resilience.CircuitBreaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_ = cb.Execute(func() error { return errDownstream })
	}
	if got := cb.State(); got != resilience.StateOpen {
		t.Fatalf("State() = %v after %d failures, want open", got, n)
	}
}

func TestBreakerClosedForwardsCalls(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "llm"})

	called := false
	if err := cb.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
	if got := cb.State(); got != resilience.StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "llm",
		MaxFailures:  3,
		ResetTimeout: time.Hour,
	})
	trip(t, cb, 3)

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("Execute = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn was called while the breaker was open")
	}
}

func TestBreakerDefaultMaxFailuresIsFive(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "llm",
		ResetTimeout: time.Hour,
	})

	for i := 0; i < 4; i++ {
		_ = cb.Execute(func() error { return errDownstream })
	}
	if got := cb.State(); got != resilience.StateClosed {
		t.Fatalf("State() = %v after 4 failures, want still closed", got)
	}
	_ = cb.Execute(func() error { return errDownstream })
	if got := cb.State(); got != resilience.StateOpen {
		t.Errorf("State() = %v after 5 failures, want open", got)
	}
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:        "llm",
		MaxFailures: 3,
	})

	_ = cb.Execute(func() error { return errDownstream })
	_ = cb.Execute(func() error { return errDownstream })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errDownstream })
	_ = cb.Execute(func() error { return errDownstream })

	if got := cb.State(); got != resilience.StateClosed {
		t.Errorf("State() = %v, want closed (the success should have reset the streak)", got)
	}
}

func TestBreakerHalfOpenAfterResetTimeout(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "llm",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})
	trip(t, cb, 2)

	time.Sleep(15 * time.Millisecond)

	if got := cb.State(); got != resilience.StateHalfOpen {
		t.Errorf("State() = %v after the reset timeout, want half-open", got)
	}
}

func TestBreakerClosesAfterSuccessfulProbes(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "llm",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})
	trip(t, cb, 2)

	time.Sleep(15 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if got := cb.State(); got != resilience.StateClosed {
		t.Errorf("State() = %v, want closed after successful probes", got)
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "llm",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  3,
	})
	trip(t, cb, 2)
	time.Sleep(15 * time.Millisecond)

	if err := cb.Execute(func() error { return errDownstream }); !errors.Is(err, errDownstream) {
		t.Fatalf("failed probe returned %v, want the downstream error", err)
	}
	// The failed probe restarts the full open window, so the breaker reports
	// open again rather than half-open.
	if got := cb.State(); got != resilience.StateOpen {
		t.Errorf("State() = %v after failed probe, want open", got)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Execute = %v right after failed probe, want ErrCircuitOpen", err)
	}
}

func TestBreakerReset(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "llm",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})
	trip(t, cb, 2)

	cb.Reset()
	if got := cb.State(); got != resilience.StateClosed {
		t.Fatalf("State() = %v after Reset, want closed", got)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute after Reset: %v", err)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state resilience.State
		want  string
	}{
		{resilience.StateClosed, "closed"},
		{resilience.StateOpen, "open"},
		{resilience.StateHalfOpen, "half-open"},
		{resilience.State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestDoReturnsResult(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "llm"})

	got, err := resilience.Do(cb, func() (string, error) { return "bonjour", nil })
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "bonjour" {
		t.Errorf("Do = %q, want %q", got, "bonjour")
	}
}

func TestDoZeroesResultOnError(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "llm"})

	got, err := resilience.Do(cb, func() (string, error) { return "partial", errDownstream })
	if !errors.Is(err, errDownstream) {
		t.Fatalf("Do error = %v, want errDownstream", err)
	}
	if got != "" {
		t.Errorf("Do = %q, want the zero value on error", got)
	}
}

func TestDoRespectsOpenBreaker(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "llm",
		MaxFailures:  1,
		ResetTimeout: time.Hour,
	})
	trip(t, cb, 1)

	called := false
	_, err := resilience.Do(cb, func() (int, error) { called = true; return 42, nil })
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("Do error = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn was called while the breaker was open")
	}
}
