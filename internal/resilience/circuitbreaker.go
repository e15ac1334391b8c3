// Package resilience provides the circuit breaker that guards out-of-process
// calls on the request path.
//
// The central type is [CircuitBreaker], a classic three-state breaker
// (closed → open → half-open) that protects callers from cascading failures.
// The chat runtime, the external fact-check vendor, and the gateway's sidecar
// clients each wrap their calls in one. [Do] runs a result-returning call
// through a breaker.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call and counts consecutive failures.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen] until the reset
	// timeout has elapsed.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through after the
	// reset timeout; their outcome decides between closed and open.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in log messages, typically the downstream it
	// guards ("llm", "voice", "external-fact-check").
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing the
	// downstream again. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is how many probe calls the half-open state admits before
	// the breaker decides. Default: 3.
	HalfOpenMax int
}

func (cfg CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return cfg
}

// CircuitBreaker implements the three-state circuit breaker pattern.
// It is safe for concurrent use from multiple goroutines.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu         sync.Mutex
	state      State
	failStreak int
	openedAt   time.Time
	probes     int
	probesFail int
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with sensible defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg.withDefaults(), state: StateClosed}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn. In the half-open state a limited number
// of probe calls are permitted.
func (b *CircuitBreaker) Execute(fn func() error) error {
	probing, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.settle(probing, err)
	return err
}

// admit decides whether a call may proceed, applying the open → half-open
// transition if the reset timeout has elapsed. It reports whether the
// admitted call is a half-open probe.
func (b *CircuitBreaker) admit() (probing bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if time.Since(b.openedAt) < b.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.probes = 0
		b.probesFail = 0
		slog.Info("breaker probing downstream", "name", b.cfg.Name)
	}

	if b.state == StateHalfOpen {
		if b.probes >= b.cfg.HalfOpenMax {
			// No probe slots left; the in-flight probes decide the state.
			return false, ErrCircuitOpen
		}
		b.probes++
		return true, nil
	}
	return false, nil
}

// settle records the outcome of an admitted call.
func (b *CircuitBreaker) settle(probing bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if !probing {
			b.failStreak = 0
			return
		}
		if b.probes-b.probesFail >= b.cfg.HalfOpenMax {
			b.state = StateClosed
			b.failStreak = 0
			b.probes = 0
			b.probesFail = 0
			slog.Info("breaker closed", "name", b.cfg.Name)
		}
		return
	}

	if probing {
		// One failed probe is enough; back to open for a full timeout.
		b.probesFail++
		b.state = StateOpen
		b.openedAt = time.Now()
		b.failStreak = b.cfg.MaxFailures
		slog.Warn("breaker reopened after failed probe", "name", b.cfg.Name)
		return
	}

	b.failStreak++
	if b.failStreak >= b.cfg.MaxFailures {
		b.state = StateOpen
		b.openedAt = time.Now()
		slog.Warn("breaker opened", "name", b.cfg.Name, "failures", b.failStreak)
	}
}

// State returns the current [State] of the breaker. If the breaker is open and
// the reset timeout has elapsed, the returned state is [StateHalfOpen] (the
// actual transition happens on the next [Execute] call).
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [StateClosed], clearing all counters.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failStreak = 0
	b.probes = 0
	b.probesFail = 0
	slog.Info("breaker reset", "name", b.cfg.Name)
}

// Do runs a result-returning call through the breaker. A package-level
// function because Go methods cannot take type parameters.
func Do[R any](cb *CircuitBreaker, fn func() (R, error)) (R, error) {
	var result R
	err := cb.Execute(func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}
