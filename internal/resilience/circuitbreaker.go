// Package resilience provides circuit breaker and provider failover primitives.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open) that
// lets callers fail fast while a dependency such as the user backend is down.
// [FallbackGroup] composes several instances of one provider type with
// per-entry breakers so a failing primary STT or TTS backend is bypassed in
// favour of a healthy fallback.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the reset timeout has not elapsed yet.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
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
	// Name labels log lines and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls allowed while half-open and
	// the number of successes required to close again. Default: 3.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the breaker. Errors
	// that describe a valid answer from a healthy dependency (a rejected
	// login, a validation error) should return false. Default: every
	// non-nil error is a failure.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker unlocked.
	OnStateChange func(name string, from, to State)

	// Now overrides the clock. Tests only.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	probeWins int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn if the breaker allows it and records the outcome. fn's
// error is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it is a half-open
// probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		cb.state = StateHalfOpen
		cb.probes, cb.probeWins = 0, 0
	}
	to := cb.state

	switch {
	case cb.state == StateOpen:
		err = ErrCircuitOpen
	case cb.state == StateHalfOpen && cb.probes >= cb.cfg.HalfOpenMax:
		err = ErrCircuitOpen
	case cb.state == StateHalfOpen:
		cb.probes++
		probe = true
	}
	cb.mu.Unlock()

	cb.notify(from, to)
	return probe, err
}

// record updates counters after a call. Must be called without cb.mu held.
func (cb *CircuitBreaker) record(probe bool, err error) {
	failed := err != nil && cb.cfg.IsFailure(err)

	cb.mu.Lock()
	from := cb.state
	switch {
	case probe && failed:
		cb.trip()
	case probe:
		cb.probeWins++
		if cb.probeWins >= cb.cfg.HalfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
		}
	case failed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			cb.trip()
		}
	default:
		cb.failures = 0
	}
	to := cb.state
	failures := cb.failures
	cb.mu.Unlock()

	if from != to {
		slog.Warn("circuit breaker state changed",
			"name", cb.cfg.Name, "from", from, "to", to, "consecutive_failures", failures)
	}
	cb.notify(from, to)
}

// trip opens the breaker. Must be called with cb.mu held.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.cfg.Now()
	cb.failures = cb.cfg.MaxFailures
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current [State]. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures, cb.probes, cb.probeWins = 0, 0, 0
	cb.mu.Unlock()
	slog.Info("circuit breaker manually reset", "name", cb.cfg.Name)
	cb.notify(from, StateClosed)
}
