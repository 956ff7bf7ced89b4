package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/refnexus/platform/internal/domain"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker tracks consecutive failures per upstream (the AI assignor,
// the geocoder) and short-circuits calls while an upstream is unhealthy.
type CircuitBreaker struct {
	mu            sync.Mutex
	circuits      map[string]*circuit
	failThreshold int
	resetTimeout  time.Duration
	now           func() time.Time
}

type circuit struct {
	state       CircuitState
	failures    int
	probing     bool
	lastFailure time.Time
}

// NewCircuitBreaker creates a circuit breaker with configurable thresholds.
func NewCircuitBreaker(failThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failThreshold <= 0 {
		failThreshold = 1
	}
	return &CircuitBreaker{
		circuits:      make(map[string]*circuit),
		failThreshold: failThreshold,
		resetTimeout:  resetTimeout,
		now:           time.Now,
	}
}

func (cb *CircuitBreaker) get(key string) *circuit {
	c, ok := cb.circuits[key]
	if !ok {
		c = &circuit{state: CircuitClosed}
		cb.circuits[key] = c
	}
	return c
}

// Check returns whether the circuit for key allows a request. After the reset
// timeout an open circuit lets exactly one probe through.
func (cb *CircuitBreaker) Check(_ context.Context, key string) domain.GuardResult {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	switch c.state {
	case CircuitOpen:
		elapsed := cb.now().Sub(c.lastFailure)
		if elapsed < cb.resetTimeout {
			return domain.GuardResult{
				Allowed: false,
				Reason:  fmt.Sprintf("circuit open for %s, resets in %s", key, (cb.resetTimeout - elapsed).Round(time.Second)),
				Guard:   "circuit_breaker",
			}
		}
		c.state = CircuitHalfOpen
		c.probing = true
		return domain.GuardResult{Allowed: true}
	case CircuitHalfOpen:
		if c.probing {
			return domain.GuardResult{
				Allowed: false,
				Reason:  "circuit half-open, probe in flight",
				Guard:   "circuit_breaker",
			}
		}
		c.probing = true
		return domain.GuardResult{Allowed: true}
	default:
		return domain.GuardResult{Allowed: true}
	}
}

// State reports the current state for key.
func (cb *CircuitBreaker) State(key string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.get(key).state
}

// RecordSuccess closes the circuit for key.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	c.state = CircuitClosed
	c.failures = 0
	c.probing = false
}

// RecordFailure counts a failure for key. A failed probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	c.failures++
	c.lastFailure = cb.now()
	c.probing = false

	if c.state == CircuitHalfOpen || c.failures >= cb.failThreshold {
		c.state = CircuitOpen
	}
}

// Release ends a call without recording an outcome. A half-open circuit
// stays half-open and lets the next caller probe.
func (cb *CircuitBreaker) Release(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.get(key).probing = false
}

type uncountedError struct{ err error }

func (e uncountedError) Error() string { return e.err.Error() }
func (e uncountedError) Unwrap() error { return e.err }

// Uncounted wraps err so Execute passes it through without counting it
// against the circuit. Use it for failures that say nothing about upstream
// health, such as the caller going away.
func Uncounted(err error) error {
	if err == nil {
		return nil
	}
	return uncountedError{err: err}
}

// Execute runs fn when the circuit allows it and records the outcome. A
// rejected call returns an external service error without invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, key string, fn func(context.Context) error) error {
	if res := cb.Check(ctx, key); !res.Allowed {
		return domain.ErrExternalService(res.Reason, nil)
	}
	err := fn(ctx)
	var skip uncountedError
	switch {
	case err == nil:
		cb.RecordSuccess(key)
		return nil
	case errors.As(err, &skip):
		cb.Release(key)
		return skip.err
	default:
		cb.RecordFailure(key)
		return err
	}
}
