package middleware

import (
	"sync"
	"time"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Quota exhausted, reject requests
	CircuitHalfOpen                     // Letting a probe through
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// CircuitBreaker stops calling the provider after repeated quota failures.
// While open, callers answer locally with the quota message and the remaining
// cooldown. Half-open admits a single probe at a time.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           CircuitState
	failures        int
	successes       int
	probing         bool
	lastFailureTime time.Time
	cooldown        time.Duration
	now             func() time.Time

	// Configuration
	FailureThreshold int           // Quota failures before opening
	SuccessThreshold int           // Successes in half-open before closing
	Timeout          time.Duration // Minimum cooldown before half-open
	OnStateChange    func(from, to CircuitState)
}

// NewCircuitBreaker creates a new circuit breaker with defaults
func NewCircuitBreaker() *CircuitBreaker {
	return NewCircuitBreakerWithConfig(3, 1, time.Minute)
}

// NewCircuitBreakerWithConfig creates a circuit breaker with custom config
func NewCircuitBreakerWithConfig(failureThreshold, successThreshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            CircuitClosed,
		FailureThreshold: failureThreshold,
		SuccessThreshold: successThreshold,
		Timeout:          timeout,
		now:              time.Now,
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow checks if a request may call the provider. A true result in
// half-open claims the probe slot until the outcome is recorded.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.cooldown {
			return false
		}
		cb.setState(CircuitHalfOpen)
		cb.probing = true
		return true
	case CircuitHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
	return false
}

// RetryAfter returns the cooldown left while open, else zero.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return 0
	}
	left := cb.cooldown - cb.now().Sub(cb.lastFailureTime)
	if left < 0 {
		return 0
	}
	return left
}

// RecordSuccess records a successful provider call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	switch cb.state {
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.SuccessThreshold {
			cb.setState(CircuitClosed)
			cb.failures = 0
			cb.successes = 0
		}
	case CircuitClosed:
		cb.failures = 0
	}
}

// RecordQuotaFailure records a quota rejection. retryAfter, when longer than
// Timeout, extends the cooldown.
func (cb *CircuitBreaker) RecordQuotaFailure(retryAfter time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	cb.failures++
	cb.lastFailureTime = cb.now()
	cb.cooldown = cb.Timeout
	if retryAfter > cb.cooldown {
		cb.cooldown = retryAfter
	}

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.FailureThreshold {
			cb.setState(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.setState(CircuitOpen)
		cb.successes = 0
	}
}

// RecordFailure records a provider failure unrelated to quota. It frees the
// probe slot without changing state.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
}

func (cb *CircuitBreaker) setState(newState CircuitState) {
	if cb.OnStateChange != nil && cb.state != newState {
		cb.OnStateChange(cb.state, newState)
	}
	cb.state = newState
}
