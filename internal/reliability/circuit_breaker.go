package reliability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the current state of the circuit breaker
type CircuitState int

const (
	// StateClosed - Normal operation, requests pass through
	StateClosed CircuitState = iota
	// StateOpen - Vault is considered down, requests fail fast
	StateOpen
	// StateHalfOpen - A single trial request is let through
	StateHalfOpen
)

// String returns the string representation of the circuit state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit
	FailureThreshold int
	// SuccessThreshold is the number of successes needed to close the circuit in half-open state
	SuccessThreshold int
	// Cooldown is how long the circuit stays open before transitioning to half-open
	Cooldown time.Duration
	// OnStateChange is called when the circuit state changes, with the breaker lock held
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns a default configuration
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Cooldown:         30 * time.Second,
	}
}

// CircuitBreaker stops calling Vault after repeated failures and lets a
// trial request through once the cooldown has elapsed.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	nextAttemptTime time.Time
	trialInFlight   bool
}

// NewCircuitBreaker creates a new circuit breaker. Zero fields of config take
// their default value.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = defaults.Cooldown
	}
	if config.OnStateChange == nil {
		config.OnStateChange = func(from, to CircuitState) {}
	}

	return &CircuitBreaker{
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Execute runs fn unless the circuit is open. fn reports whether its outcome
// counts as a failure separately from the error it returns, so callers can
// trip on conditions that are not Go errors.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) (failed bool, err error)) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	failed, err := fn(ctx)
	// a cancelled caller says nothing about Vault
	if ctx.Err() != nil && err != nil {
		cb.release()
		return err
	}
	cb.recordResult(failed)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.advance(now)

	switch cb.state {
	case StateOpen:
		return &CircuitOpenError{NextAttemptTime: cb.nextAttemptTime}
	case StateHalfOpen:
		if cb.trialInFlight {
			return &CircuitOpenError{NextAttemptTime: cb.nextAttemptTime}
		}
		cb.trialInFlight = true
	}
	return nil
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trialInFlight = false
}

func (cb *CircuitBreaker) recordResult(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.trialInFlight = false
	if failed {
		cb.onFailure(now)
	} else {
		cb.onSuccess(now)
	}
}

func (cb *CircuitBreaker) onFailure(now time.Time) {
	cb.failureCount++
	cb.lastFailureTime = now

	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	}
}

func (cb *CircuitBreaker) onSuccess(now time.Time) {
	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.setState(StateClosed, now)
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) setState(state CircuitState, now time.Time) {
	prev := cb.state
	cb.state = state

	switch state {
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.nextAttemptTime = time.Time{}
	case StateOpen:
		cb.nextAttemptTime = now.Add(cb.config.Cooldown)
		cb.successCount = 0
	case StateHalfOpen:
		cb.successCount = 0
		cb.trialInFlight = false
	}

	if prev != state {
		cb.config.OnStateChange(prev, state)
	}
}

// advance moves an open circuit to half-open once the cooldown is over.
func (cb *CircuitBreaker) advance(now time.Time) {
	if cb.state == StateOpen && !now.Before(cb.nextAttemptTime) {
		cb.setState(StateHalfOpen, now)
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance(cb.now())
	return cb.state
}

// Stats returns statistics about the circuit breaker
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance(cb.now())

	return CircuitBreakerStats{
		State:           cb.state.String(),
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
		NextAttemptTime: cb.nextAttemptTime,
	}
}

// CircuitBreakerStats contains statistics about a circuit breaker
type CircuitBreakerStats struct {
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
	NextAttemptTime time.Time `json:"next_attempt_time,omitempty"`
}

// ErrCircuitOpen is matched by every CircuitOpenError.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError is returned when the circuit breaker is open
type CircuitOpenError struct {
	NextAttemptTime time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%v: Vault is not called again before %s",
		ErrCircuitOpen, e.NextAttemptTime.Format(time.RFC3339))
}

func (e *CircuitOpenError) Unwrap() error {
	return ErrCircuitOpen
}

// IsCircuitOpenError checks if an error is a circuit open error
func IsCircuitOpenError(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
