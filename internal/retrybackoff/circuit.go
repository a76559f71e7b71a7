package retrybackoff

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute when the breaker is tripped.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

// CircuitBreaker fails fast in front of a dependency once it has failed
// maxFailures times in a row, probing again after resetTimeout. Used ahead
// of the remote vector backend so a down dependency doesn't add latency to
// every query.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithMaxFailures sets the failure count that trips the breaker.
func WithMaxFailures(n int) Option {
	return func(cb *CircuitBreaker) { cb.maxFailures = n }
}

// WithResetTimeout sets how long the breaker stays open before probing.
func WithResetTimeout(d time.Duration) Option {
	return func(cb *CircuitBreaker) { cb.resetTimeout = d }
}

// New creates a CircuitBreaker with defaults of 5 failures / 30s reset.
func New(name string, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

func (cb *CircuitBreaker) Name() string { return cb.name }

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// currentState must be called with cb.mu held.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && time.Since(cb.lastFailure) > cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Execute runs fn through the breaker, returning ErrCircuitOpen without
// calling fn if the breaker is tripped.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	state := cb.currentState()
	if state == StateOpen {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	cb.state = state
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.failures >= cb.maxFailures || state == StateHalfOpen {
			cb.state = StateOpen
		}
		return err
	}
	cb.failures = 0
	cb.state = StateClosed
	return nil
}

// ExecuteWithResult runs fn through the breaker and falls back to fallback
// when the breaker is open or fn fails during the half-open probe.
func ExecuteWithResult[T any](cb *CircuitBreaker, fn func() (T, error), fallback func() (T, error)) (T, error) {
	cb.mu.Lock()
	state := cb.currentState()
	if state == StateOpen {
		cb.mu.Unlock()
		return fallback()
	}
	cb.state = state
	cb.mu.Unlock()

	result, err := fn()

	cb.mu.Lock()
	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.failures >= cb.maxFailures || state == StateHalfOpen {
			cb.state = StateOpen
		}
		cb.mu.Unlock()
		return fallback()
	}
	cb.failures = 0
	cb.state = StateClosed
	cb.mu.Unlock()
	return result, nil
}
