// Package resilience guards calls to external collaborators with circuit
// breakers.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitState is the position of a breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN" // probing after the cool-down
)

// ErrCircuitOpen is returned without calling through while a breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds breaker thresholds and hooks.
type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open a closed breaker.
	FailureThreshold int
	// SuccessThreshold probe successes close a half-open breaker.
	SuccessThreshold int
	// Timeout is the cool-down before an open breaker lets a probe through.
	Timeout time.Duration
	// IsFailure reports whether err counts against the breaker. Errors it
	// rejects still reach the caller. nil counts every error.
	IsFailure func(error) bool
	// OnStateChange runs after each transition, outside the lock.
	OnStateChange func(name string, from, to CircuitState)
}

// DefaultCircuitBreakerConfig suits a remote gateway polled once a minute.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreakerStats is a point-in-time view of a breaker.
type CircuitBreakerStats struct {
	Name            string       `json:"name"`
	State           CircuitState `json:"state"`
	TotalRequests   int64        `json:"total_requests"`
	TotalSuccesses  int64        `json:"total_successes"`
	TotalFailures   int64        `json:"total_failures"`
	TotalRejected   int64        `json:"total_rejected"`
	CurrentFailures int          `json:"current_failures"`
	LastFailureTime time.Time    `json:"last_failure_time"`
	LastStateChange time.Time    `json:"last_state_change"`
}

// FailureRate is failures over requests, in percent.
func (s CircuitBreakerStats) FailureRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return 100 * float64(s.TotalFailures) / float64(s.TotalRequests)
}

// CircuitBreaker stops calling a collaborator after repeated failures and
// probes it again once the cool-down has passed.
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig
	now  func() time.Time

	mu     sync.Mutex
	state  CircuitState
	streak int // consecutive failures when closed, probe successes when half-open
	stats  CircuitBreakerStats
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	cb := &CircuitBreaker{name: name, cfg: cfg, now: time.Now, state: CircuitClosed}
	cb.stats.LastStateChange = cb.now()
	return cb
}

// SetClock overrides the time source. Used by tests.
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	cb.now = now
	cb.mu.Unlock()
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current position.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a copy of the counters.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := cb.stats
	s.Name = cb.name
	s.State = cb.state
	if cb.state == CircuitClosed {
		s.CurrentFailures = cb.streak
	}
	return s
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.moveLocked(CircuitClosed)
	cb.mu.Unlock()
	cb.announce(from, CircuitClosed)
}

// Execute runs fn behind the breaker. fn must honour ctx.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteWithResult(cb, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteWithResult runs fn behind cb and passes its value through.
func ExecuteWithResult[T any](cb *CircuitBreaker, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.admit(); err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	v, err := fn(ctx)
	cb.settle(err != nil && cb.counts(err))
	if err != nil {
		return zero, err
	}
	return v, nil
}

func (cb *CircuitBreaker) counts(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return cb.cfg.IsFailure == nil || cb.cfg.IsFailure(err)
}

// admit rejects calls while open and moves to half-open once the cool-down
// since the last failure has passed.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	cb.stats.TotalRequests++
	if cb.state != CircuitOpen {
		cb.mu.Unlock()
		return nil
	}
	if cb.now().Sub(cb.stats.LastFailureTime) <= cb.cfg.Timeout {
		cb.stats.TotalRejected++
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	from := cb.moveLocked(CircuitHalfOpen)
	cb.mu.Unlock()
	cb.announce(from, CircuitHalfOpen)
	return nil
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(failed bool) {
	cb.mu.Lock()
	next := cb.state
	if failed {
		cb.stats.TotalFailures++
		cb.stats.LastFailureTime = cb.now()
		switch cb.state {
		case CircuitHalfOpen:
			next = CircuitOpen
		case CircuitClosed:
			cb.streak++
			if cb.streak >= cb.cfg.FailureThreshold {
				next = CircuitOpen
			}
		}
	} else {
		cb.stats.TotalSuccesses++
		switch cb.state {
		case CircuitHalfOpen:
			cb.streak++
			if cb.streak >= cb.cfg.SuccessThreshold {
				next = CircuitClosed
			}
		case CircuitClosed:
			cb.streak = 0
		}
	}

	if next == cb.state {
		cb.mu.Unlock()
		return
	}
	from := cb.moveLocked(next)
	cb.mu.Unlock()
	cb.announce(from, next)
}

// moveLocked switches state and clears the streak. cb.mu must be held.
func (cb *CircuitBreaker) moveLocked(to CircuitState) CircuitState {
	from := cb.state
	cb.state = to
	cb.streak = 0
	cb.stats.LastStateChange = cb.now()
	return from
}

func (cb *CircuitBreaker) announce(from, to CircuitState) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}
