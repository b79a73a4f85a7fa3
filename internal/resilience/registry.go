package resilience

import (
	"sort"
	"sync"
)

// CircuitBreakerRegistry hands out one breaker per collaborator operation,
// named "collaborator.op".
type CircuitBreakerRegistry struct {
	cfg      CircuitBreakerConfig
	breakers sync.Map // name -> *CircuitBreaker
}

// NewCircuitBreakerRegistry creates a registry whose breakers share cfg.
func NewCircuitBreakerRegistry(cfg CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{cfg: cfg}
}

// Get returns the breaker for name, creating it on first use.
func (r *CircuitBreakerRegistry) Get(name string) *CircuitBreaker {
	if cb, ok := r.breakers.Load(name); ok {
		return cb.(*CircuitBreaker)
	}
	cb, _ := r.breakers.LoadOrStore(name, NewCircuitBreaker(name, r.cfg))
	return cb.(*CircuitBreaker)
}

func (r *CircuitBreakerRegistry) each(fn func(cb *CircuitBreaker)) {
	r.breakers.Range(func(_, v any) bool {
		fn(v.(*CircuitBreaker))
		return true
	})
}

// AllStats returns every breaker's counters ordered by name.
func (r *CircuitBreakerRegistry) AllStats() []CircuitBreakerStats {
	var stats []CircuitBreakerStats
	r.each(func(cb *CircuitBreaker) { stats = append(stats, cb.Stats()) })
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// OpenCircuits names the breakers currently rejecting calls.
func (r *CircuitBreakerRegistry) OpenCircuits() []string {
	var open []string
	r.each(func(cb *CircuitBreaker) {
		if cb.State() == CircuitOpen {
			open = append(open, cb.Name())
		}
	})
	sort.Strings(open)
	return open
}

// ResetAll closes every breaker.
func (r *CircuitBreakerRegistry) ResetAll() {
	r.each(func(cb *CircuitBreaker) { cb.Reset() })
}
