package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 8, 13, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("gateway.candles", cfg)
	cb.SetClock(clock.now)
	return cb, clock
}

func fail(context.Context) error { return errBoom }
func pass(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, int64(1), cb.Stats().TotalRejected)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, pass))
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	var transitions []string
	cb, clock := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		OnStateChange: func(name string, from, to CircuitState) {
			transitions = append(transitions, string(from)+">"+string(to))
		},
	})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, CircuitOpen, cb.State())

	clock.advance(31 * time.Second)
	require.NoError(t, cb.Execute(ctx, pass))
	assert.Equal(t, CircuitHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, pass))
	assert.Equal(t, CircuitClosed, cb.State())

	assert.Equal(t, []string{"CLOSED>OPEN", "OPEN>HALF_OPEN", "HALF_OPEN>CLOSED"}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Second})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.advance(2 * time.Second)
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_IsFailureFilters(t *testing.T) {
	errClient := errors.New("bad request")
	cb, _ := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		Timeout:          time.Minute,
		IsFailure:        func(err error) bool { return !errors.Is(err, errClient) },
	})

	err := cb.Execute(context.Background(), func(context.Context) error { return errClient })
	assert.ErrorIs(t, err, errClient)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, pass)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestExecuteWithResult(t *testing.T) {
	cb, _ := newTestBreaker(DefaultCircuitBreakerConfig())

	v, err := ExecuteWithResult(cb, context.Background(), func(context.Context) (float64, error) {
		return 1.0825, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0825, v)

	stats := cb.Stats()
	assert.Equal(t, int64(1), stats.TotalSuccesses)
	assert.Zero(t, stats.FailureRate())
}

func TestRegistry(t *testing.T) {
	reg := NewCircuitBreakerRegistry(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Minute})

	a := reg.Get("gateway.orders")
	assert.Same(t, a, reg.Get("gateway.orders"))

	reg.Get("gateway.candles")
	_ = a.Execute(context.Background(), fail)

	assert.Equal(t, []string{"gateway.orders"}, reg.OpenCircuits())
	stats := reg.AllStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "gateway.candles", stats[0].Name)

	reg.ResetAll()
	assert.Empty(t, reg.OpenCircuits())
}
