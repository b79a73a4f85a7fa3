// Package utils holds small helpers shared across packages.
package utils

import (
	"context"
	"math"
	"time"
)

// RetryConfig is an exponential backoff policy.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Retryable reports whether an error is worth another attempt. nil
	// retries every error.
	Retryable func(error) bool
}

// DefaultRetryConfig makes three attempts, 100ms then 200ms apart.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Retry calls fn until it succeeds, returns a non-retryable error or the
// attempts run out.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for functions that return a value. The wait
// between attempts is cut short when ctx is done.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	attempts := max(cfg.MaxAttempts, 1)

	var (
		zero T
		err  error
	)
	for attempt := 0; ; attempt++ {
		var v T
		if v, err = fn(); err == nil {
			return v, nil
		}
		if attempt+1 >= attempts || (cfg.Retryable != nil && !cfg.Retryable(err)) {
			return zero, err
		}

		wait := time.NewTimer(CalculateBackoff(attempt, cfg.InitialDelay, cfg.MaxDelay, cfg.BackoffFactor))
		select {
		case <-ctx.Done():
			wait.Stop()
			return zero, ctx.Err()
		case <-wait.C:
		}
	}
}

// CalculateBackoff is initialDelay*factor^attempt capped at maxDelay. A
// factor below 1 is treated as 1.
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration, factor float64) time.Duration {
	d := float64(initialDelay) * math.Pow(math.Max(factor, 1), float64(attempt))
	if maxDelay > 0 {
		d = math.Min(d, float64(maxDelay))
	}
	return time.Duration(d)
}
