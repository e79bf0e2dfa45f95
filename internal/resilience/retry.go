package resilience

import (
	"context"
	"errors"
	"time"
)

// Backoff retries a call with exponentially growing delays.
type Backoff struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultBackoff returns the default retry policy.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Execute calls fn until it succeeds, fails permanently, the circuit is
// open, or the attempts run out. The last error is returned.
func (b Backoff) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := b.InitialDelay

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil || IsPermanent(lastErr) || errors.Is(lastErr, ErrCircuitOpen) {
			return lastErr
		}

		// No sleep after the last attempt
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = b.next(delay)
	}
	return lastErr
}

// ExecuteWithCircuitBreaker retries fn, each attempt guarded by cb.
func (b Backoff) ExecuteWithCircuitBreaker(ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) error) error {
	return b.Execute(ctx, func(ctx context.Context) error {
		return cb.Execute(ctx, fn)
	})
}

func (b Backoff) next(delay time.Duration) time.Duration {
	factor := b.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay = time.Duration(float64(delay) * factor)
	if b.MaxDelay > 0 && delay > b.MaxDelay {
		delay = b.MaxDelay
	}
	return delay
}
