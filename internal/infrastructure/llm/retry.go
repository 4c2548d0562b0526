package llm

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
)

// Rotator hands out the current client and switches credentials on demand.
// KeyPool is the production implementation.
type Rotator interface {
	CurrentClient() (Completer, error)
	Rotate() bool
}

// Policy governs one bounded retry loop around an AI call
type Policy struct {
	MaxAttempts int
	RotateDelay time.Duration
	BaseBackoff time.Duration
	Multiplier  float64
	MaxBackoff  time.Duration

	IsRotatable func(error) bool
	IsRetryable func(error) bool

	// OnRetry is called before each wait; rotated tells whether the credential changed.
	OnRetry func(attempt int, err error, rotated bool)
}

// DefaultPolicy returns the policy used by extraction
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 15,
		RotateDelay: time.Second,
		BaseBackoff: 2 * time.Second,
		Multiplier:  1.5,
		MaxBackoff:  30 * time.Second,
		IsRotatable: IsRotatable,
		IsRetryable: IsRetryable,
	}
}

// Backoff returns the wait before the given (1-based) retry attempt
func (p Policy) Backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(p.BaseBackoff) * math.Pow(mult, float64(attempt-1)))
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// WithRetry runs op with the current client until it succeeds or the policy gives up.
//
// A rotatable error switches credentials and retries after RotateDelay; when no other
// credential exists the loop stops with domain.ErrMissingAPIKey. Any other retryable
// error backs off and retries with the same credential. Cancelling ctx stops the loop
// between attempts but does not abort an attempt already in flight beyond what op honors.
func WithRetry(ctx context.Context, keys Rotator, policy Policy, op func(ctx context.Context, client Completer) error) error {
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	isRotatable := policy.IsRotatable
	if isRotatable == nil {
		isRotatable = IsRotatable
	}
	isRetryable := policy.IsRetryable
	if isRetryable == nil {
		isRetryable = IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		client, err := keys.CurrentClient()
		if err != nil {
			return err
		}

		err = op(ctx, client)
		if err == nil {
			return nil
		}
		lastErr = err

		var wait time.Duration
		rotated := false
		switch {
		case isRotatable(err):
			if !keys.Rotate() {
				return fmt.Errorf("%w: %v", domain.ErrMissingAPIKey, err)
			}
			rotated = true
			wait = policy.RotateDelay
		case isRetryable(err):
			wait = policy.Backoff(attempt)
		default:
			return err
		}

		if attempt == maxAttempts {
			break
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, rotated)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
