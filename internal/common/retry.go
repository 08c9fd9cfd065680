package common

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy is a bounded retry loop with a fixed delay between attempts
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// NewRetryPolicy builds the policy from configuration
func NewRetryPolicy(config RetryConfig) RetryPolicy {
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return RetryPolicy{
		MaxAttempts: attempts,
		Delay:       config.DelayDuration(),
	}
}

// Do runs fn until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is cancelled. fn receives the 1-based attempt number.
// The error of the last attempt is returned.
func (p RetryPolicy) Do(ctx context.Context, logger arbor.ILogger, operation string, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if IsPermanent(lastErr) {
			logger.Error().
				Str("operation", operation).
				Int("attempt", attempt).
				Err(lastErr).
				Msg("Non-retryable failure")
			return lastErr
		}

		logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Err(lastErr).
			Msg("Attempt failed")

		if attempt < p.MaxAttempts {
			if err := Sleep(ctx, p.Delay); err != nil {
				return err
			}
		}
	}

	logger.Error().
		Str("operation", operation).
		Int("max_attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("All retry attempts exhausted")

	return lastErr
}

// Sleep pauses for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
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
