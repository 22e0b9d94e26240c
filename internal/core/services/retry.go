package services

import (
	"context"
	"time"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// RetryPolicy retries transient provider failures with bounded exponential backoff.
// Only errors for which domain.IsTransient holds are retried.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy creates a policy from settings. MaxAttempts below 1 is treated as 1.
func NewRetryPolicy(settings domain.RetrySettings) *RetryPolicy {
	return &RetryPolicy{
		maxAttempts: max(settings.MaxAttempts, 1),
		baseDelay:   settings.BaseDelay,
		maxDelay:    settings.MaxDelay,
		sleep:       sleepContext,
	}
}

// Do calls fn until it succeeds, fails permanently or the attempts run out.
// The last error is returned unchanged so callers can wrap it.
func (p *RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || !domain.IsTransient(err) || attempt >= p.maxAttempts {
			return err
		}

		delay := p.Backoff(attempt)
		logger.Debug("%s: attempt %d/%d failed (%s), retrying in %s",
			op, attempt, p.maxAttempts, domain.ErrorKind(err), delay)

		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
}

// Backoff returns the delay after the given failed attempt (1-based):
// base, 2*base, 4*base, ... capped at the maximum delay.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.baseDelay
	for i := 1; i < attempt && delay < p.maxDelay; i++ {
		delay *= 2
	}
	if p.maxDelay > 0 && delay > p.maxDelay {
		delay = p.maxDelay
	}
	return delay
}

// MaxAttempts returns the total number of calls Do may make.
func (p *RetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
