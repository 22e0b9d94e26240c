package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

func recordingPolicy(settings domain.RetrySettings) (*RetryPolicy, *[]time.Duration) {
	var slept []time.Duration
	p := NewRetryPolicy(settings)
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return p, &slept
}

func TestRetryPolicy_RetriesTransientErrors(t *testing.T) {
	p, slept := recordingPolicy(domain.RetrySettings{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})

	calls := 0
	err := p.Do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return domain.ErrRateLimited
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *slept)
}

func TestRetryPolicy_StopsOnPermanentError(t *testing.T) {
	p, slept := recordingPolicy(domain.RetrySettings{MaxAttempts: 4})
	permanent := errors.New("bad request")

	calls := 0
	err := p.Do(context.Background(), "test", func(context.Context) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestRetryPolicy_ReturnsLastErrorWhenExhausted(t *testing.T) {
	p, _ := recordingPolicy(domain.RetrySettings{MaxAttempts: 3})

	calls := 0
	err := p.Do(context.Background(), "test", func(context.Context) error {
		calls++
		return domain.ErrProviderTransient
	})

	assert.ErrorIs(t, err, domain.ErrProviderTransient)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_StopsWhenContextCancelled(t *testing.T) {
	p := NewRetryPolicy(domain.RetrySettings{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := p.Do(ctx, "test", func(context.Context) error {
		calls++
		cancel()
		return domain.ErrRateLimited
	})

	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := NewRetryPolicy(domain.RetrySettings{MaxAttempts: 6, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 8 * time.Second},
		{9, 8 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestNewRetryPolicy_AtLeastOneAttempt(t *testing.T) {
	assert.Equal(t, 1, NewRetryPolicy(domain.RetrySettings{}).MaxAttempts())
}
