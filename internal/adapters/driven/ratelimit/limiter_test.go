package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"absent", "", 0},
		{"seconds", "3", 3 * time.Second},
		{"http date", now.Add(10 * time.Second).Format(http.TimeFormat), 10 * time.Second},
		{"date in the past", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Retry-After", tt.header)
			}
			assert.Equal(t, tt.want, RetryAfter(h, now))
		})
	}
}

func TestLimiter_UnlimitedDoesNotBlock(t *testing.T) {
	l := New(0)
	for range 100 {
		require.NoError(t, l.Wait(context.Background()))
	}
}

func TestLimiter_PauseBlocksUntilCancelled(t *testing.T) {
	l := New(0)
	l.Pause(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)
}

func TestLimiter_PauseKeepsLaterDeadline(t *testing.T) {
	l := New(0)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Pause(time.Minute)
	l.Pause(time.Second)
	l.Pause(0)

	assert.Equal(t, now.Add(time.Minute), l.blockedUntil)
}

func TestLimiter_ExpiredPauseDoesNotBlock(t *testing.T) {
	l := New(0)
	l.Pause(time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, l.Wait(ctx))
}
