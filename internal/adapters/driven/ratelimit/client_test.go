package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

func TestClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["text"]})
	}))
	defer server.Close()

	c := NewClient("test", time.Second, nil, http.Header{"Authorization": {"Bearer secret"}})

	var out map[string]string
	err := c.PostJSON(context.Background(), server.URL, map[string]string{"text": "hello"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "hello", out["echo"])
}

func TestClient_ClassifiesStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, domain.ErrRateLimited, "slow down"},
		{"server error", http.StatusBadGateway, "upstream down", domain.ErrProviderTransient, "upstream down"},
		{"unauthorised", http.StatusUnauthorized, `{"error":"bad key"}`, domain.ErrConfiguration, "bad key"},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"unknown model"}}`, nil, "unknown model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewClient("test", time.Second, New(0), nil)
			err := c.Get(context.Background(), server.URL)

			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantMsg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.False(t, domain.IsTransient(err))
			}
		})
	}
}

func TestClient_RetryAfterPausesLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	limiter := New(0)
	c := NewClient("test", time.Second, limiter, nil)

	err := c.Get(context.Background(), server.URL)
	require.ErrorIs(t, err, domain.ErrRateLimited)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, limiter.Wait(ctx), context.DeadlineExceeded)
}

func TestClient_ConnectionFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClient("test", time.Second, nil, nil)
	err := c.Get(context.Background(), url)

	assert.ErrorIs(t, err, domain.ErrProviderTransient)
}

func TestClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient("test", time.Second, nil, nil)
	err := c.Get(ctx, "http://127.0.0.1:1")

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, domain.IsTransient(err))
}
