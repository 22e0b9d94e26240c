package ratelimit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// maxErrorBody bounds how much of an error response is quoted in errors.
const maxErrorBody = 512

// Client sends JSON requests to one provider through a shared limiter.
type Client struct {
	provider string
	http     *http.Client
	limiter  *Limiter
	header   http.Header
}

// NewClient creates a client for provider. header is sent with every request.
func NewClient(provider string, timeout time.Duration, limiter *Limiter, header http.Header) *Client {
	if limiter == nil {
		limiter = New(0)
	}
	return &Client{
		provider: provider,
		http:     &http.Client{Timeout: timeout},
		limiter:  limiter,
		header:   header.Clone(),
	}
}

// PostJSON sends in as JSON to url and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", c.provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.provider, err)
	}
	return nil
}

// Get sends a GET request and discards the body. It is used for pings.
func (c *Client) Get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.provider, err)
	}
	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	for k, v := range c.header {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s: %w: %w", c.provider, domain.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: read response: %w", c.provider, domain.ErrProviderTransient, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := RetryAfter(resp.Header, c.limiter.now())
		c.limiter.Pause(wait)
		logger.Warn("%s: rate limited, pausing %s", c.provider, wait)
	}
	if err := StatusError(c.provider, resp.StatusCode, data); err != nil {
		return nil, err
	}
	return data, nil
}

// StatusError maps a non-2xx status to an error. 429 wraps
// domain.ErrRateLimited, 5xx and 408 wrap domain.ErrProviderTransient,
// 401 and 403 wrap domain.ErrConfiguration.
func StatusError(provider string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := providerMessage(body)
	var kind error
	switch {
	case status == http.StatusTooManyRequests:
		kind = domain.ErrRateLimited
	case status >= 500, status == http.StatusRequestTimeout:
		kind = domain.ErrProviderTransient
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = domain.ErrConfiguration
	default:
		return fmt.Errorf("%s: API returned status %d: %s", provider, status, msg)
	}
	return fmt.Errorf("%s: %w (status %d): %s", provider, kind, status, msg)
}

// providerMessage extracts the error message from the JSON error shapes
// used by OpenAI, Anthropic and Ollama, falling back to the raw body.
func providerMessage(body []byte) string {
	var shaped struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &shaped) == nil && len(shaped.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(shaped.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var plain string
		if json.Unmarshal(shaped.Error, &plain) == nil && plain != "" {
			return plain
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	return text
}
