package dwolla

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-ledger-must-balance/internal/common"
)

const halMediaType = "application/vnd.dwolla.v1.hal+json"

// rateLimitResetHeader carries the cooldown end as epoch seconds.
const rateLimitResetHeader = "X-RateLimit-Reset"

// RetryPolicy governs retry scheduling for network errors, 5xx and 429
// responses. Immutable per client.
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxRetries   int
}

// DefaultRetryPolicy mirrors the provider's recommended client behavior.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// delay computes the backoff before retry number retryCount. The schedule is
// deterministic: min(initial * multiplier^retryCount, max).
func (p RetryPolicy) delay(retryCount int) time.Duration {
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(retryCount)))
	if d > p.MaxDelay || d < 0 {
		d = p.MaxDelay
	}
	return d
}

// Client is a resilient gateway to the provider API: every request carries a
// fresh bearer token and a correlation id, honors a process-wide rate-limit
// window, and retries transient failures under the configured policy.
type Client struct {
	now        func() time.Time
	httpClient *http.Client
	tokens     *TokenManager
	window     *rateLimitWindow
	logger     *slog.Logger
	cfg        Config
	policy     RetryPolicy
}

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient overrides the transport, shared with the token manager.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		c.tokens = NewTokenManager(c.cfg, hc)
	}
}

// WithRetryPolicy overrides the default retry schedule.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// NewClient creates a new Dwolla client with the given configuration.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	c := &Client{
		cfg:        cfg,
		httpClient: httpClient,
		tokens:     NewTokenManager(cfg, httpClient),
		window:     &rateLimitWindow{},
		logger:     common.ComponentLogger("dwolla"),
		policy:     DefaultRetryPolicy(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Get issues an authenticated GET against url, which may be either a path
// relative to the API base or an absolute URL returned in a prior _links.
func (c *Client) Get(ctx context.Context, url string) (json.RawMessage, error) {
	return c.request(ctx, http.MethodGet, url, nil)
}

// Post issues an authenticated POST with a HAL+JSON body.
func (c *Client) Post(ctx context.Context, url string, body []byte) (json.RawMessage, error) {
	return c.request(ctx, http.MethodPost, url, body)
}

// request runs the retry state machine for one logical call. A single
// monotone retry counter is shared across the 401, 429, 5xx and transport
// branches so their budgets interact.
func (c *Client) request(ctx context.Context, method, rawURL string, body []byte) (json.RawMessage, error) {
	target := c.resolveURL(rawURL)
	retryCount := 0
	authRetried := false

	for {
		// An active cooldown gates every attempt, including the first.
		if err := c.window.wait(ctx); err != nil {
			return nil, err
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", halMediaType)
		req.Header.Set("X-Request-Id", uuid.NewString())
		if body != nil {
			req.Header.Set("Content-Type", halMediaType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Cancellation is never retried.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if retryCount >= c.policy.MaxRetries {
				return nil, &TransportError{Err: err}
			}
			delay := c.policy.delay(retryCount)
			retryCount++
			c.logger.Warn("Request failed, retrying",
				"method", method,
				"url", target,
				"retry", retryCount,
				"delay", delay,
				"error", err)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				return nil, fmt.Errorf("failed to read response body: %w", readErr)
			}
			if len(payload) == 0 {
				return nil, nil
			}
			// A 2xx body that is not JSON is a provider contract violation,
			// not transience. Fatal for this call.
			if !json.Valid(payload) {
				return nil, fmt.Errorf("malformed JSON in %d response from %s", resp.StatusCode, target)
			}
			return json.RawMessage(payload), nil

		case resp.StatusCode == http.StatusUnauthorized:
			// One immediate retry with a fresh token covers expiry races.
			if !authRetried && retryCount < c.policy.MaxRetries {
				authRetried = true
				retryCount++
				c.tokens.ClearToken()
				c.logger.Debug("Got 401, clearing token and retrying", "url", target)
				continue
			}
			return nil, c.apiError(resp.StatusCode, payload)

		case resp.StatusCode == http.StatusTooManyRequests:
			if retryCount >= c.policy.MaxRetries {
				return nil, c.apiError(resp.StatusCode, payload)
			}
			retryCount++
			resetAt := c.parseRateLimitReset(resp.Header)
			c.logger.Warn("Rate limited, awaiting shared cooldown",
				"url", target,
				"reset_at", resetAt.Format(time.RFC3339),
				"retry", retryCount)
			if err := c.window.arm(ctx, resetAt); err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode >= 500:
			if retryCount >= c.policy.MaxRetries {
				return nil, c.apiError(resp.StatusCode, payload)
			}
			delay := c.policy.delay(retryCount)
			retryCount++
			c.logger.Warn("Server error, retrying",
				"status", resp.StatusCode,
				"url", target,
				"retry", retryCount,
				"delay", delay)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			continue

		default:
			// Remaining non-2xx statuses are request errors; retrying the
			// same call cannot help.
			return nil, c.apiError(resp.StatusCode, payload)
		}
	}
}

// resolveURL turns a relative path into a full API URL; absolute URLs from
// _links pass through untouched.
func (c *Client) resolveURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	return c.cfg.apiBase() + "/" + strings.TrimPrefix(rawURL, "/")
}

// parseRateLimitReset reads the provider's reset header (epoch seconds),
// defaulting to one initial delay from now when absent or unparseable.
func (c *Client) parseRateLimitReset(h http.Header) time.Time {
	if v := h.Get(rateLimitResetHeader); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(epoch, 0)
		}
	}
	return c.now().Add(c.policy.InitialDelay)
}

// apiError builds an APIError from a non-2xx response body.
func (c *Client) apiError(status int, payload []byte) error {
	apiErr := &APIError{Status: status}

	var body errorResponse
	if err := json.Unmarshal(payload, &body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		apiErr.Embedded = body.Embedded.Errors
	}

	return apiErr
}

// getJSON fetches url and decodes the response into v.
func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	raw, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
