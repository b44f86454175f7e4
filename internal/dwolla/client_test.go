package dwolla

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedResponse is one canned reply from the fake provider.
type scriptedResponse struct {
	header http.Header
	body   string
	status int
}

// fakeProvider serves a token endpoint plus a scripted sequence of API
// responses. Once the script is exhausted it keeps replaying the last entry.
type fakeProvider struct {
	t        *testing.T
	srv      *httptest.Server
	script   []scriptedResponse
	apiHits  atomic.Int64
	tokenHit atomic.Int64
	mu       sync.Mutex
}

func newFakeProvider(t *testing.T, script ...scriptedResponse) *fakeProvider {
	t.Helper()

	p := &fakeProvider{t: t, script: script}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			p.tokenHit.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"test-token","token_type":"bearer","expires_in":3600}`)
			return
		}

		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.Equal(t, halMediaType, r.Header.Get("Accept"))
		require.NotEmpty(t, r.Header.Get("X-Request-Id"))

		n := int(p.apiHits.Add(1)) - 1
		p.mu.Lock()
		resp := p.script[min(n, len(p.script)-1)]
		p.mu.Unlock()

		for k, vs := range resp.header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.status)
		fmt.Fprint(w, resp.body)
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) client(t *testing.T, opts ...Option) *Client {
	t.Helper()

	opts = append([]Option{
		WithHTTPClient(p.srv.Client()),
		WithRetryPolicy(RetryPolicy{
			MaxRetries:   3,
			InitialDelay: 5 * time.Millisecond,
			MaxDelay:     20 * time.Millisecond,
			Multiplier:   2.0,
		}),
	}, opts...)

	c, err := NewClient(testConfig(p.srv.URL), opts...)
	require.NoError(t, err)
	return c
}

func TestClient_GetSuccess(t *testing.T) {
	p := newFakeProvider(t, scriptedResponse{status: http.StatusOK, body: `{"id":"abc"}`})
	c := p.client(t)

	raw, err := c.Get(context.Background(), "/transfers/abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc"}`, string(raw))
	assert.Equal(t, int64(1), p.apiHits.Load())
}

func TestClient_RetriesServerErrorsThenSucceeds(t *testing.T) {
	p := newFakeProvider(t,
		scriptedResponse{status: http.StatusInternalServerError},
		scriptedResponse{status: http.StatusBadGateway},
		scriptedResponse{status: http.StatusOK, body: `{"ok":true}`},
	)
	c := p.client(t)

	raw, err := c.Get(context.Background(), "/transfers")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, int64(3), p.apiHits.Load())
}

func TestClient_RetryBudgetExhausted(t *testing.T) {
	p := newFakeProvider(t, scriptedResponse{status: http.StatusServiceUnavailable, body: `{"code":"ServerError","message":"down"}`})
	c := p.client(t)

	_, err := c.Get(context.Background(), "/transfers")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	// Initial attempt plus the full retry budget, no more.
	assert.Equal(t, int64(4), p.apiHits.Load())
}

func TestClient_NoRetryOnRequestErrors(t *testing.T) {
	p := newFakeProvider(t, scriptedResponse{
		status: http.StatusNotFound,
		body:   `{"code":"NotFound","message":"the requested resource was not found"}`,
	})
	c := p.client(t)

	_, err := c.Get(context.Background(), "/transfers/missing")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NotFound", apiErr.Code)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int64(1), p.apiHits.Load(), "4xx responses must not be retried")
}

func TestClient_UnauthorizedRefreshesTokenOnce(t *testing.T) {
	p := newFakeProvider(t,
		scriptedResponse{status: http.StatusUnauthorized, body: `{"code":"ExpiredAccessToken"}`},
		scriptedResponse{status: http.StatusOK, body: `{"ok":true}`},
	)
	c := p.client(t)

	raw, err := c.Get(context.Background(), "/transfers")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, int64(2), p.apiHits.Load())
	assert.Equal(t, int64(2), p.tokenHit.Load(), "a 401 must force exactly one fresh exchange")
}

func TestClient_PersistentUnauthorizedFails(t *testing.T) {
	p := newFakeProvider(t, scriptedResponse{status: http.StatusUnauthorized, body: `{"code":"InvalidScope"}`})
	c := p.client(t)

	_, err := c.Get(context.Background(), "/transfers")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, int64(2), p.apiHits.Load(), "only one token-refresh retry is allowed")
}

func TestClient_RateLimitAwaitsSharedWindow(t *testing.T) {
	p := newFakeProvider(t,
		scriptedResponse{status: http.StatusTooManyRequests},
		scriptedResponse{status: http.StatusOK, body: `{"ok":true}`},
	)
	c := p.client(t)

	start := time.Now()
	raw, err := c.Get(context.Background(), "/transfers")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	// Without a reset header the cooldown defaults to one initial delay.
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
	assert.False(t, c.window.active(), "window must clear after the cooldown elapses")
}

func TestClient_RateLimitBudgetExhausted(t *testing.T) {
	p := newFakeProvider(t, scriptedResponse{status: http.StatusTooManyRequests})
	c := p.client(t)

	_, err := c.Get(context.Background(), "/transfers")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, int64(4), p.apiHits.Load())
}

func TestClient_MalformedSuccessBodyIsFatal(t *testing.T) {
	p := newFakeProvider(t, scriptedResponse{status: http.StatusOK, body: `<html>gateway error</html>`})
	c := p.client(t)

	_, err := c.Get(context.Background(), "/transfers")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed JSON")
	assert.Equal(t, int64(1), p.apiHits.Load(), "contract violations must not be retried")
}

func TestClient_EmptySuccessBody(t *testing.T) {
	p := newFakeProvider(t, scriptedResponse{status: http.StatusOK})
	c := p.client(t)

	raw, err := c.Get(context.Background(), "/transfers")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestClient_CancellationDuringBackoff(t *testing.T) {
	p := newFakeProvider(t, scriptedResponse{status: http.StatusInternalServerError})
	c := p.client(t, WithRetryPolicy(RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 10 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   1.0,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Get(ctx, "/transfers")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second, "cancellation must interrupt the backoff sleep")
}

func TestClient_TransportErrorRetriesThenWraps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			fmt.Fprint(w, `{"access_token":"test-token","token_type":"bearer","expires_in":3600}`)
			return
		}
		// Slam the connection shut without a response.
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRetryPolicy(RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/transfers")
	require.Error(t, err)

	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestClient_ResolveURL(t *testing.T) {
	c, err := NewClient(testConfig("https://api.example.test"))
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "relative path", in: "/transfers/abc", want: "https://api.example.test/transfers/abc"},
		{name: "no leading slash", in: "transfers/abc", want: "https://api.example.test/transfers/abc"},
		{name: "absolute passthrough", in: "https://api-sandbox.dwolla.com/customers/1", want: "https://api-sandbox.dwolla.com/customers/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.resolveURL(tt.in))
		})
	}
}

func TestRetryPolicy_DelaySchedule(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.0, MaxRetries: 6}

	var prev time.Duration
	for i := 0; i < p.MaxRetries; i++ {
		d := p.delay(i)
		assert.GreaterOrEqual(t, d, prev, "backoff must be monotone non-decreasing")
		assert.LessOrEqual(t, d, p.MaxDelay)
		prev = d
	}

	assert.Equal(t, time.Second, p.delay(0))
	assert.Equal(t, 2*time.Second, p.delay(1))
	assert.Equal(t, 4*time.Second, p.delay(2))
	assert.Equal(t, 30*time.Second, p.delay(5))
}

func TestClient_ParseRateLimitReset(t *testing.T) {
	c, err := NewClient(testConfig("https://api.example.test"))
	require.NoError(t, err)

	t.Run("epoch header honored", func(t *testing.T) {
		h := http.Header{}
		h.Set(rateLimitResetHeader, "1767225600")
		assert.Equal(t, time.Unix(1767225600, 0), c.parseRateLimitReset(h))
	})

	t.Run("missing header falls back to initial delay", func(t *testing.T) {
		before := time.Now()
		got := c.parseRateLimitReset(http.Header{})
		assert.WithinDuration(t, before.Add(c.policy.InitialDelay), got, time.Second)
	})

	t.Run("garbage header falls back", func(t *testing.T) {
		h := http.Header{}
		h.Set(rateLimitResetHeader, "not-a-number")
		got := c.parseRateLimitReset(h)
		assert.WithinDuration(t, time.Now().Add(c.policy.InitialDelay), got, time.Second)
	})
}
