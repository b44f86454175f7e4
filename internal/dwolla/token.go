package dwolla

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Veraticus/the-ledger-must-balance/internal/common"
)

// tokenExpiryBuffer is subtracted from the server-reported TTL so a token is
// never handed out moments before it actually expires.
const tokenExpiryBuffer = 300 * time.Second

// Credential is a cached bearer token. Owned exclusively by the TokenManager.
type Credential struct {
	ExpiresAt   time.Time
	AccessToken string
}

// valid reports whether the credential can still be used at time now.
func (c *Credential) valid(now time.Time) bool {
	return c != nil && c.AccessToken != "" && now.Before(c.ExpiresAt)
}

// TokenManager obtains and caches a bearer credential via client-credential
// exchange. Concurrent refreshes are deduplicated: all callers arriving during
// an in-flight exchange share its result, success or failure.
type TokenManager struct {
	now        func() time.Time
	httpClient *http.Client
	logger     *slog.Logger
	cred       *Credential
	cfg        Config
	group      singleflight.Group
	mu         sync.Mutex
}

// NewTokenManager creates a token manager for the given configuration.
func NewTokenManager(cfg Config, httpClient *http.Client) *TokenManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenManager{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     common.ComponentLogger("dwolla.token"),
		now:        time.Now,
	}
}

// Token returns a valid access token, performing a client-credential exchange
// if the cached one is missing or inside the expiry buffer.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.cred.valid(m.now()) {
		token := m.cred.AccessToken
		m.mu.Unlock()
		return token, nil
	}
	m.mu.Unlock()

	// Single-flight: every caller that finds no valid token awaits the same
	// exchange and receives its result.
	v, err, shared := m.group.Do("token", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	if shared {
		m.logger.Debug("Token refresh shared with concurrent caller")
	}

	token, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unexpected token refresh result type %T", v)
	}
	return token, nil
}

// ClearToken drops the cached credential so the next call forces a refresh.
// The gateway uses this after a 401 to cover token expiry races.
func (m *TokenManager) ClearToken() {
	m.mu.Lock()
	m.cred = nil
	m.mu.Unlock()
}

// refresh performs the client-credential exchange against the token endpoint.
func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(m.cfg.ClientID, m.cfg.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.ClearToken()
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &AuthError{Message: m.sanitize(0, err.Error()), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		m.ClearToken()
		return "", &AuthError{Status: resp.StatusCode, Message: m.sanitize(resp.StatusCode, err.Error()), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		m.ClearToken()
		m.logger.Warn("Token exchange failed", "status", resp.StatusCode)
		return "", &AuthError{Status: resp.StatusCode, Message: m.sanitize(resp.StatusCode, string(body))}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		m.ClearToken()
		return "", &AuthError{Status: resp.StatusCode, Message: m.sanitize(resp.StatusCode, "malformed token response"), Err: err}
	}
	if tr.AccessToken == "" {
		m.ClearToken()
		return "", &AuthError{Status: resp.StatusCode, Message: m.sanitize(resp.StatusCode, "token response missing access_token")}
	}

	// A token inside the buffer is already considered stale.
	ttl := time.Duration(tr.ExpiresIn)*time.Second - tokenExpiryBuffer
	if ttl < 0 {
		ttl = 0
	}

	now := m.now()
	m.mu.Lock()
	m.cred = &Credential{
		AccessToken: tr.AccessToken,
		ExpiresAt:   now.Add(ttl),
	}
	m.mu.Unlock()

	m.logger.Debug("Obtained new access token", "expires_in", ttl.String())

	return tr.AccessToken, nil
}

// sanitize hides provider error detail from production audiences; sandbox
// keeps the full text for debugging.
func (m *TokenManager) sanitize(status int, detail string) string {
	if !m.cfg.isProduction() {
		return detail
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "invalid client credentials"
	case 0:
		return "could not reach the authorization server"
	default:
		return fmt.Sprintf("authorization failed (status %d)", status)
	}
}
