package llm

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FreshnessMargin is the minimum remaining validity a held token must
// have before it is handed out; anything at or below this triggers a
// refresh.
const FreshnessMargin = time.Minute

// BearerToken is a short-lived credential for the LLM provider.
// It is owned by TokenGuard and replaced wholesale on refresh.
type BearerToken struct {
	Value     string
	ExpiresAt int64 // unix milliseconds
}

// Valid reports whether the token has not yet expired at now.
func (t BearerToken) Valid(now time.Time) bool {
	return now.UnixMilli() < t.ExpiresAt
}

// Remaining returns the validity left at now; negative when expired.
func (t BearerToken) Remaining(now time.Time) time.Duration {
	return time.Duration(t.ExpiresAt-now.UnixMilli()) * time.Millisecond
}

// TokenInfo describes the held token for status endpoints.
type TokenInfo struct {
	IsValid   bool   `json:"is_valid"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// TokenGuardConfig configures access to the identity endpoint.
type TokenGuardConfig struct {
	AuthURL    string
	Credential string // static Authorization header value
	Scope      string
	// InsecureSkipVerify disables TLS verification; the provider's
	// identity endpoint uses a private CA in some deployments.
	InsecureSkipVerify bool
	HTTPClient         *http.Client
}

// TokenGuard owns the bearer token used for provider calls and
// refreshes it from the identity endpoint on demand.
//
// The mutex protects the held token only; it is never held across the
// refresh request, so two concurrent callers observing an expiring
// token may both refresh. That costs one extra round trip and nothing
// else.
type TokenGuard struct {
	authURL    string
	credential string
	scope      string
	httpClient *http.Client

	mu    sync.Mutex
	held  bool
	token BearerToken
}

// NewTokenGuard constructs a guard; no token is fetched until first use.
func NewTokenGuard(cfg TokenGuardConfig) (*TokenGuard, error) {
	authURL := strings.TrimSpace(cfg.AuthURL)
	if authURL == "" {
		return nil, fmt.Errorf("token guard: auth URL required")
	}
	if strings.TrimSpace(cfg.Credential) == "" {
		return nil, fmt.Errorf("token guard: credential required")
	}
	if strings.TrimSpace(cfg.Scope) == "" {
		return nil, fmt.Errorf("token guard: scope required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
		if cfg.InsecureSkipVerify {
			httpClient.Transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
	}
	return &TokenGuard{
		authURL:    authURL,
		credential: strings.TrimSpace(cfg.Credential),
		scope:      strings.TrimSpace(cfg.Scope),
		httpClient: httpClient,
	}, nil
}

// Token returns the held token when it still has more than
// FreshnessMargin of validity, otherwise fetches a replacement.
func (g *TokenGuard) Token(ctx context.Context) (BearerToken, error) {
	g.mu.Lock()
	if g.held && g.token.Remaining(time.Now()) > FreshnessMargin {
		token := g.token
		g.mu.Unlock()
		return token, nil
	}
	g.mu.Unlock()

	token, err := g.Fetch(ctx)
	if err != nil {
		return BearerToken{}, err
	}
	g.mu.Lock()
	g.token = token
	g.held = true
	g.mu.Unlock()
	return token, nil
}

// Fetch unconditionally requests a new token from the identity endpoint.
func (g *TokenGuard) Fetch(ctx context.Context) (BearerToken, error) {
	form := url.Values{"scope": {g.scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return BearerToken{}, fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Authorization", g.credential)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return BearerToken{}, &AuthError{Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return BearerToken{}, &AuthError{Status: resp.StatusCode, Message: msg}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return BearerToken{}, &AuthError{Status: resp.StatusCode, Message: "invalid token payload: " + err.Error()}
	}
	if payload.AccessToken == "" || payload.ExpiresAt == 0 {
		return BearerToken{}, &AuthError{Status: resp.StatusCode, Message: "token payload missing access_token or expires_at"}
	}
	return BearerToken{Value: payload.AccessToken, ExpiresAt: payload.ExpiresAt}, nil
}

// Info reports validity of the held token without refreshing it.
func (g *TokenGuard) Info() TokenInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.held {
		return TokenInfo{}
	}
	info := TokenInfo{IsValid: g.token.Valid(time.Now())}
	if g.token.ExpiresAt > 0 {
		info.ExpiresAt = time.UnixMilli(g.token.ExpiresAt).UTC().Format("2006-01-02 15:04:05")
	}
	return info
}
