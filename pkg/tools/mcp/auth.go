package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// HeaderSource supplies per-request authentication headers for an MCP
// server connection.
type HeaderSource interface {
	Headers(ctx context.Context) (map[string]string, error)
}

// ClientCredentials implements the OAuth 2.0 client_credentials grant.
// Tokens are cached; a refresh is attempted once 80% of the lifetime has
// passed, and the cached token keeps serving until it actually expires
// when the refresh fails.
type ClientCredentials struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scopes       []string

	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	refreshAt time.Time
}

// NewClientCredentials builds a token source from the server's auth
// configuration.
func NewClientCredentials(cfg AuthConfig) *ClientCredentials {
	return &ClientCredentials{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scopes:       cfg.Scopes,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
	}
}

// Headers returns a Bearer Authorization header, fetching or refreshing
// the token as needed.
func (c *ClientCredentials) Headers(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.refreshAt) {
		return bearer(c.token), nil
	}

	token, lifetime, err := c.fetch(ctx)
	if err != nil {
		// The cached token stays usable until its real expiry.
		if c.token != "" && now.Before(c.expiresAt) {
			return bearer(c.token), nil
		}
		return nil, fmt.Errorf("acquiring OAuth token: %w", err)
	}

	c.token = token
	c.expiresAt = now.Add(lifetime)
	c.refreshAt = now.Add(lifetime * 8 / 10)
	return bearer(c.token), nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// fetch performs one client_credentials token request.
func (c *ClientCredentials) fetch(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	if len(c.scopes) > 0 {
		form.Set("scope", strings.Join(c.scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, fmt.Errorf("parsing token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}
	return payload.AccessToken, time.Duration(payload.ExpiresIn) * time.Second, nil
}
