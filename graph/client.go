// Package graph provides a read-path client for the Microsoft Graph To Do API:
// authenticated requests with transparent token refresh, lazy task pagination
// with attachment backfill, and delta (change feed) queries.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"todosync/internal/ratelimit"
	"todosync/internal/utils"
)

const (
	// DefaultBaseURL is the Microsoft Graph API base URL
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"
	// DefaultTokenURL is the Microsoft identity platform token endpoint
	DefaultTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
)

// Config holds Microsoft Graph connection settings.
type Config struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
	BaseURL      string // Override for testing
	TokenURL     string // Override for testing
}

// TokenSink receives refreshed tokens so they can be persisted outside the
// client (keyring, env shim in tests). May be nil.
type TokenSink interface {
	SaveTokens(accessToken, refreshToken string) error
}

// RemoteFetchError is a non-2xx response from the task source during
// enumeration. It aborts the current sync attempt.
type RemoteFetchError struct {
	Status int
	URL    string
}

// Error implements the error interface.
func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("remote fetch failed: status %d (%s)", e.Status, e.URL)
}

// Client is an authenticated Microsoft Graph client. A single 401 triggers one
// token-refresh-and-retry; a second 401 propagates as a RemoteFetchError.
// Rate-limited (429) requests are retried by the underlying ratelimit client.
type Client struct {
	config       Config
	http         *ratelimit.Client
	stats        *ratelimit.Stats
	baseURL      string
	tokenURL     string
	accessToken  string
	refreshToken string
	sink         TokenSink
}

// New creates a new Graph client.
func New(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("microsoft access token is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	stats := ratelimit.NewStats()
	return &Client{
		config:       cfg,
		http:         ratelimit.NewClient(ratelimit.Config{EnableJitter: true, Stats: stats}),
		stats:        stats,
		baseURL:      baseURL,
		tokenURL:     tokenURL,
		accessToken:  cfg.AccessToken,
		refreshToken: cfg.RefreshToken,
	}, nil
}

// ThrottleCount returns how many 429 responses the remote source has sent
// this client so far.
func (c *Client) ThrottleCount() int64 {
	return c.stats.RateLimitCount()
}

// SetTokenSink registers a sink that persists refreshed tokens.
func (c *Client) SetTokenSink(sink TokenSink) {
	c.sink = sink
}

// refreshAccessToken refreshes the OAuth2 access token using the refresh token.
func (c *Client) refreshAccessToken(ctx context.Context) error {
	if c.refreshToken == "" {
		return fmt.Errorf("no refresh token available")
	}

	data := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": c.refreshToken,
	}
	if c.config.ClientID != "" {
		data["client_id"] = c.config.ClientID
	}
	if c.config.ClientSecret != "" {
		data["client_secret"] = c.config.ClientSecret
	}

	jsonBody, err := json.Marshal(data)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// A rejected refresh means the stored tokens are no longer good; the
		// user has to log in again.
		utils.Warnf("token refresh rejected: status %d", resp.StatusCode)
		return utils.ErrAuthenticationFailed()
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return err
	}

	c.accessToken = tokenResp.AccessToken
	if tokenResp.RefreshToken != "" {
		c.refreshToken = tokenResp.RefreshToken
	}

	// Persist renewed tokens so the next process start does not replay the
	// refresh. Persistence failure is not fatal to the request in flight.
	if c.sink != nil {
		if err := c.sink.SaveTokens(c.accessToken, c.refreshToken); err != nil {
			utils.Warnf("failed to persist refreshed tokens: %v", err)
		}
	}

	return nil
}

// get performs an authenticated GET against a fully qualified URL.
// Continuation links returned by the API are absolute, so callers pass whole
// URLs rather than paths.
func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	// Handle token expiration - attempt refresh and retry once
	if resp.StatusCode == http.StatusUnauthorized && c.refreshToken != "" {
		_ = resp.Body.Close()

		if err := c.refreshAccessToken(ctx); err != nil {
			return nil, fmt.Errorf("token refresh failed: %w", err)
		}

		req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err = c.http.Do(req)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// getJSON performs an authenticated GET and decodes the response body into
// out, converting any non-200 status into a RemoteFetchError.
func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	resp, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &RemoteFetchError{Status: resp.StatusCode, URL: url}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// tasksURL returns the task collection URL for a list.
func (c *Client) tasksURL(listID string) string {
	return c.baseURL + "/me/todo/lists/" + listID + "/tasks"
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
