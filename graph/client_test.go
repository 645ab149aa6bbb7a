package graph

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"todosync/internal/utils"
)

// =============================================================================
// Client Authentication Tests
// =============================================================================

// TestNewRequiresAccessToken verifies the access token is mandatory
func TestNewRequiresAccessToken(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatal("expected error when access token is missing")
	}
}

// recordingSink captures persisted tokens for assertions.
type recordingSink struct {
	access  string
	refresh string
	calls   int32
}

func (s *recordingSink) SaveTokens(accessToken, refreshToken string) error {
	s.access = accessToken
	s.refresh = refreshToken
	atomic.AddInt32(&s.calls, 1)
	return nil
}

// TestTokenRefreshOn401 verifies a 401 triggers one refresh-and-retry
func TestTokenRefreshOn401(t *testing.T) {
	taskRequests := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["grant_type"] != "refresh_token" || body["refresh_token"] != "old-refresh" {
				t.Errorf("unexpected refresh request body: %v", body)
			}
			writeJSON(t, w, map[string]interface{}{
				"access_token":  "new-access",
				"refresh_token": "new-refresh",
			})
			return
		}

		count := atomic.AddInt32(&taskRequests, 1)
		if count == 1 {
			if r.Header.Get("Authorization") != "Bearer old-access" {
				t.Errorf("first request should use old token, got %q", r.Header.Get("Authorization"))
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") != "Bearer new-access" {
			t.Errorf("retry should use refreshed token, got %q", r.Header.Get("Authorization"))
		}
		writeJSON(t, w, map[string]interface{}{"value": taskStubs("a", 1)})
	}))
	defer server.Close()

	client, err := New(Config{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ClientID:     "client-id",
		BaseURL:      server.URL,
		TokenURL:     server.URL + "/token",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	sink := &recordingSink{}
	client.SetTokenSink(sink)

	tasks, err := collectPages(t, client, "list1")
	if err != nil {
		t.Fatalf("expected refresh-and-retry to succeed, got: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("expected 1 task after retry, got %d", len(tasks))
	}
	if taskRequests != 2 {
		t.Errorf("expected 2 task requests (401 then retry), got %d", taskRequests)
	}

	// Rotated tokens must be persisted
	if sink.calls != 1 {
		t.Fatalf("expected 1 sink call, got %d", sink.calls)
	}
	if sink.access != "new-access" || sink.refresh != "new-refresh" {
		t.Errorf("sink received wrong tokens: access=%q refresh=%q", sink.access, sink.refresh)
	}
}

// TestUnauthorizedWithoutRefreshToken verifies a 401 propagates when no refresh is possible
func TestUnauthorizedWithoutRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server) // no refresh token configured
	it := client.Pages("list1")
	if it.Next(t.Context()) {
		t.Error("expected Next() to fail")
	}

	var fetchErr *RemoteFetchError
	if !errors.As(it.Err(), &fetchErr) {
		t.Fatalf("expected *RemoteFetchError, got: %v", it.Err())
	}
	if fetchErr.Status != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", fetchErr.Status)
	}
}

// TestSecondUnauthorizedPropagates verifies the refresh-retry is attempted only once
func TestSecondUnauthorizedPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			writeJSON(t, w, map[string]interface{}{"access_token": "still-bad"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := New(Config{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		BaseURL:      server.URL,
		TokenURL:     server.URL + "/token",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	it := client.Pages("list1")
	if it.Next(t.Context()) {
		t.Error("expected Next() to fail")
	}

	var fetchErr *RemoteFetchError
	if !errors.As(it.Err(), &fetchErr) {
		t.Fatalf("expected *RemoteFetchError after failed retry, got: %v", it.Err())
	}
	if fetchErr.Status != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", fetchErr.Status)
	}
}

// TestRefreshFailurePropagates verifies a failed token refresh aborts the request
func TestRefreshFailurePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := New(Config{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		BaseURL:      server.URL,
		TokenURL:     server.URL + "/token",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	it := client.Pages("list1")
	if it.Next(t.Context()) {
		t.Error("expected Next() to fail")
	}
	if it.Err() == nil {
		t.Fatal("expected token refresh failure to surface")
	}

	// A rejected refresh is an authentication failure: the user should be
	// pointed back at login.
	var suggErr *utils.ErrorWithSuggestion
	if !errors.As(it.Err(), &suggErr) {
		t.Fatalf("expected suggestion-wrapped auth error, got: %v", it.Err())
	}
	if !strings.Contains(strings.ToLower(suggErr.GetSuggestion()), "login") {
		t.Errorf("suggestion should point at login, got %q", suggErr.GetSuggestion())
	}
}

// TestThrottleCountTracksRateLimits verifies 429 responses are counted
func TestThrottleCountTracksRateLimits(t *testing.T) {
	requests := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, map[string]interface{}{"value": taskStubs("a", 1)})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if client.ThrottleCount() != 0 {
		t.Fatal("fresh client should have no throttle events")
	}

	tasks, err := collectPages(t, client, "list1")
	if err != nil {
		t.Fatalf("expected retry to succeed, got: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("expected 1 task, got %d", len(tasks))
	}
	if client.ThrottleCount() != 1 {
		t.Errorf("expected 1 throttle event recorded, got %d", client.ThrottleCount())
	}
}
