// Package credentials provides secure storage and retrieval of Microsoft
// Graph OAuth tokens using OS-native keyrings with fallback to environment
// variables.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// service is the keyring service name under which all accounts are stored.
const service = "todosync"

// Source indicates where credentials were retrieved from
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// Tokens holds the OAuth material for one Graph account. RefreshToken,
// ClientID and ClientSecret are optional; without them the access token is
// used until it expires.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Info describes where an account's tokens were found.
type Info struct {
	Account string
	Source  Source
	Found   bool
}

// JSON serializes the info (token material excluded)
func (i *Info) JSON() ([]byte, error) {
	output := struct {
		Account string `json:"account"`
		Source  string `json:"source"`
		Found   bool   `json:"found"`
	}{
		Account: i.Account,
		Source:  string(i.Source),
		Found:   i.Found,
	}
	return json.Marshal(output)
}

// Keyring is the interface for keyring operations
type Keyring interface {
	Set(service, account, password string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// Manager handles token storage operations
type Manager struct {
	keyring Keyring
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// NewManager creates a new credential manager backed by the OS keyring
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: &systemKeyring{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// normalizeAccount normalizes account names to lowercase
func normalizeAccount(account string) string {
	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" {
		return "default"
	}
	return account
}

// Set stores an account's tokens in the keyring as a JSON blob.
func (m *Manager) Set(account string, tokens Tokens) error {
	if tokens.AccessToken == "" {
		return fmt.Errorf("access token must not be empty")
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}
	return m.keyring.Set(service, normalizeAccount(account), string(data))
}

// Get retrieves an account's tokens, trying the keyring first and falling
// back to TODOSYNC_* environment variables.
func (m *Manager) Get(account string) (*Tokens, *Info, error) {
	account = normalizeAccount(account)

	// Priority 1: keyring
	raw, err := m.keyring.Get(service, account)
	if err == nil && raw != "" {
		var tokens Tokens
		if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
			return nil, nil, fmt.Errorf("corrupt token entry for account %s: %w", account, err)
		}
		return &tokens, &Info{Account: account, Source: SourceKeyring, Found: true}, nil
	}

	// Priority 2: environment variables
	if tokens := tokensFromEnv(); tokens != nil {
		return tokens, &Info{Account: account, Source: SourceEnvironment, Found: true}, nil
	}

	return nil, &Info{Account: account, Source: SourceNone, Found: false}, nil
}

// tokensFromEnv reads token material from TODOSYNC_* environment variables.
// TODOSYNC_ACCESS_TOKEN is required; the rest are optional.
func tokensFromEnv() *Tokens {
	access := os.Getenv("TODOSYNC_ACCESS_TOKEN")
	if access == "" {
		return nil
	}
	return &Tokens{
		AccessToken:  access,
		RefreshToken: os.Getenv("TODOSYNC_REFRESH_TOKEN"),
		ClientID:     os.Getenv("TODOSYNC_CLIENT_ID"),
		ClientSecret: os.Getenv("TODOSYNC_CLIENT_SECRET"),
	}
}

// Delete removes an account's tokens from the keyring. Idempotent.
func (m *Manager) Delete(account string) error {
	err := m.keyring.Delete(service, normalizeAccount(account))
	if err != nil && strings.Contains(err.Error(), "not found") {
		return nil
	}
	return err
}

// Sink returns a token persister for one account, used to store rotated
// tokens after a refresh. Persisting to an environment-sourced account is a
// no-op for the process environment, so the sink always writes the keyring.
func (m *Manager) Sink(account string) *Sink {
	return &Sink{manager: m, account: normalizeAccount(account)}
}

// Sink persists rotated tokens for a fixed account.
type Sink struct {
	manager *Manager
	account string
}

// SaveTokens stores a new access/refresh token pair, preserving the stored
// client credentials.
func (s *Sink) SaveTokens(accessToken, refreshToken string) error {
	tokens, info, err := s.manager.Get(s.account)
	if err != nil {
		return err
	}
	if !info.Found {
		tokens = &Tokens{}
	}
	tokens.AccessToken = accessToken
	if refreshToken != "" {
		tokens.RefreshToken = refreshToken
	}
	return s.manager.Set(s.account, *tokens)
}
