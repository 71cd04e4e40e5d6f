// Package auth verifies player access tokens against the identity service.
//
// Tokens are opaque to this service: verification is delegated to the
// identity provider's user-info endpoint (GET /auth/v1/user with a bearer
// token), which returns the player identity for a valid token and 401 for
// anything else. Verified identities are cached briefly so a chatty client
// does not turn every audio chunk into an upstream round trip.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	userInfoEndpoint = "/auth/v1/user"
	defaultTimeout   = 5 * time.Second
	defaultCacheTTL  = 30 * time.Second
)

// ErrUnauthorized is returned by Verify when the identity service rejects the
// token.
var ErrUnauthorized = errors.New("auth: invalid or expired token")

// User is a verified player identity.
type User struct {
	// ID is the identity service's stable user ID.
	ID string `json:"id"`

	// Email is the user's email address, when the identity service exposes it.
	Email string `json:"email"`
}

// Option is a functional option for configuring a [Verifier].
type Option func(*Verifier)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(v *Verifier) { v.httpClient = hc }
}

// WithCacheTTL sets how long a verified token stays cached. Zero disables
// caching. Default: 30 s.
func WithCacheTTL(ttl time.Duration) Option {
	return func(v *Verifier) { v.cacheTTL = ttl }
}

// WithAnonKey sets the service's public API key, sent alongside the user
// token as the apikey header the identity service expects.
func WithAnonKey(key string) Option {
	return func(v *Verifier) { v.anonKey = key }
}

type cachedUser struct {
	user    User
	expires time.Time
}

// Verifier validates bearer tokens against the identity service. Safe for
// concurrent use.
type Verifier struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	cacheTTL   time.Duration

	mu    sync.Mutex
	cache map[string]cachedUser
}

// NewVerifier creates a Verifier for the identity service at baseURL
// (e.g., "https://auth.example.com"). baseURL must be non-empty.
func NewVerifier(baseURL string, opts ...Option) (*Verifier, error) {
	if baseURL == "" {
		return nil, errors.New("auth: baseURL must not be empty")
	}
	v := &Verifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		cacheTTL:   defaultCacheTTL,
		cache:      make(map[string]cachedUser),
	}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

// Verify resolves token to a player identity. Returns [ErrUnauthorized] when
// the identity service rejects the token; other errors indicate the service
// could not be reached.
func (v *Verifier) Verify(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	if u, ok := v.cached(token); ok {
		return &u, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+userInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: create user-info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if v.anonKey != "" {
		req.Header.Set("apikey", v.anonKey)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: GET %s: %w", userInfoEndpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("auth: identity service returned status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("auth: decode user info: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("auth: identity service returned no user ID")
	}

	v.store(token, user)
	return &user, nil
}

func (v *Verifier) cached(token string) (User, bool) {
	if v.cacheTTL <= 0 {
		return User{}, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.cache[token]
	if !ok || time.Now().After(entry.expires) {
		delete(v.cache, token)
		return User{}, false
	}
	return entry.user, true
}

func (v *Verifier) store(token string, user User) {
	if v.cacheTTL <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache[token] = cachedUser{user: user, expires: time.Now().Add(v.cacheTTL)}
}
