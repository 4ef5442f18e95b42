// Package auth implements the bearer-token provider consumed by the REST
// and transport layers: login/register against the auth service, automatic
// refresh of expired tokens, and optional on-disk credential storage so a
// restarted client keeps its session.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go-hivechat/internal/infrastructure/logging"
	"go-hivechat/internal/infrastructure/rest"
	authport "go-hivechat/internal/pkg/auth/port"
	chat "go-hivechat/internal/pkg/chat/domain"
)

// expirySkew is subtracted from the token lifetime so a token is refreshed
// slightly before the server would reject it.
const expirySkew = 30 * time.Second

// User is the authenticated account as the backend reports it.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Credentials is a login request.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is a register request.
type Registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// Session is the auth service's response shape for login, register and
// refresh.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	User         User   `json:"user"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Client holds the live credentials for one authenticated session and keeps
// them fresh. It satisfies the TokenSource port.
type Client struct {
	rest *rest.Client

	mu        sync.Mutex
	access    string
	refresh   string
	expiresAt time.Time
	user      User

	// refreshMu serializes refresh round-trips so concurrent Token calls
	// on an expired token produce a single exchange.
	refreshMu sync.Mutex

	cachePath string
}

var _ authport.TokenSource = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithCredentialCache persists tokens to path after every change and loads
// them back on construction.
func WithCredentialCache(path string) Option {
	return func(c *Client) { c.cachePath = path }
}

// NewClient constructs an auth client against baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{rest: rest.New(baseURL, nil)}
	for _, opt := range opts {
		opt(c)
	}
	if c.cachePath != "" {
		c.loadCache()
	}
	return c
}

// Login authenticates with username/password and installs the returned
// tokens.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Session, error) {
	var sess Session
	if err := c.rest.PostPublic(ctx, "/api/auth/login", creds, &sess); err != nil {
		return nil, fmt.Errorf("auth: login: %w", err)
	}
	c.install(sess)
	return &sess, nil
}

// Register creates an account and installs the returned tokens.
func (c *Client) Register(ctx context.Context, reg Registration) (*Session, error) {
	var sess Session
	if err := c.rest.PostPublic(ctx, "/api/auth/register", reg, &sess); err != nil {
		return nil, fmt.Errorf("auth: register: %w", err)
	}
	c.install(sess)
	return &sess, nil
}

// Token returns a valid access token, refreshing first when the current one
// is expired. Concurrent callers share one refresh round-trip. Implements
// the TokenSource port.
func (c *Client) Token(ctx context.Context) (string, error) {
	if access, ok := c.freshToken(); ok {
		return access, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	// Another caller may have refreshed while we waited for the lock.
	if access, ok := c.freshToken(); ok {
		return access, nil
	}

	c.mu.Lock()
	refresh := c.refresh
	c.mu.Unlock()
	if refresh == "" {
		return "", fmt.Errorf("%w: not logged in", chat.ErrAuth)
	}
	sess, err := c.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return sess.AccessToken, nil
}

func (c *Client) freshToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fresh := c.access != "" && (c.expiresAt.IsZero() || time.Now().Before(c.expiresAt.Add(-expirySkew)))
	return c.access, fresh
}

// Refresh exchanges the refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	refresh := c.refresh
	c.mu.Unlock()
	if refresh == "" {
		return nil, fmt.Errorf("%w: no refresh token", chat.ErrAuth)
	}

	var sess Session
	body := map[string]string{"refreshToken": refresh}
	if err := c.rest.PostPublic(ctx, "/api/auth/refresh", body, &sess); err != nil {
		return nil, fmt.Errorf("auth: refresh: %w", err)
	}
	c.install(sess)
	return &sess, nil
}

// Logout drops the credentials locally and removes the cache file. The
// backend's logout endpoint is best-effort.
func (c *Client) Logout(ctx context.Context) {
	_ = c.rest.PostPublic(ctx, "/api/auth/logout", nil, nil)
	c.mu.Lock()
	c.access, c.refresh, c.user = "", "", User{}
	c.expiresAt = time.Time{}
	path := c.cachePath
	c.mu.Unlock()
	if path != "" {
		_ = os.Remove(path)
	}
}

// CurrentUser returns the user attached to the active session.
func (c *Client) CurrentUser() (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user, c.access != ""
}

func (c *Client) install(sess Session) {
	c.mu.Lock()
	c.access = sess.AccessToken
	if sess.RefreshToken != "" {
		c.refresh = sess.RefreshToken
	}
	if sess.User.ID != "" {
		c.user = sess.User
	}
	if sess.ExpiresIn > 0 {
		c.expiresAt = time.Now().Add(time.Duration(sess.ExpiresIn) * time.Second)
	} else {
		c.expiresAt = time.Time{}
	}
	c.mu.Unlock()
	c.saveCache()
}

// cachedCredentials is the on-disk shape of a persisted session.
type cachedCredentials struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         User      `json:"user"`
}

func (c *Client) saveCache() {
	if c.cachePath == "" {
		return
	}
	c.mu.Lock()
	cached := cachedCredentials{
		AccessToken:  c.access,
		RefreshToken: c.refresh,
		ExpiresAt:    c.expiresAt,
		User:         c.user,
	}
	path := c.cachePath
	c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		logging.Log.Warn("credential cache dir", "err", err)
		return
	}
	buf, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		logging.Log.Warn("credential cache write", "err", err)
	}
}

func (c *Client) loadCache() {
	buf, err := os.ReadFile(c.cachePath)
	if err != nil {
		return
	}
	var cached cachedCredentials
	if err := json.Unmarshal(buf, &cached); err != nil {
		logging.Log.Warn("credential cache unreadable", "path", c.cachePath, "err", err)
		return
	}
	c.mu.Lock()
	c.access = cached.AccessToken
	c.refresh = cached.RefreshToken
	c.expiresAt = cached.ExpiresAt
	c.user = cached.User
	c.mu.Unlock()
}
