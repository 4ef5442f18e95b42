// Package rest is the thin JSON-over-HTTP layer every outbound action goes
// through. It attaches the bearer token, decodes the backend's error shape
// and maps HTTP statuses onto the chat error taxonomy.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	chat "go-hivechat/internal/pkg/chat/domain"
	authport "go-hivechat/internal/pkg/auth/port"
)

const defaultTimeout = 15 * time.Second

// Client performs JSON REST calls against the Hive backend.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  authport.TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client (tests, custom
// transports).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New constructs a Client for the given base URL. tokens may be nil for a
// client that only calls public endpoints.
func New(baseURL string, tokens authport.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured HTTP base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Get issues an authenticated GET and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.send(ctx, http.MethodGet, path, nil, out, true)
}

// Post issues an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.send(ctx, http.MethodPost, path, in, out, true)
}

// Put issues an authenticated PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.send(ctx, http.MethodPut, path, in, out, true)
}

// Delete issues an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.send(ctx, http.MethodDelete, path, nil, nil, true)
}

// PostPublic issues an unauthenticated POST (the auth endpoints).
func (c *Client) PostPublic(ctx context.Context, path string, in, out any) error {
	return c.send(ctx, http.MethodPost, path, in, out, false)
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Message string `json:"message"`
}

func (c *Client) send(ctx context.Context, method, path string, in, out any, authed bool) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("rest: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("rest: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if authed {
		if c.tokens == nil {
			return fmt.Errorf("%w: no token source configured", chat.ErrAuth)
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", chat.ErrAuth, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", chat.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.statusError(resp, method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s response: %v", chat.ErrProtocol, method, path, err)
	}
	return nil
}

// statusError maps an HTTP failure onto the taxonomy, carrying the server's
// message when one was sent.
func (c *Client) statusError(resp *http.Response, method, path string) error {
	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&eb)
	msg := eb.Message
	if msg == "" {
		msg = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", chat.ErrAuth, msg)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", chat.ErrNotFound, method, path)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", chat.ErrConflict, msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: %s", chat.ErrNetwork, method, path, msg)
	default:
		return fmt.Errorf("rest: %s %s: %s", method, path, msg)
	}
}
