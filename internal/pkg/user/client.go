// Package user is the read side of account profiles: lookup, search and
// profile maintenance. Resolved profiles are cached so repeated display
// name lookups for the same sender stay local.
package user

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"go-hivechat/internal/infrastructure/rest"
)

// Profile is a user account as the backend reports it.
type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Status    string `json:"status,omitempty"`
}

// DisplayName picks the most presentable name the profile carries.
func (p Profile) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.Username != "":
		return p.Username
	default:
		return p.ID
	}
}

// Client resolves and maintains user profiles over the REST backend.
type Client struct {
	rest *rest.Client

	mu       sync.Mutex
	profiles map[string]Profile
}

// NewClient constructs a profile client on top of an authenticated REST
// client.
func NewClient(rc *rest.Client) *Client {
	return &Client{rest: rc, profiles: make(map[string]Profile)}
}

// Me fetches the authenticated account's own profile.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.rest.Get(ctx, "/api/users/me", &p); err != nil {
		return nil, fmt.Errorf("user: me: %w", err)
	}
	c.remember(p)
	return &p, nil
}

// UpdateProfile applies a partial update to the own profile and returns the
// confirmed result.
func (c *Client) UpdateProfile(ctx context.Context, updates map[string]any) (*Profile, error) {
	var p Profile
	if err := c.rest.Put(ctx, "/api/users/me", updates, &p); err != nil {
		return nil, fmt.Errorf("user: update profile: %w", err)
	}
	c.remember(p)
	return &p, nil
}

// GetByID resolves one user, serving repeats from the cache.
func (c *Client) GetByID(ctx context.Context, userID string) (*Profile, error) {
	c.mu.Lock()
	if p, ok := c.profiles[userID]; ok {
		c.mu.Unlock()
		return &p, nil
	}
	c.mu.Unlock()

	var p Profile
	path := "/api/users/" + url.PathEscape(userID) + "/profile"
	if err := c.rest.Get(ctx, path, &p); err != nil {
		return nil, fmt.Errorf("user: get %s: %w", userID, err)
	}
	c.remember(p)
	return &p, nil
}

// Search finds users matching query. limit <= 0 uses the backend default.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Profile, error) {
	if limit <= 0 {
		limit = 20
	}
	path := "/api/users/search?q=" + url.QueryEscape(query) + "&limit=" + strconv.Itoa(limit)
	var out []Profile
	if err := c.rest.Get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("user: search %q: %w", query, err)
	}
	for _, p := range out {
		c.remember(p)
	}
	return out, nil
}

// ChangePassword rotates the account password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	body := map[string]string{"currentPassword": current, "newPassword": next}
	if err := c.rest.Put(ctx, "/api/users/password", body, nil); err != nil {
		return fmt.Errorf("user: change password: %w", err)
	}
	return nil
}

// ResolveName returns the display name for userID, falling back to the raw
// id when the profile cannot be fetched. Meant for rendering paths that
// must never fail.
func (c *Client) ResolveName(ctx context.Context, userID string) string {
	p, err := c.GetByID(ctx, userID)
	if err != nil {
		return userID
	}
	return p.DisplayName()
}

func (c *Client) remember(p Profile) {
	if p.ID == "" {
		return
	}
	c.mu.Lock()
	c.profiles[p.ID] = p
	c.mu.Unlock()
}
