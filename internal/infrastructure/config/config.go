// Package config carries the runtime settings of the client. Values come
// from the environment (the CLI layers a viper-backed file on top before
// calling FromEnv).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is everything the session wiring needs.
type Config struct {
	// ServerURL is the HTTP(S) base of the backend, e.g. https://api.hiveapp.com.
	ServerURL string

	// CredentialCache is the JSON file holding the persisted session tokens.
	// Empty disables persistence.
	CredentialCache string

	// HistoryPath is the local pebble archive directory. Empty disables the
	// history cache.
	HistoryPath string

	// OpsAddr is the listen address of the local status server. Empty
	// disables it.
	OpsAddr string

	// ReconnectBase is the backoff base; delay = base x attempt.
	ReconnectBase time.Duration

	// ReconnectMax caps consecutive reconnect attempts.
	ReconnectMax int

	// TypingTTL expires stale typing entries client-side. Zero keeps the
	// backend's contract (entries live until TYPING_STOP).
	TypingTTL time.Duration
}

// FromEnv builds a Config from HIVECHAT_* environment variables.
// HIVECHAT_SERVER_URL is required; everything else has defaults.
func FromEnv() (*Config, error) {
	server := strings.TrimSpace(os.Getenv("HIVECHAT_SERVER_URL"))
	if server == "" {
		return nil, errors.New("config: HIVECHAT_SERVER_URL environment variable is not set")
	}

	cfg := &Config{
		ServerURL:       strings.TrimRight(server, "/"),
		CredentialCache: os.Getenv("HIVECHAT_CREDENTIAL_CACHE"),
		HistoryPath:     os.Getenv("HIVECHAT_HISTORY_PATH"),
		OpsAddr:         os.Getenv("HIVECHAT_OPS_ADDR"),
		ReconnectBase:   1 * time.Second,
		ReconnectMax:    5,
	}

	if v := os.Getenv("HIVECHAT_RECONNECT_BASE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: HIVECHAT_RECONNECT_BASE: %w", err)
		}
		cfg.ReconnectBase = d
	}
	if v := os.Getenv("HIVECHAT_RECONNECT_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("config: HIVECHAT_RECONNECT_MAX must be a positive integer")
		}
		cfg.ReconnectMax = n
	}
	if v := os.Getenv("HIVECHAT_TYPING_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: HIVECHAT_TYPING_TTL: %w", err)
		}
		cfg.TypingTTL = d
	}

	return cfg, nil
}

// WebSocketURL derives the push-channel endpoint from ServerURL.
func (c *Config) WebSocketURL() string {
	ws := c.ServerURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return ws + "/ws"
}
