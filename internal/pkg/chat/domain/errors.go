package chat

import "errors"

// Error taxonomy shared across the synchronization core. REST and transport
// layers wrap these with %w so callers can branch with errors.Is.
var (
	// ErrAuth means no usable bearer token, or the server rejected ours.
	ErrAuth = errors.New("chat: authentication required")

	// ErrNetwork covers unreachable REST endpoints and failed dials.
	ErrNetwork = errors.New("chat: network unavailable")

	// ErrProtocol marks a malformed frame or an unexpected payload shape.
	ErrProtocol = errors.New("chat: protocol violation")

	// ErrConflict is a server-side rejection of an action, e.g. editing
	// another user's message.
	ErrConflict = errors.New("chat: action rejected")

	// ErrNotFound is returned for REST 404s.
	ErrNotFound = errors.New("chat: not found")

	// ErrEmptyMessage rejects messages with neither content nor attachments.
	ErrEmptyMessage = errors.New("chat: empty message (no content or attachment)")
)
