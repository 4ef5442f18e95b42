package port

import (
	"errors"

	chat "go-hivechat/internal/pkg/chat/domain"
)

// History is the contract for the local message archive that lets a
// restarted client show conversations before the backend answers.
// Implementations must be concurrency-safe: writes arrive from the store's
// apply path while reads come from session hydration.
type History interface {
	// SaveConversation upserts the conversation snapshot.
	SaveConversation(conv chat.Conversation) error

	// SaveMessage upserts one delivered message.
	SaveMessage(msg chat.Message) error

	// DeleteMessage removes a message; deleting an unknown id is a no-op.
	DeleteMessage(conversationID, messageID string) error

	// Conversations returns every archived conversation.
	Conversations() ([]chat.Conversation, error)

	// Messages returns up to limit newest messages for a conversation in
	// timestamp-ascending order. limit <= 0 means no cap.
	Messages(conversationID string, limit int) ([]chat.Message, error)

	// Close releases the underlying storage.
	Close() error
}

// ErrClosed is returned by adapters once Close has been called.
var ErrClosed = errors.New("history: archive closed")
