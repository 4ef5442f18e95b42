package chat

import "time"

// ConversationType distinguishes one-to-one chats from groups.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Conversation is the denormalized view of a chat the client keeps in
// memory.
//
// Invariants maintained by the store:
//   - LastActivity never moves backwards as events are applied.
//   - LastMessage always references the message with the greatest timestamp
//     seen so far for this conversation.
type Conversation struct {
	ID           string           `json:"id"`
	Name         string           `json:"name,omitempty"`
	Type         ConversationType `json:"type"`
	Participants []string         `json:"participants"`
	LastMessage  *Message         `json:"lastMessage,omitempty"`
	LastActivity time.Time        `json:"lastActivity"`
	IsArchived   bool             `json:"isArchived"`
	IsMuted      bool             `json:"isMuted"`
	IsPinned     bool             `json:"isPinned"`
	Avatar       string           `json:"avatar,omitempty"`
	Description  string           `json:"description,omitempty"`
	CreatedBy    string           `json:"createdBy,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// HasParticipant tells whether userID is part of this conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// Group is a conversation with group-only metadata denormalized onto it.
type Group struct {
	Conversation
	Admins  []string `json:"admins,omitempty"`
	Members []string `json:"members"`
}
