package chat

import (
	"errors"
	"strings"
	"time"
)

// MessageType represents the kind of message content.
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeImage MessageType = "IMAGE"
	MessageTypeFile  MessageType = "FILE"
	MessageTypeAudio MessageType = "AUDIO"
	MessageTypeVideo MessageType = "VIDEO"
)

// DeliveryStatus tracks a locally-issued message through its optimistic
// lifecycle. Remote messages are always Delivered.
type DeliveryStatus string

const (
	DeliverySending   DeliveryStatus = "SENDING"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

// Message is one entry in a conversation's ordered log. IDs are unique
// across the whole system, not just within a conversation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	SenderID       string         `json:"senderId"`
	Content        string         `json:"content"`
	MessageType    MessageType    `json:"messageType"`
	Timestamp      time.Time      `json:"timestamp"`
	IsRead         bool           `json:"isRead"`
	IsEdited       bool           `json:"isEdited"`
	EditedAt       *time.Time     `json:"editedAt,omitempty"`
	ReplyTo        string         `json:"replyTo,omitempty"`
	Reactions      []Reaction     `json:"reactions,omitempty"`
	Attachments    []Attachment   `json:"attachments,omitempty"`
	Status         DeliveryStatus `json:"-"`
}

// NewMessage validates and normalizes a message. Zero timestamps are set to
// now, an empty type defaults to TEXT.
func NewMessage(m Message) (*Message, error) {
	if m.ConversationID == "" || m.SenderID == "" {
		return nil, errors.New("chat: conversationId and senderId are required")
	}

	m.Content = strings.TrimSpace(m.Content)
	if m.Content == "" && len(m.Attachments) == 0 {
		return nil, ErrEmptyMessage
	}

	if m.MessageType == "" {
		m.MessageType = MessageTypeText
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = DeliveryDelivered
	}

	return &m, nil
}

// Provisional reports whether the message is still awaiting its
// server-assigned identity.
func (m *Message) Provisional() bool {
	return m.Status == DeliverySending
}
